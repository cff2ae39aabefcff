package login

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

var ErrNoPassword = errors.New("no password stored in keyring")

var (
	keyringSet = keyring.Set
	keyringGet = keyring.Get
)

// Credentials names the keyring slot holding the account password.
type Credentials struct {
	Service  string
	Username string
}

// StorePassword writes the password for c.Username to the OS keyring.
func (c Credentials) StorePassword(password string) error {
	if c.Username == "" {
		return errors.New("login: username is required")
	}
	if err := keyringSet(c.Service, c.Username, password); err != nil {
		return fmt.Errorf("login: store password: %w", err)
	}
	return nil
}

// Password reads the stored password. ErrNoPassword means `slotbot login`
// has not been run for this username.
func (c Credentials) Password() (string, error) {
	if c.Username == "" {
		return "", errors.New("login: username is required")
	}
	pw, err := keyringGet(c.Service, c.Username)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("%w for %s", ErrNoPassword, c.Username)
	}
	if err != nil {
		return "", fmt.Errorf("login: read password: %w", err)
	}
	return pw, nil
}

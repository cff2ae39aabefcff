package model

import (
	"fmt"
	"time"
)

// Intent is what the user typed on the command line before it is resolved
// against the catalog. Every field except Weekly is a fragment that is
// matched case-insensitively.
type Intent struct {
	Activity string
	Weekday  string
	Time     string
	Facility string
	Weekly   bool
}

// Occurrence is a single concrete, resolved sign-up that the scheduler
// fires at SignUpStart. The JSON shape is the on-disk schedule format.
type Occurrence struct {
	// ID is assigned by the scheduler when the entry is added and stays
	// the same until the entry fires or is removed. It is never handed out
	// again.
	ID int `json:"id"`

	Activity  string `json:"sport"`
	Weekday   string `json:"weekday"`
	StartTime string `json:"start_time"` // local "HH:MM"
	Facility  string `json:"facility"`
	Weekly    bool   `json:"weekly"`

	// Start is the activity's own start instant. Older schedule files do
	// not carry it.
	Start *time.Time `json:"start,omitempty"`

	// Claim window in epoch seconds (UTC).
	SignUpStart int64 `json:"sign_up_start"`
	SignUpEnd   int64 `json:"sign_up_end"`

	URL string `json:"url"`
}

// FireAt is the instant the claim must be attempted.
func (o Occurrence) FireAt() time.Time {
	return time.Unix(o.SignUpStart, 0).UTC()
}

// ClosesAt is the end of the claim window.
func (o Occurrence) ClosesAt() time.Time {
	return time.Unix(o.SignUpEnd, 0).UTC()
}

// Intent rebuilds the intent that resolves to this occurrence. The stored
// display names are used as fragments; they match themselves.
func (o Occurrence) Intent() Intent {
	return Intent{
		Activity: o.Activity,
		Weekday:  o.Weekday,
		Time:     o.StartTime,
		Facility: o.Facility,
		Weekly:   o.Weekly,
	}
}

func (o Occurrence) String() string {
	return fmt.Sprintf("#%d %s %s %s @ %s", o.ID, o.Activity, o.Weekday, o.StartTime, o.Facility)
}

// Clock is a civil time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Matches reports whether t, in its own location, falls on this clock
// minute.
func (c Clock) Matches(t time.Time) bool {
	return t.Hour() == c.Hour && t.Minute() == c.Minute
}

package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"slotbot/internal/model"
)

var (
	ErrUnknownWeekday   = errors.New("unknown weekday")
	ErrAmbiguousWeekday = errors.New("ambiguous weekday")
	ErrInvalidTime      = errors.New("invalid time")
)

// weekOrder is the canonical week as listed in error messages.
var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// ParseWeekday matches prefix case-insensitively against the seven
// weekday names. "T" is ambiguous (Tuesday, Thursday); "tu" is not.
func ParseWeekday(prefix string) (time.Weekday, error) {
	p := strings.ToLower(strings.TrimSpace(prefix))

	var matches []time.Weekday
	for _, d := range weekOrder {
		if strings.HasPrefix(strings.ToLower(d.String()), p) {
			matches = append(matches, d)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return 0, fmt.Errorf("%w %q", ErrUnknownWeekday, prefix)
	default:
		names := make([]string, len(matches))
		for i, d := range matches {
			names[i] = d.String()
		}
		return 0, fmt.Errorf("%w %q (matches %s)", ErrAmbiguousWeekday, prefix, strings.Join(names, ", "))
	}
}

// ParseClock parses a 24-hour "H:MM" or "HH:MM" time of day.
func ParseClock(s string) (model.Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 {
		return model.Clock{}, fmt.Errorf("%w %q (want HH:MM)", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return model.Clock{}, fmt.Errorf("%w %q: hour out of range", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return model.Clock{}, fmt.Errorf("%w %q: minute out of range", ErrInvalidTime, s)
	}
	return model.Clock{Hour: h, Minute: m}, nil
}

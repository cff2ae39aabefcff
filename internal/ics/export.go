package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "slotbot/internal/log"
	"slotbot/internal/model"
)

const productID = "-//slotbot//pending claims//EN"

// Export writes the pending entries as an iCalendar feed. Each VEVENT
// spans the claim window; weekly entries carry a weekly RRULE so calendar
// apps show the chain ahead of time.
func Export(w io.Writer, entries []model.Occurrence, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("slotbot")
	cal.SetXWRTimezone(loc.String())

	stamp := time.Now().UTC()
	for _, o := range entries {
		ev := cal.AddEvent(eventUID(o))
		ev.SetDtStampTime(stamp)
		ev.SetSummary(fmt.Sprintf("Sign up: %s", o.Activity))
		ev.SetStartAt(o.FireAt())
		ev.SetEndAt(o.ClosesAt())
		ev.SetLocation(o.Facility)
		ev.SetDescription(describe(o, loc))
		if o.URL != "" {
			ev.SetURL(o.URL)
		}
		if o.Weekly {
			ev.AddRrule("FREQ=WEEKLY")
		}
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("ics: write calendar: %w", err)
	}
	appLog.Debug("ics export completed", "event_count", len(entries))
	return nil
}

func eventUID(o model.Occurrence) string {
	return fmt.Sprintf("%d-%d@slotbot", o.ID, o.SignUpStart)
}

func describe(o model.Occurrence, loc *time.Location) string {
	if o.Start != nil {
		return fmt.Sprintf("%s at %s, %s", o.Activity, o.Facility, o.Start.In(loc).Format("Mon 02-01-2006 15:04"))
	}
	return fmt.Sprintf("%s at %s, %s %s", o.Activity, o.Facility, o.Weekday, o.StartTime)
}

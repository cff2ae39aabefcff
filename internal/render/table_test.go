package render

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"slotbot/internal/model"
)

func TestRow(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	o := model.Occurrence{ID: 4, Activity: "Volleyball", Weekday: "Tuesday", StartTime: "18:15", Facility: "Fieldhouse",
		Weekly: true, SignUpStart: time.Date(2026, 3, 2, 17, 15, 0, 0, time.UTC).Unix()}

	want := []string{"4", "Volleyball", "Tuesday", "18:15", "Fieldhouse", "yes", "Mon 02-03-2026 18:15"}
	if got := Row(o, loc); !reflect.DeepEqual(got, want) {
		t.Fatalf("Row = %v, want %v", got, want)
	}
}

func TestTable(t *testing.T) {
	t.Parallel()

	empty := Table(nil, time.UTC, time.Now())
	for _, h := range headers {
		if !strings.Contains(empty, h) {
			t.Fatalf("empty table misses header %q:\n%s", h, empty)
		}
	}

	entries := []model.Occurrence{
		{ID: 2, Activity: "Yoga", Weekday: "Friday", StartTime: "07:00", Facility: "Hall B", SignUpStart: 100},
		{ID: 1, Activity: "Volleyball", Weekday: "Tuesday", StartTime: "18:15", Facility: "Fieldhouse", SignUpStart: 200},
	}
	out := Table(entries, time.UTC, time.Unix(0, 0))
	yoga, volley := strings.Index(out, "Yoga"), strings.Index(out, "Volleyball")
	if yoga < 0 || volley < 0 || yoga > volley {
		t.Fatalf("rows missing or out of order:\n%s", out)
	}
}

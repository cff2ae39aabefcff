package schedule

import (
	"context"
	"fmt"
	"time"

	appLog "slotbot/internal/log"
	"slotbot/internal/model"
)

// rearm resolves and enqueues next week's occurrence of a fired weekly
// entry. It runs whether or not the claim succeeded. A resolution failure
// ends the chain; it is logged at error level and returned for the hook.
func (s *Scheduler) rearm(ctx context.Context, fired model.Occurrence) (model.Occurrence, error) {
	if s.resolver == nil {
		appLog.Error("rearm skipped; weekly chain ends here", ErrNoResolver, "id", fired.ID, "sport", fired.Activity)
		return model.Occurrence{}, ErrNoResolver
	}

	next, err := s.resolver.ResolveSuccessor(ctx, fired)
	if err == nil && !next.FireAt().After(fired.FireAt()) {
		err = fmt.Errorf("%w: %s opens %s", ErrStaleSuccessor, next, next.FireAt().Format(time.RFC3339))
	}
	if err != nil {
		appLog.Error("rearm failed; weekly chain ends here", err,
			"id", fired.ID,
			"sport", fired.Activity,
			"weekday", fired.Weekday,
			"start_time", fired.StartTime,
			"facility", fired.Facility,
		)
		return model.Occurrence{}, err
	}
	next.Weekly = true

	added := s.enqueue(ctx, next)
	appLog.Info("weekly entry re-armed",
		"previous_id", fired.ID,
		"id", added.ID,
		"sport", added.Activity,
		"next_signup", added.FireAt().Format("2006-01-02T15:04:05Z07:00"),
	)
	return added, nil
}

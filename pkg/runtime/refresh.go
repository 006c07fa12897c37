// accolade/pkg/runtime/refresh.go

package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/gorhill/cronexpr"

	"rgehrsitz/accolade/pkg/logging"
)

// ParseSchedule parses a crontab expression for RunRefresh.
func ParseSchedule(schedule string) (*cronexpr.Expression, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, logging.NewError(logging.ErrorTypeConfig, "invalid refresh schedule", err,
			map[string]interface{}{"schedule": schedule})
	}
	if expr.Next(time.Now()).IsZero() {
		return nil, logging.NewError(logging.ErrorTypeConfig, "refresh schedule never fires",
			fmt.Errorf("no time matches %q", schedule), nil)
	}
	return expr, nil
}

// RunRefresh reloads the rules each time schedule fires, until ctx is done.
// A failed reload keeps the current rules.
func (e *Engine) RunRefresh(ctx context.Context, schedule *cronexpr.Expression) {
	for {
		next := schedule.Next(time.Now())
		if next.IsZero() {
			return
		}
		logging.Logger.Debug().Time("next", next).Msg("Next rule refresh")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := e.Reload(ctx); err != nil {
			logging.LogError(logging.Logger, err)
		}
	}
}

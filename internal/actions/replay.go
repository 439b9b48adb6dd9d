package actions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jakopako/flowcheck/internal/log"
)

// Driver is what the replayer needs from a browser.
type Driver interface {
	WaitVisible(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	DoubleClick(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	SelectOption(ctx context.Context, selector, value string) error
	PressKey(ctx context.Context, selector, key string) error
	ScrollTo(ctx context.Context, selector string, x, y int) error
}

// DefaultActionTimeout bounds the wait for a single action's target.
const DefaultActionTimeout = 5 * time.Second

type Replayer struct {
	// Timeout bounds the wait for the target of a single action.
	Timeout time.Duration
	// Delay is slept after every executed action.
	Delay time.Duration
}

// SkippedAction is an action that could not be executed.
type SkippedAction struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type Result struct {
	Recorded        int             `json:"recorded"`
	Planned         int             `json:"planned"`
	ActionsReplayed int             `json:"actionsReplayed"`
	Skipped         []SkippedAction `json:"skipped,omitempty"`
}

// Replay executes the optimized form of events against d. A failing action
// is logged and skipped, the remaining actions are still executed. The
// only error returned is the cancellation of ctx.
func (r *Replayer) Replay(ctx context.Context, d Driver, events []Event) (Result, error) {
	logger := log.LoggerFromContext(ctx)
	plan := Optimize(events)
	res := Result{Recorded: len(events), Planned: len(plan)}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultActionTimeout
	}
	for i, ev := range plan {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if ev.Kind == KindNavigation {
			logger.Debug(fmt.Sprintf("action %d: navigation to %s happened as a side effect", i, ev.URL))
			continue
		}
		logger.Debug(fmt.Sprintf("action %d: %s", i, ev))
		actx, cancel := context.WithTimeout(ctx, timeout)
		err := r.execute(actx, d, ev)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			logger.Warn(fmt.Sprintf("skipping action %d (%s)", i, ev), slog.String("err", err.Error()))
			res.Skipped = append(res.Skipped, SkippedAction{Event: ev, Error: err.Error()})
			continue
		}
		res.ActionsReplayed++
		if r.Delay > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(r.Delay):
			}
		}
	}
	return res, nil
}

func (r *Replayer) execute(ctx context.Context, d Driver, ev Event) error {
	if ev.Kind == KindScroll && ev.Selector == "" {
		x, y := 0, 0
		if ev.Position != nil {
			x, y = ev.Position.X, ev.Position.Y
		}
		return d.ScrollTo(ctx, "", x, y)
	}
	if ev.Selector == "" {
		return fmt.Errorf("%s action without selector", ev.Kind)
	}
	if err := d.WaitVisible(ctx, ev.Selector); err != nil {
		return err
	}
	switch ev.Kind {
	case KindClick:
		return d.Click(ctx, ev.Selector)
	case KindDblClick:
		return d.DoubleClick(ctx, ev.Selector)
	case KindInput, KindChange:
		return d.Fill(ctx, ev.Selector, ev.Value)
	case KindSelect:
		return d.SelectOption(ctx, ev.Selector, ev.Value)
	case KindKeydown:
		return d.PressKey(ctx, ev.Selector, ev.Key)
	case KindScroll:
		x, y := 0, 0
		if ev.Position != nil {
			x, y = ev.Position.X, ev.Position.Y
		}
		return d.ScrollTo(ctx, ev.Selector, x, y)
	case KindNavigation, KindFocus, KindBlur, KindSubmit, KindHover:
		return fmt.Errorf("%s is not executable", ev.Kind)
	}
	return fmt.Errorf("unknown action type %q", ev.Kind)
}

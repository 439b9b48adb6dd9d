// Package checkpoint pauses a regression run until an operator decides how
// to go on with a screen that could not be reached.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrTimeout = errors.New("checkpoint timed out")

// Decision is the operator's answer to a checkpoint.
type Decision string

const (
	// Continue means the browser is now in the expected state.
	Continue Decision = "continue"
	Skip     Decision = "skip"
)

func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case Continue, Skip:
		return Decision(s), nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

// Request describes why the run paused.
type Request struct {
	ScreenID   string
	ScreenName string
	TargetURL  string
	CurrentURL string
	Reason     string
}

func (r Request) String() string {
	return fmt.Sprintf("screen %s (%s) could not be reached: %s\nexpected url: %s\ncurrent url:  %s",
		r.ScreenName, r.ScreenID, r.Reason, r.TargetURL, r.CurrentURL)
}

// A Checkpoint blocks until a decision is made or ctx is done.
type Checkpoint interface {
	Wait(ctx context.Context, req Request) (Decision, error)
}

// Type selects a Checkpoint implementation.
type Type string

const (
	TERMINAL_CHECKPOINT_TYPE Type = "terminal"
	OVERLAY_CHECKPOINT_TYPE  Type = "overlay"
	SKIP_CHECKPOINT_TYPE     Type = "skip"
)

type timeoutCheckpoint struct {
	cp      Checkpoint
	timeout time.Duration
}

// WithTimeout bounds every wait of cp. A timeout of zero waits forever.
func WithTimeout(cp Checkpoint, timeout time.Duration) Checkpoint {
	if timeout <= 0 {
		return cp
	}
	return &timeoutCheckpoint{cp: cp, timeout: timeout}
}

func (t *timeoutCheckpoint) Wait(ctx context.Context, req Request) (Decision, error) {
	tctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	d, err := t.cp.Wait(tctx, req)
	if err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return "", fmt.Errorf("%w after %s", ErrTimeout, t.timeout)
	}
	return d, err
}

// Fixed answers every checkpoint with the same decision, for unattended
// runs.
type Fixed Decision

func (f Fixed) Wait(ctx context.Context, req Request) (Decision, error) {
	return Decision(f), nil
}

// New returns the checkpoint of type typ. The overlay checkpoint is shown
// in page, which must be the browser being tested.
func New(ctx context.Context, typ Type, page Page, timeout time.Duration) (Checkpoint, error) {
	var cp Checkpoint
	switch typ {
	case TERMINAL_CHECKPOINT_TYPE, "":
		cp = Terminal{}
	case OVERLAY_CHECKPOINT_TYPE:
		o, err := NewOverlay(ctx, page)
		if err != nil {
			return nil, err
		}
		cp = o
	case SKIP_CHECKPOINT_TYPE:
		cp = Fixed(Skip)
	default:
		return nil, fmt.Errorf("checkpoint of type '%s' not implemented", typ)
	}
	return WithTimeout(cp, timeout), nil
}

package checkpoint

import "context"

// Channel hands checkpoint requests to another goroutine and waits for
// its decision.
type Channel struct {
	requests  chan Request
	decisions chan Decision
}

func NewChannel() *Channel {
	return &Channel{
		requests:  make(chan Request),
		decisions: make(chan Decision),
	}
}

// Requests delivers pending checkpoints.
func (c *Channel) Requests() <-chan Request {
	return c.requests
}

// Resolve answers the checkpoint currently waiting. It blocks until a
// checkpoint takes the decision or ctx is done.
func (c *Channel) Resolve(ctx context.Context, d Decision) error {
	select {
	case c.decisions <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) Wait(ctx context.Context, req Request) (Decision, error) {
	select {
	case c.requests <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case d := <-c.decisions:
		return d, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

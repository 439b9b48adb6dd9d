package domtree

import (
	"context"
	"errors"
	"fmt"
)

// An Evaluator runs a javascript expression in the page and unmarshals the
// returned value into res.
type Evaluator interface {
	Evaluate(ctx context.Context, expr string, res any) error
}

// Serialize captures the live page through ev. The call has no side effects
// on the page.
func Serialize(ctx context.Context, ev Evaluator) (*Node, error) {
	var raw RawNode
	if err := ev.Evaluate(ctx, Script(), &raw); err != nil {
		return nil, fmt.Errorf("failed to evaluate dom serializer: %w", err)
	}
	n := Normalize(&raw)
	if n == nil {
		return nil, errors.New("dom serializer returned an empty document")
	}
	return n, nil
}

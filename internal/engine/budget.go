// Package engine models the host call fabric the settlement components run
// on: every inbound call carries a finite resource budget, and each
// cross-component hop consumes from it. When the budget runs out the call
// aborts outright; earlier hops' committed effects stay visible and recovery
// is left to each component's compensating action.
package engine

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrFatalAbort indicates the call's resource budget was exhausted mid-hop.
// The aborting hop's own tentative effects must be discarded by its caller;
// effects of earlier hops remain committed.
var ErrFatalAbort = errors.New("fatal abort: call budget exhausted")

type budgetKey struct{}

// Budget tracks the remaining hop allowance for one inbound call chain.
type Budget struct {
	remaining atomic.Int64
}

// WithBudget attaches a fresh call budget of n hops to the context.
func WithBudget(ctx context.Context, n int64) context.Context {
	b := &Budget{}
	b.remaining.Store(n)
	return context.WithValue(ctx, budgetKey{}, b)
}

// Consume charges one hop against the context's budget. A context without a
// budget is unmetered, which keeps unit tests and internal maintenance calls
// free of setup ceremony.
func Consume(ctx context.Context) error {
	b, ok := ctx.Value(budgetKey{}).(*Budget)
	if !ok {
		return nil
	}
	if b.remaining.Add(-1) < 0 {
		return ErrFatalAbort
	}
	return nil
}

// Remaining reports the hops left on the context's budget, or -1 when the
// context is unmetered.
func Remaining(ctx context.Context) int64 {
	b, ok := ctx.Value(budgetKey{}).(*Budget)
	if !ok {
		return -1
	}
	if r := b.remaining.Load(); r >= 0 {
		return r
	}
	return 0
}

package reconcile

import (
	"errors"
)

var (
	// ErrNoInput means no sale record collection was supplied at all.
	ErrNoInput = errors.New("no sale records supplied")
	// ErrNoOrderRefs means not a single row in the collection carries an
	// order reference, so the snapshot is structurally unusable.
	ErrNoOrderRefs = errors.New("sale records reference no order")
)

// Pricing carries the pricing constants the engine needs. It is passed in
// explicitly so tests can exercise different pricing regimes.
type Pricing struct {
	CardDiscountCents int64
}

// Engine turns raw sale snapshots into order groups, totals, session
// statistics and product summaries. All methods are pure functions of
// their inputs: no I/O, no retained state beyond the pricing config, and
// inputs are never mutated, so concurrent callers with independent
// snapshots are safe by construction.
type Engine struct {
	pricing Pricing
}

func NewEngine(pricing Pricing) *Engine {
	if pricing.CardDiscountCents < 0 {
		pricing.CardDiscountCents = 0
	}
	return &Engine{pricing: pricing}
}

func (e *Engine) Pricing() Pricing {
	return e.pricing
}

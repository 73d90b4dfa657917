/*
Package sequence allocates invoice and credit-note numbers.

GUARANTEE:
  Uniqueness above all. Two callers never receive the same number for the
  same space. Gaps are allowed (a number taken inside a rolled-back store
  transaction on a non-transactional counter is simply skipped).

HOW:
  One counter record per numbering space, advanced by a single atomic
  increment-and-return in the store (SQL upsert with RETURNING, or a
  mutex-guarded increment in memory). Numbers are never derived by scanning
  existing documents for max(number)+1: two concurrent callers would read
  the same maximum. Hand-entered numbers go through Reserve, which raises
  the counter in the same transaction as the document insert.

FAILURE:
  If the store cannot be reached the call fails with ErrStorageUnavailable.
  There is no local fallback guess.
*/
package sequence

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/warp/pos-ledger/pos"
)

type Allocator struct {
	counters pos.CounterStore
	log      zerolog.Logger
}

type Option func(*Allocator)

func WithLogger(l zerolog.Logger) Option {
	return func(a *Allocator) { a.log = l.With().Str("component", "sequence").Logger() }
}

func New(counters pos.CounterStore, opts ...Option) *Allocator {
	a := &Allocator{counters: counters, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Next returns a number strictly greater than any previously issued in space.
func (a *Allocator) Next(ctx context.Context, space pos.Space) (int64, error) {
	if !space.Valid() {
		return 0, pos.Invalid("space", "unknown numbering space %q", space)
	}
	n, err := a.counters.NextNumber(ctx, space)
	if err != nil {
		a.log.Error().Err(err).Str("space", string(space)).Msg("number allocation failed")
		return 0, pos.Unavailable("sequence.Next", err)
	}
	if n <= 0 {
		return 0, pos.Unavailable("sequence.Next", errNonPositive{space: space, n: n})
	}
	a.log.Debug().Str("space", string(space)).Int64("number", n).Msg("number allocated")
	return n, nil
}

// Reserve records a number chosen outside the allocator (a hand-entered
// invoice number) so that Next never issues it or anything below it.
func (a *Allocator) Reserve(ctx context.Context, space pos.Space, n int64) error {
	if !space.Valid() {
		return pos.Invalid("space", "unknown numbering space %q", space)
	}
	if n <= 0 {
		return pos.Invalid("number", "must be positive, got %d", n)
	}
	if err := a.counters.RaiseCounter(ctx, space, n); err != nil {
		a.log.Error().Err(err).Str("space", string(space)).Int64("number", n).Msg("number reservation failed")
		return pos.Unavailable("sequence.Reserve", err)
	}
	return nil
}

// NextSale is Next(ctx, pos.SpaceSale).
func (a *Allocator) NextSale(ctx context.Context) (int64, error) {
	return a.Next(ctx, pos.SpaceSale)
}

// NextCreditNote is Next(ctx, pos.SpaceCreditNote).
func (a *Allocator) NextCreditNote(ctx context.Context) (int64, error) {
	return a.Next(ctx, pos.SpaceCreditNote)
}

type errNonPositive struct {
	space pos.Space
	n     int64
}

func (e errNonPositive) Error() string {
	return "counter for " + string(e.space) + " returned a non-positive value"
}

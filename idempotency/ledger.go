// Package idempotency records ids of events whose effects were applied, so redeliveries are skipped.
package idempotency

import (
	"context"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../testing/mocks/idempotency/ledger.go -package idempotency . Ledger

// Ledger is a durable set of processed event ids. An entry is never removed.
// MarkProcessed is called after the effect is applied: a crash in between leads to a redelivery
// which reapplies the effect. Handlers must tolerate that.
type Ledger interface {
	IsDuplicate(ctx context.Context, eventID string) (bool, error)
	// MarkProcessed is insert-if-absent, marking an already processed event is not an error
	MarkProcessed(ctx context.Context, eventID string) error
}

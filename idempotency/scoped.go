package idempotency

import "context"

// Scoped keeps entries of one consumer apart from the others sharing the same ledger,
// so two consumers of the same event don't skip each other.
func Scoped(ledger Ledger, scope string) Ledger {
	if scope == "" {
		return ledger
	}

	return &scopedLedger{ledger: ledger, prefix: scope + "/"}
}

type scopedLedger struct {
	ledger Ledger
	prefix string
}

func (s *scopedLedger) IsDuplicate(ctx context.Context, eventID string) (bool, error) {
	return s.ledger.IsDuplicate(ctx, s.prefix+eventID)
}

func (s *scopedLedger) MarkProcessed(ctx context.Context, eventID string) error {
	return s.ledger.MarkProcessed(ctx, s.prefix+eventID)
}

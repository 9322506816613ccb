package notify

import (
	"context"

	"gomhangpro/backend/internal/domain"
)

// Notifier pushes operational alerts to the owners' channel. Delivery is
// best effort; callers never fail a request on a notify error.
type Notifier interface {
	ShiftEnded(ctx context.Context, shift domain.Shift, staffName string)
	SweepCompleted(ctx context.Context, records []domain.SweepRecord)
}

type noop struct{}

// Noop returns a Notifier that drops everything. Used when no telegram
// token is configured and in tests.
func Noop() Notifier {
	return noop{}
}

func (noop) ShiftEnded(context.Context, domain.Shift, string)     {}
func (noop) SweepCompleted(context.Context, []domain.SweepRecord) {}

// Package audit publishes order lifecycle events. Delivery is
// at-least-once; consumers dedup on the per-order sequence.
package audit

import (
	"context"
	"log/slog"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
)

// Sink receives every status transition the coordinator commits. Publish
// must never fail the calling operation; implementations log and move on.
type Sink interface {
	Publish(ctx context.Context, ev domain.LifecycleEvent)
}

// EventAppender is the slice of the store the persistent sink needs.
type EventAppender interface {
	AppendEvent(ctx context.Context, ev domain.LifecycleEvent) error
}

// StoreSink appends events to the audit log and mirrors them to the
// structured log. A failed append is logged, not propagated: losing one
// audit row must not roll back an order that the broker already acted on.
type StoreSink struct {
	store EventAppender
}

// NewStoreSink wraps the store.
func NewStoreSink(store EventAppender) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Publish(ctx context.Context, ev domain.LifecycleEvent) {
	slog.Info("order transition",
		slog.String("order_id", ev.OrderID),
		slog.Uint64("seq", ev.Seq),
		slog.String("from", string(ev.From)),
		slog.String("to", string(ev.To)),
		slog.String("reason", ev.Reason))

	if err := s.store.AppendEvent(ctx, ev); err != nil {
		slog.Error("audit append failed",
			slog.String("order_id", ev.OrderID),
			slog.Uint64("seq", ev.Seq),
			slog.Any("error", err))
	}
}

// LogSink only writes transitions to the structured log. Used in tests and
// by the reconcile tool.
type LogSink struct{}

func (LogSink) Publish(ctx context.Context, ev domain.LifecycleEvent) {
	slog.Info("order transition",
		slog.String("order_id", ev.OrderID),
		slog.Uint64("seq", ev.Seq),
		slog.String("from", string(ev.From)),
		slog.String("to", string(ev.To)),
		slog.String("reason", ev.Reason))
}

package domain

import (
	"github.com/erdoganonur/bist-trading-platform-sub007/pkg/quant"
)

// LifecycleEvent is an immutable record of one status transition. Events are
// append-only and carry a per-order monotonic sequence so downstream
// consumers can dedup at-least-once delivery.
type LifecycleEvent struct {
	OrderID string          `json:"order_id"`
	Seq     uint64          `json:"seq"`
	From    OrderStatus     `json:"from"`
	To      OrderStatus     `json:"to"`
	Reason  string          `json:"reason,omitempty"`
	TsUnixM quant.TimeStamp `json:"ts"`
}

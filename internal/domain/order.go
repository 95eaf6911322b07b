// Package domain holds the order aggregate, its enumerations, lifecycle
// events, and the error taxonomy shared by the execution core.
package domain

import (
	"github.com/erdoganonur/bist-trading-platform-sub007/pkg/quant"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType determines which price fields an order requires.
type OrderType string

const (
	TypeMarket       OrderType = "MARKET"
	TypeLimit        OrderType = "LIMIT"
	TypeStop         OrderType = "STOP"
	TypeStopLimit    OrderType = "STOP_LIMIT"
	TypeTrailingStop OrderType = "TRAILING_STOP"
	TypeIceberg      OrderType = "ICEBERG"
)

// RequiresPrice reports whether the type needs a limit price.
func (t OrderType) RequiresPrice() bool {
	return t == TypeLimit || t == TypeStopLimit || t == TypeIceberg
}

// RequiresStopPrice reports whether the type needs a stop trigger price.
func (t OrderType) RequiresStopPrice() bool {
	return t == TypeStop || t == TypeStopLimit || t == TypeTrailingStop
}

// Valid reports whether t is a known order type.
func (t OrderType) Valid() bool {
	switch t {
	case TypeMarket, TypeLimit, TypeStop, TypeStopLimit, TypeTrailingStop, TypeIceberg:
		return true
	}
	return false
}

// TimeInForce controls how long an order stays working.
type TimeInForce string

const (
	TIFDay TimeInForce = "DAY"
	TIFGTC TimeInForce = "GTC"
	TIFIOC TimeInForce = "IOC"
	TIFFOK TimeInForce = "FOK"
)

// OrderStatus is the lifecycle state of an order. Status only ever changes
// through the state machine transition table; nothing else assigns it.
type OrderStatus string

const (
	StatusPending        OrderStatus = "PENDING"
	StatusSent           OrderStatus = "SENT"
	StatusActive         OrderStatus = "ACTIVE"
	StatusPartiallyFill  OrderStatus = "PARTIALLY_FILLED"
	StatusFilled         OrderStatus = "FILLED"
	StatusPendingCancel  OrderStatus = "PENDING_CANCEL"
	StatusCancelRejected OrderStatus = "CANCEL_REJECTED"
	StatusPendingReplace OrderStatus = "PENDING_REPLACE"
	StatusReplaceReject  OrderStatus = "REPLACE_REJECTED"
	StatusCancelled      OrderStatus = "CANCELLED"
	StatusRejected       OrderStatus = "REJECTED"
	StatusExpired        OrderStatus = "EXPIRED"
	StatusError          OrderStatus = "ERROR"
	StatusSuspended      OrderStatus = "SUSPENDED"
)

// Order is the central aggregate. All mutations go through the coordinator
// under the per-order lock; Status only changes via the state machine.
type Order struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id"`
	ExternalID    string `json:"external_id,omitempty"` // broker-assigned, set exactly once

	Symbol      string            `json:"symbol"`
	Side        Side              `json:"side"`
	Type        OrderType         `json:"type"`
	Quantity    int64             `json:"qty"` // lots
	PriceMicros quant.PriceMicros `json:"price,omitempty"`
	StopMicros  quant.PriceMicros `json:"stop_price,omitempty"`
	TimeInForce TimeInForce       `json:"tif"`

	Status           OrderStatus       `json:"status"`
	PriorStatus      OrderStatus       `json:"prior_status,omitempty"` // return target after CANCEL/REPLACE_REJECTED
	FilledQty        int64             `json:"filled_qty"`
	AvgPriceMicros   quant.PriceMicros `json:"avg_price"`
	CommissionMicros int64             `json:"commission"`
	LastExecSeq      uint64            `json:"last_exec_seq"` // highest applied execution-report sequence
	EventSeq         uint64            `json:"event_seq"`     // per-order audit sequence

	Version uint64 `json:"version"` // optimistic concurrency; 0 = not yet persisted

	CreatedUnixM   quant.TimeStamp `json:"created_at"`
	UpdatedUnixM   quant.TimeStamp `json:"updated_at"`
	FilledUnixM    quant.TimeStamp `json:"filled_at,omitempty"`
	CancelledUnixM quant.TimeStamp `json:"cancelled_at,omitempty"`

	RejectReason string `json:"reject_reason,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`
}

// RemainingQty is always recomputed, never stored independently.
func (o *Order) RemainingQty() int64 {
	return o.Quantity - o.FilledQty
}

// Clone returns a deep copy for handing snapshots to callers.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}

// NewOrderRequest is the inbound submit command.
type NewOrderRequest struct {
	ClientOrderID string            `json:"client_order_id"`
	Symbol        string            `json:"symbol"`
	Side          Side              `json:"side"`
	Type          OrderType         `json:"type"`
	Quantity      int64             `json:"qty"`
	PriceMicros   quant.PriceMicros `json:"price,omitempty"`
	StopMicros    quant.PriceMicros `json:"stop_price,omitempty"`
	TimeInForce   TimeInForce       `json:"tif"`
}

// Validate enforces the per-type required fields before any broker call.
func (r *NewOrderRequest) Validate() error {
	if r.ClientOrderID == "" {
		return &ValidationError{Message: "client_order_id is required"}
	}
	if r.Symbol == "" {
		return &ValidationError{Message: "symbol is required"}
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return &ValidationError{Message: "side must be BUY or SELL"}
	}
	if !r.Type.Valid() {
		return &ValidationError{Message: "unknown order type: " + string(r.Type)}
	}
	if r.Quantity <= 0 {
		return &ValidationError{Message: "quantity must be positive"}
	}
	if r.Type.RequiresPrice() && r.PriceMicros <= 0 {
		return &ValidationError{Message: string(r.Type) + " order requires a price"}
	}
	if r.Type == TypeMarket && r.PriceMicros != 0 {
		return &ValidationError{Message: "MARKET order must not carry a price"}
	}
	if r.Type.RequiresStopPrice() && r.StopMicros <= 0 {
		return &ValidationError{Message: string(r.Type) + " order requires a stop price"}
	}
	return nil
}

// ModifyRequest carries the replaceable terms of a working order.
// Zero values mean "leave unchanged".
type ModifyRequest struct {
	Quantity    int64             `json:"qty,omitempty"`
	PriceMicros quant.PriceMicros `json:"price,omitempty"`
	StopMicros  quant.PriceMicros `json:"stop_price,omitempty"`
}

// Validate rejects modifications that could never be legal regardless of
// the order they target.
func (r *ModifyRequest) Validate() error {
	if r.Quantity == 0 && r.PriceMicros == 0 && r.StopMicros == 0 {
		return &ValidationError{Message: "modify request must change at least one field"}
	}
	if r.Quantity < 0 {
		return &ValidationError{Message: "quantity must be positive"}
	}
	if r.PriceMicros < 0 || r.StopMicros < 0 {
		return &ValidationError{Message: "price must be positive"}
	}
	return nil
}

// ExecutionReport is the inbound broker event applied by the coordinator.
// FilledQty is cumulative; Seq is the broker-assigned monotonic execution
// sequence used for duplicate and out-of-order detection.
type ExecutionReport struct {
	OrderID     string            `json:"order_id,omitempty"`
	ExternalID  string            `json:"external_id,omitempty"`
	Seq         uint64            `json:"seq"`
	Status      OrderStatus       `json:"status,omitempty"`
	FilledQty   int64             `json:"filled_qty"` // cumulative
	PriceMicros quant.PriceMicros `json:"price"`
	Reason      string            `json:"reason,omitempty"`
	TsUnixM     quant.TimeStamp   `json:"ts"`
}

package domain

import (
	"errors"
	"fmt"
	"testing"
)

func validRequest() NewOrderRequest {
	return NewOrderRequest{
		ClientOrderID: "cli-1",
		Symbol:        "AKBNK",
		Side:          SideBuy,
		Type:          TypeLimit,
		Quantity:      1000,
		PriceMicros:   45_500_000,
		TimeInForce:   TIFDay,
	}
}

func TestNewOrderRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*NewOrderRequest)
		wantOK bool
	}{
		{"valid limit", func(r *NewOrderRequest) {}, true},
		{"missing client id", func(r *NewOrderRequest) { r.ClientOrderID = "" }, false},
		{"missing symbol", func(r *NewOrderRequest) { r.Symbol = "" }, false},
		{"bad side", func(r *NewOrderRequest) { r.Side = "HOLD" }, false},
		{"bad type", func(r *NewOrderRequest) { r.Type = "TWAP" }, false},
		{"zero qty", func(r *NewOrderRequest) { r.Quantity = 0 }, false},
		{"negative qty", func(r *NewOrderRequest) { r.Quantity = -5 }, false},
		{"limit without price", func(r *NewOrderRequest) { r.PriceMicros = 0 }, false},
		{"market with price", func(r *NewOrderRequest) { r.Type = TypeMarket }, false},
		{"market clean", func(r *NewOrderRequest) { r.Type = TypeMarket; r.PriceMicros = 0 }, true},
		{"stop without trigger", func(r *NewOrderRequest) { r.Type = TypeStop; r.PriceMicros = 0 }, false},
		{"stop with trigger", func(r *NewOrderRequest) {
			r.Type = TypeStop
			r.PriceMicros = 0
			r.StopMicros = 44_000_000
		}, true},
		{"stop limit needs both", func(r *NewOrderRequest) { r.Type = TypeStopLimit }, false},
		{"stop limit complete", func(r *NewOrderRequest) {
			r.Type = TypeStopLimit
			r.StopMicros = 44_000_000
		}, true},
		{"trailing stop", func(r *NewOrderRequest) {
			r.Type = TypeTrailingStop
			r.PriceMicros = 0
			r.StopMicros = 1_000_000
		}, true},
		{"iceberg needs price", func(r *NewOrderRequest) { r.Type = TypeIceberg; r.PriceMicros = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantOK && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.wantOK {
				var ve *ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("Validate() = %v, want *ValidationError", err)
				}
			}
		})
	}
}

func TestModifyRequest_Validate(t *testing.T) {
	empty := ModifyRequest{}
	if err := empty.Validate(); err == nil {
		t.Error("empty modify request should fail validation")
	}

	ok := ModifyRequest{PriceMicros: 46_000_000}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	neg := ModifyRequest{Quantity: -1}
	if err := neg.Validate(); err == nil {
		t.Error("negative quantity should fail validation")
	}
}

func TestRemainingQty(t *testing.T) {
	o := &Order{Quantity: 1000, FilledQty: 300}
	if got := o.RemainingQty(); got != 700 {
		t.Errorf("RemainingQty() = %d, want 700", got)
	}
}

func TestErrorClassification(t *testing.T) {
	transient := &TransientError{Op: "place", Err: errors.New("timeout")}
	if !IsTransient(transient) {
		t.Error("TransientError should classify as transient")
	}
	if !IsTransient(fmt.Errorf("call failed: %w", ErrSessionInvalid)) {
		t.Error("wrapped ErrSessionInvalid should classify as transient")
	}
	if IsTransient(&RejectionError{Reason: "insufficient balance"}) {
		t.Error("business rejection must never be transient")
	}
	if IsTransient(&AuthError{Reason: "bad credentials", Fatal: true}) {
		t.Error("credential failure must never be transient")
	}

	if !IsRejection(fmt.Errorf("wrapped: %w", &RejectionError{Reason: "market closed"})) {
		t.Error("wrapped RejectionError should classify as rejection")
	}

	if !IsFatalAuth(&AuthError{Reason: "bad credentials", Fatal: true}) {
		t.Error("fatal auth error not detected")
	}
	if IsFatalAuth(&AuthError{Reason: "broker timeout during login", Fatal: false}) {
		t.Error("non-fatal auth error misclassified as fatal")
	}
}

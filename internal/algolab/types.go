package algolab

import "encoding/json"

// envelope is the response wrapper every AlgoLab endpoint returns.
// Content is endpoint-specific and decoded by the caller.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Content json.RawMessage `json:"content"`
}

// loginRequest carries AES-encrypted credentials to /api/LoginUser.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginContent is the LoginUser response: a short-lived token that must be
// confirmed with the SMS code.
type loginContent struct {
	Token string `json:"token"`
}

// controlRequest confirms the login token with the SMS code at
// /api/LoginUserControl. Both fields are AES-encrypted.
type controlRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"` // the SMS code
}

// controlContent is the LoginUserControl response: the session hash used as
// the Authorization header on every subsequent call.
type controlContent struct {
	Hash string `json:"hash"`
}

// sendOrderRequest is the /api/SendOrder payload. Field order matters: the
// Checker hash is computed over the serialized body, and the API computes
// its own over the same key order.
type sendOrderRequest struct {
	Symbol     string `json:"symbol"`
	Direction  string `json:"direction"` // "BUY" or "SELL"
	PriceType  string `json:"pricetype"` // "piyasa" (market) or "limit"
	Price      string `json:"price"`     // empty for market orders
	Lot        string `json:"lot"`
	SMS        bool   `json:"sms"`
	Email      bool   `json:"email"`
	SubAccount string `json:"subAccount"`
}

// modifyOrderRequest is the /api/ModifyOrder payload.
type modifyOrderRequest struct {
	ID         string `json:"id"`
	Price      string `json:"price"`
	Lot        string `json:"lot"`
	VIOP       bool   `json:"viop"`
	SubAccount string `json:"subAccount"`
}

// deleteOrderRequest is the /api/DeleteOrder payload.
type deleteOrderRequest struct {
	ID         string `json:"id"`
	SubAccount string `json:"subAccount"`
}

// orderContent is the broker's answer to order mutations. For SendOrder the
// content carries the broker-assigned order id.
type orderContent struct {
	ID string `json:"id"`
}

// wsSubscribe is the subscription frame sent after the stream connects.
// Type "O" selects order status messages, "T" last trades.
type wsSubscribe struct {
	Token   string   `json:"token"`
	Type    string   `json:"Type"`
	Symbols []string `json:"Symbols"`
}

// wsMessage is one inbound stream frame.
type wsMessage struct {
	Type    string          `json:"Type"`
	Content json.RawMessage `json:"Content"`
}

// wsOrderStatus is the Type "O" payload: an execution report.
// Filled quantity is cumulative; seq is the broker's per-order
// execution sequence.
type wsOrderStatus struct {
	OrderID   string `json:"id"`
	Seq       uint64 `json:"seq"`
	Status    string `json:"status"`
	FilledLot int64  `json:"filledlot"`
	Price     string `json:"price"`
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"` // unix millis
}

// wsTrade is the Type "T" payload: a last-trade tick.
type wsTrade struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Time   string `json:"time"` // unix millis
}

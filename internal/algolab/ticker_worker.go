package algolab

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/infra"
	"github.com/erdoganonur/bist-trading-platform-sub007/pkg/quant"
)

// PriceSink receives last-trade prices from the ticker stream.
type PriceSink interface {
	SetLastPrice(symbol string, price quant.PriceMicros, ts quant.TimeStamp)
}

// TickerWorker subscribes to the last-trade stream for the configured
// symbols and feeds the price cache the coordinator consults for
// limit-price sanity checks.
type TickerWorker struct {
	url     string
	symbols []string
	session *SessionManager
	sink    PriceSink

	worker *infra.WSWorker
}

// NewTickerWorker builds the last-trade stream worker.
func NewTickerWorker(cfg *infra.Config, symbols []string, session *SessionManager, sink PriceSink) *TickerWorker {
	w := &TickerWorker{
		url:     cfg.AlgoLab.WSURL,
		symbols: symbols,
		session: session,
		sink:    sink,
	}
	w.worker = infra.NewWSWorker(w)
	return w
}

// Start launches the stream in the background.
func (w *TickerWorker) Start(ctx context.Context) {
	w.worker.Start(ctx)
}

// Stop tears the stream down.
func (w *TickerWorker) Stop() {
	w.worker.Stop()
}

func (w *TickerWorker) ID() string  { return "ALGOLAB_TICKS" }
func (w *TickerWorker) URL() string { return w.url }

func (w *TickerWorker) OnConnect(ctx context.Context, conn *infra.WSWorker) error {
	hash, err := w.session.Token(ctx)
	if err != nil {
		return err
	}

	sub := wsSubscribe{Token: hash, Type: "T", Symbols: w.symbols}
	b, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return conn.Write(websocket.TextMessage, b)
}

func (w *TickerWorker) OnMessage(ctx context.Context, msg []byte) {
	if string(msg) == "pong" {
		return
	}

	var frame wsMessage
	if err := json.Unmarshal(msg, &frame); err != nil || frame.Type != "T" {
		return
	}

	var trade wsTrade
	if err := json.Unmarshal(frame.Content, &trade); err != nil {
		return
	}
	if trade.Symbol == "" {
		return
	}

	price, err := quant.ParsePriceMicros(trade.Price)
	if err != nil || price <= 0 {
		slog.Debug("unusable trade tick",
			slog.String("symbol", trade.Symbol),
			slog.String("price", trade.Price))
		return
	}

	var ts quant.TimeStamp
	if trade.Time != "" {
		ts, _ = quant.ParseTimeStamp(trade.Time)
	}

	w.sink.SetLastPrice(trade.Symbol, price, ts)
}

func (w *TickerWorker) OnPing(ctx context.Context, conn *infra.WSWorker) error {
	return conn.Write(websocket.TextMessage, []byte("ping"))
}

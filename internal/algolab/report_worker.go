package algolab

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/infra"
	"github.com/erdoganonur/bist-trading-platform-sub007/pkg/quant"
)

// ReportSink consumes execution reports from the stream. The coordinator
// implements it; report application runs on the stream goroutine, so the
// sink must do its own locking.
type ReportSink interface {
	ApplyReport(ctx context.Context, rep domain.ExecutionReport) error
}

// ReportWorker subscribes to the order status stream and forwards every
// execution report to the sink. Reconnects, read deadlines, and pings are
// handled by the underlying stream worker.
type ReportWorker struct {
	url     string
	session *SessionManager
	sink    ReportSink

	worker *infra.WSWorker
}

// NewReportWorker builds the execution report stream worker.
func NewReportWorker(cfg *infra.Config, session *SessionManager, sink ReportSink) *ReportWorker {
	w := &ReportWorker{
		url:     cfg.AlgoLab.WSURL,
		session: session,
		sink:    sink,
	}
	w.worker = infra.NewWSWorker(w)
	return w
}

// Start launches the stream in the background.
func (w *ReportWorker) Start(ctx context.Context) {
	w.worker.Start(ctx)
}

// Stop tears the stream down.
func (w *ReportWorker) Stop() {
	w.worker.Stop()
}

func (w *ReportWorker) ID() string  { return "ALGOLAB_REPORTS" }
func (w *ReportWorker) URL() string { return w.url }

// OnConnect authenticates the stream and subscribes to order status
// messages. A missing session is an error so the worker backs off and
// retries once the session manager has logged in.
func (w *ReportWorker) OnConnect(ctx context.Context, conn *infra.WSWorker) error {
	hash, err := w.session.Token(ctx)
	if err != nil {
		return err
	}

	sub := wsSubscribe{Token: hash, Type: "O", Symbols: []string{"ALL"}}
	b, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return conn.Write(websocket.TextMessage, b)
}

func (w *ReportWorker) OnMessage(ctx context.Context, msg []byte) {
	if string(msg) == "pong" {
		return
	}

	var frame wsMessage
	if err := json.Unmarshal(msg, &frame); err != nil || frame.Type != "O" {
		return
	}

	var status wsOrderStatus
	if err := json.Unmarshal(frame.Content, &status); err != nil {
		slog.Warn("malformed order status frame", slog.Any("error", err))
		return
	}

	rep, err := toExecutionReport(status)
	if err != nil {
		slog.Warn("unusable order status frame",
			slog.String("order_id", status.OrderID),
			slog.Any("error", err))
		return
	}

	if err := w.sink.ApplyReport(ctx, rep); err != nil {
		slog.Error("apply execution report failed",
			slog.String("external_id", rep.ExternalID),
			slog.Uint64("seq", rep.Seq),
			slog.Any("error", err))
	}
}

func (w *ReportWorker) OnPing(ctx context.Context, conn *infra.WSWorker) error {
	return conn.Write(websocket.TextMessage, []byte("ping"))
}

// toExecutionReport converts a stream payload to the domain report. Prices
// arrive as decimal strings and are parsed to micros without float64.
func toExecutionReport(s wsOrderStatus) (domain.ExecutionReport, error) {
	price, err := quant.ParsePriceMicros(s.Price)
	if err != nil {
		return domain.ExecutionReport{}, err
	}

	var ts quant.TimeStamp
	if s.Timestamp != "" {
		ts, err = quant.ParseTimeStamp(s.Timestamp)
		if err != nil {
			return domain.ExecutionReport{}, err
		}
	}

	return domain.ExecutionReport{
		ExternalID:  s.OrderID,
		Seq:         s.Seq,
		Status:      mapBrokerStatus(s.Status),
		FilledQty:   s.FilledLot,
		PriceMicros: price,
		Reason:      s.Reason,
		TsUnixM:     ts,
	}, nil
}

// mapBrokerStatus translates the broker's status vocabulary. Unknown values
// map to empty, which the coordinator treats as a pure fill update.
func mapBrokerStatus(s string) domain.OrderStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WAITING", "ACTIVE", "OPEN":
		return domain.StatusActive
	case "PARTIAL", "PARTIALLY_FILLED":
		return domain.StatusPartiallyFill
	case "FILLED", "DONE":
		return domain.StatusFilled
	case "CANCELLED", "DELETED":
		return domain.StatusCancelled
	case "REJECTED":
		return domain.StatusRejected
	case "EXPIRED":
		return domain.StatusExpired
	case "SUSPENDED":
		return domain.StatusSuspended
	default:
		return ""
	}
}

package oms

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
)

// Gateway is the coordinator's broker port. Session tokens are passed in
// by the retry loop so the gateway stays stateless about authentication.
type Gateway interface {
	Place(ctx context.Context, token string, o *domain.Order) (externalID string, err error)
	Modify(ctx context.Context, token, externalID string, req domain.ModifyRequest) error
	Cancel(ctx context.Context, token, externalID string) error
}

// Session supplies valid broker tokens and accepts invalidation when the
// broker rejects one.
type Session interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// ReportApplier consumes execution reports. The coordinator implements it.
type ReportApplier interface {
	ApplyReport(ctx context.Context, rep domain.ExecutionReport) error
}

// StaticSession is the paper-mode Session: a fixed token, nothing to
// invalidate.
type StaticSession struct{}

func (StaticSession) Token(ctx context.Context) (string, error) { return "paper-session", nil }
func (StaticSession) Invalidate()                               {}

// simOrder tracks one order inside the simulator.
type simOrder struct {
	order     domain.Order
	seq       uint64
	cancelled bool
	filled    bool
}

// SimGateway is the paper-mode broker. Every placed order is acknowledged
// and then filled at its limit price (or the cached last trade for market
// orders) after a short delay, through the same report path live orders
// use. Used for rehearsing strategies without touching the exchange.
type SimGateway struct {
	prices    *PriceCache
	fillDelay time.Duration

	mu     sync.Mutex
	sink   ReportApplier
	orders map[string]*simOrder
}

// NewSimGateway creates the simulator. The sink is attached later because
// the coordinator and the gateway reference each other.
func NewSimGateway(prices *PriceCache, fillDelay time.Duration) *SimGateway {
	return &SimGateway{
		prices:    prices,
		fillDelay: fillDelay,
		orders:    make(map[string]*simOrder),
	}
}

// AttachSink wires the report consumer. Must be called before Place.
func (g *SimGateway) AttachSink(sink ReportApplier) {
	g.mu.Lock()
	g.sink = sink
	g.mu.Unlock()
}

// Place accepts the order and schedules its acknowledgement and fill.
func (g *SimGateway) Place(ctx context.Context, token string, o *domain.Order) (string, error) {
	execPrice := o.PriceMicros
	if o.Type == domain.TypeMarket {
		last, ok := g.prices.Last(o.Symbol)
		if !ok {
			return "", &domain.RejectionError{Reason: "no market price for " + o.Symbol}
		}
		execPrice = last
	}

	extID := "SIM-" + uuid.NewString()

	g.mu.Lock()
	sim := &simOrder{order: *o}
	sim.order.ExternalID = extID
	sim.order.PriceMicros = execPrice
	g.orders[extID] = sim
	sink := g.sink
	g.mu.Unlock()

	if sink == nil {
		return "", fmt.Errorf("sim gateway has no report sink attached")
	}

	go g.run(extID, sink)
	return extID, nil
}

// Modify updates the resting terms; the next fill uses them.
func (g *SimGateway) Modify(ctx context.Context, token, externalID string, req domain.ModifyRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	sim, ok := g.orders[externalID]
	if !ok {
		return &domain.RejectionError{Reason: "unknown order " + externalID}
	}
	if sim.filled || sim.cancelled {
		return &domain.RejectionError{Reason: "order no longer working"}
	}
	if req.PriceMicros > 0 {
		sim.order.PriceMicros = req.PriceMicros
	}
	if req.Quantity > 0 {
		sim.order.Quantity = req.Quantity
	}
	return nil
}

// Cancel stops a working order and emits the cancelled report.
func (g *SimGateway) Cancel(ctx context.Context, token, externalID string) error {
	g.mu.Lock()
	sim, ok := g.orders[externalID]
	if !ok {
		g.mu.Unlock()
		return &domain.RejectionError{Reason: "unknown order " + externalID}
	}
	if sim.filled {
		g.mu.Unlock()
		return &domain.RejectionError{Reason: "order already filled"}
	}
	sim.cancelled = true
	sim.seq++
	rep := domain.ExecutionReport{
		ExternalID: externalID,
		Seq:        sim.seq,
		Status:     domain.StatusCancelled,
		FilledQty:  sim.order.FilledQty,
	}
	sink := g.sink
	g.mu.Unlock()

	go sink.ApplyReport(context.Background(), rep)
	return nil
}

// run emits the acknowledgement and, after the fill delay, the full fill.
// The initial delay leaves the coordinator time to persist the dispatch
// before the first report arrives.
func (g *SimGateway) run(extID string, sink ReportApplier) {
	time.Sleep(g.fillDelay)

	g.mu.Lock()
	sim := g.orders[extID]
	if sim == nil || sim.cancelled {
		g.mu.Unlock()
		return
	}
	sim.seq++
	ack := domain.ExecutionReport{
		ExternalID: extID,
		Seq:        sim.seq,
		Status:     domain.StatusActive,
	}
	g.mu.Unlock()

	sink.ApplyReport(context.Background(), ack)

	time.Sleep(g.fillDelay)

	g.mu.Lock()
	sim = g.orders[extID]
	if sim == nil || sim.cancelled {
		g.mu.Unlock()
		return
	}
	sim.filled = true
	sim.seq++
	fill := domain.ExecutionReport{
		ExternalID:  extID,
		Seq:         sim.seq,
		Status:      domain.StatusFilled,
		FilledQty:   sim.order.Quantity,
		PriceMicros: sim.order.PriceMicros,
	}
	g.mu.Unlock()

	sink.ApplyReport(context.Background(), fill)
}

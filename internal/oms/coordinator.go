package oms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/audit"
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/infra"
	"github.com/erdoganonur/bist-trading-platform-sub007/pkg/quant"
)

// Store is the slice of the persistence layer the coordinator needs.
type Store interface {
	Save(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	GetByClientOrderID(ctx context.Context, clientOrderID string) (*domain.Order, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Order, error)
	ListByStatus(ctx context.Context, statuses ...domain.OrderStatus) ([]*domain.Order, error)
}

// Coordinator owns every order mutation. Each operation runs under the
// order's keyed lock, drives the state machine, persists through the
// version-checked store, and publishes one audit event per transition.
// Broker calls go through the retry loop, which refreshes the session
// between attempts and retries only transient failures.
type Coordinator struct {
	store   Store
	gateway Gateway
	session Session
	policy  infra.RetryPolicy
	sink    audit.Sink
	prices  *PriceCache

	collarPct int
	locks     *lockRegistry
	now       func() quant.TimeStamp
}

// NewCoordinator wires the execution core. collarPct of 0 disables the
// limit-price collar check.
func NewCoordinator(store Store, gateway Gateway, session Session, policy infra.RetryPolicy, sink audit.Sink, prices *PriceCache, collarPct int) *Coordinator {
	return &Coordinator{
		store:     store,
		gateway:   gateway,
		session:   session,
		policy:    policy,
		sink:      sink,
		prices:    prices,
		collarPct: collarPct,
		locks:     newLockRegistry(),
		now:       func() quant.TimeStamp { return quant.TimeStamp(time.Now().UnixMicro()) },
	}
}

// Submit validates and persists a new order, then places it at the broker.
// A clientOrderID seen before returns the existing order unchanged. On
// rejection the order lands in REJECTED; on retry exhaustion in ERROR with
// ErrBrokerUnavailable returned for the caller.
func (c *Coordinator) Submit(ctx context.Context, req domain.NewOrderRequest) (*domain.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := c.checkCollar(req); err != nil {
		return nil, err
	}

	if existing, err := c.store.GetByClientOrderID(ctx, req.ClientOrderID); err == nil {
		slog.Info("duplicate submit returned existing order",
			slog.String("client_order_id", req.ClientOrderID),
			slog.String("order_id", existing.ID))
		return existing, nil
	} else if !errors.Is(err, domain.ErrOrderNotFound) {
		return nil, err
	}

	now := c.now()
	o := &domain.Order{
		ID:            uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		PriceMicros:   req.PriceMicros,
		StopMicros:    req.StopMicros,
		TimeInForce:   req.TimeInForce,
		Status:        domain.StatusPending,
		CreatedUnixM:  now,
		UpdatedUnixM:  now,
	}

	unlock := c.locks.Lock(o.ID)
	defer unlock()

	o.EventSeq = 1
	events := []domain.LifecycleEvent{{
		OrderID: o.ID, Seq: 1, To: domain.StatusPending, Reason: "accepted", TsUnixM: now,
	}}
	if err := c.commit(ctx, o, events); err != nil {
		if errors.Is(err, domain.ErrDuplicateOrder) {
			// Lost the race against a concurrent submit with the same key.
			return c.store.GetByClientOrderID(ctx, req.ClientOrderID)
		}
		return nil, err
	}
	events = nil

	var extID string
	err := c.brokerCall(ctx, "place", func(token string) error {
		id, perr := c.gateway.Place(ctx, token, o)
		if perr == nil {
			extID = id
		}
		return perr
	})

	switch {
	case err == nil:
		o.ExternalID = extID
		if serr := c.step(o, EventSentOK, "", &events); serr != nil {
			return o, serr
		}
		if cerr := c.commit(ctx, o, events); cerr != nil {
			return o, cerr
		}
		return o, nil

	case domain.IsRejection(err):
		o.RejectReason = err.Error()
		if serr := c.step(o, EventReject, err.Error(), &events); serr != nil {
			return o, serr
		}
		if cerr := c.commit(ctx, o, events); cerr != nil {
			return o, cerr
		}
		return o, err

	default:
		o.RejectReason = err.Error()
		if serr := c.step(o, EventError, err.Error(), &events); serr != nil {
			return o, serr
		}
		if cerr := c.commit(ctx, o, events); cerr != nil {
			return o, cerr
		}
		return o, err
	}
}

// Modify replaces price, stop, or quantity of a working order. The order
// passes through PENDING_REPLACE; a broker rejection returns it to where
// it was.
func (c *Coordinator) Modify(ctx context.Context, orderID string, req domain.ModifyRequest) (*domain.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(orderID)
	defer unlock()

	o, err := c.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !CanModify(o.Status) {
		return o, &domain.InvalidTransitionError{From: o.Status, Event: string(EventReplaceReq)}
	}
	if req.Quantity > 0 && req.Quantity < o.FilledQty {
		return o, &domain.ValidationError{
			Message: fmt.Sprintf("cannot reduce quantity to %d below filled %d", req.Quantity, o.FilledQty),
		}
	}

	var events []domain.LifecycleEvent
	if err := c.step(o, EventReplaceReq, "", &events); err != nil {
		return o, err
	}
	if err := c.commit(ctx, o, events); err != nil {
		return o, err
	}
	events = nil

	err = c.brokerCall(ctx, "modify", func(token string) error {
		return c.gateway.Modify(ctx, token, o.ExternalID, req)
	})

	switch {
	case err == nil:
		if req.PriceMicros > 0 {
			o.PriceMicros = req.PriceMicros
		}
		if req.StopMicros > 0 {
			o.StopMicros = req.StopMicros
		}
		if req.Quantity > 0 {
			o.Quantity = req.Quantity
		}
		if serr := c.step(o, EventReplaceAck, "", &events); serr != nil {
			return o, serr
		}
		// A partially filled order resumes as partially filled.
		if o.FilledQty > 0 && o.FilledQty < o.Quantity {
			if serr := c.step(o, EventPartialFill, "carried fills", &events); serr != nil {
				return o, serr
			}
		}
		if cerr := c.commit(ctx, o, events); cerr != nil {
			return o, cerr
		}
		return o, nil

	case domain.IsRejection(err):
		if serr := c.step(o, EventReplaceReject, err.Error(), &events); serr != nil {
			return o, serr
		}
		if serr := c.resume(o, "replace rejected", &events); serr != nil {
			return o, serr
		}
		if cerr := c.commit(ctx, o, events); cerr != nil {
			return o, cerr
		}
		return o, err

	default:
		if serr := c.step(o, EventError, err.Error(), &events); serr != nil {
			return o, serr
		}
		if cerr := c.commit(ctx, o, events); cerr != nil {
			return o, cerr
		}
		return o, err
	}
}

// Cancel withdraws a working order. Cancelling a terminal order is a
// no-op; a cancel already in flight is returned as-is. An order that
// never reached the broker is cancelled locally.
func (c *Coordinator) Cancel(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	unlock := c.locks.Lock(orderID)
	defer unlock()

	o, err := c.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if IsFinal(o.Status) {
		slog.Info("cancel of terminal order ignored",
			slog.String("order_id", o.ID),
			slog.String("status", string(o.Status)))
		return o, nil
	}
	if o.Status == domain.StatusPendingCancel {
		return o, nil
	}
	if !CanCancel(o.Status) {
		return o, &domain.InvalidTransitionError{From: o.Status, Event: string(EventCancelRequest)}
	}

	var events []domain.LifecycleEvent
	if err := c.step(o, EventCancelRequest, reason, &events); err != nil {
		return o, err
	}

	if o.ExternalID == "" {
		// Never dispatched; no broker round trip needed.
		o.CancelReason = reason
		if serr := c.step(o, EventCancelAck, "cancelled before dispatch", &events); serr != nil {
			return o, serr
		}
		if cerr := c.commit(ctx, o, events); cerr != nil {
			return o, cerr
		}
		return o, nil
	}

	if err := c.commit(ctx, o, events); err != nil {
		return o, err
	}
	events = nil

	err = c.brokerCall(ctx, "cancel", func(token string) error {
		return c.gateway.Cancel(ctx, token, o.ExternalID)
	})

	switch {
	case err == nil:
		o.CancelReason = reason
		if serr := c.step(o, EventCancelAck, reason, &events); serr != nil {
			return o, serr
		}
		if cerr := c.commit(ctx, o, events); cerr != nil {
			return o, cerr
		}
		return o, nil

	case domain.IsRejection(err):
		if serr := c.step(o, EventCancelReject, err.Error(), &events); serr != nil {
			return o, serr
		}
		if serr := c.resume(o, "cancel rejected", &events); serr != nil {
			return o, serr
		}
		if cerr := c.commit(ctx, o, events); cerr != nil {
			return o, cerr
		}
		return o, err

	default:
		if serr := c.step(o, EventError, err.Error(), &events); serr != nil {
			return o, serr
		}
		if cerr := c.commit(ctx, o, events); cerr != nil {
			return o, cerr
		}
		return o, err
	}
}

// ApplyReport processes one execution report from the broker stream:
// sequence dedup, cumulative fill accounting with weighted average price,
// and status sync for broker-initiated transitions. Reports replayed or
// delivered out of order are dropped by the sequence check.
func (c *Coordinator) ApplyReport(ctx context.Context, rep domain.ExecutionReport) error {
	resolved, err := c.resolve(ctx, rep)
	if err != nil {
		return err
	}

	unlock := c.locks.Lock(resolved.ID)
	defer unlock()

	// Reload under the lock; the resolved copy may be stale.
	o, err := c.store.Get(ctx, resolved.ID)
	if err != nil {
		return err
	}

	if rep.Seq != 0 && rep.Seq <= o.LastExecSeq {
		slog.Debug("duplicate execution report dropped",
			slog.String("order_id", o.ID),
			slog.Uint64("seq", rep.Seq),
			slog.Uint64("last_seq", o.LastExecSeq))
		return nil
	}

	var events []domain.LifecycleEvent

	if rep.FilledQty > o.FilledQty {
		c.applyFill(o, rep, &events)
	}

	if rep.Status != "" && rep.Status != o.Status {
		c.syncStatus(o, rep, &events)
	}

	if rep.Seq > o.LastExecSeq {
		o.LastExecSeq = rep.Seq
	}

	return c.commit(ctx, o, events)
}

// applyFill folds a cumulative fill into the order. An overfill marks the
// order ERROR for manual reconciliation.
func (c *Coordinator) applyFill(o *domain.Order, rep domain.ExecutionReport, events *[]domain.LifecycleEvent) {
	if rep.FilledQty > o.Quantity {
		c.tryStep(o, EventError,
			fmt.Sprintf("overfill: reported %d of %d", rep.FilledQty, o.Quantity), events)
		return
	}

	// A fill implies the broker accepted the order even if the ack never
	// arrived.
	if o.Status == domain.StatusSent || o.Status == domain.StatusSuspended {
		c.tryStep(o, EventBrokerAck, "implied by fill", events)
	}

	delta := rep.FilledQty - o.FilledQty
	o.AvgPriceMicros = quant.WeightedAverage(o.AvgPriceMicros, o.FilledQty, rep.PriceMicros, delta)
	o.FilledQty = rep.FilledQty

	ev := EventPartialFill
	if o.FilledQty == o.Quantity {
		ev = EventFullFill
	}
	c.tryStep(o, ev, rep.Reason, events)
}

// syncStatus applies broker-initiated transitions carried by the report.
func (c *Coordinator) syncStatus(o *domain.Order, rep domain.ExecutionReport, events *[]domain.LifecycleEvent) {
	switch rep.Status {
	case domain.StatusActive:
		if o.Status == domain.StatusSent || o.Status == domain.StatusSuspended {
			c.tryStep(o, EventBrokerAck, rep.Reason, events)
		}

	case domain.StatusCancelled:
		o.CancelReason = rep.Reason
		switch {
		case o.Status == domain.StatusPendingCancel || o.Status == domain.StatusSuspended:
			c.tryStep(o, EventCancelAck, rep.Reason, events)
		case CanCancel(o.Status):
			c.tryStep(o, EventCancelRequest, "broker initiated", events)
			c.tryStep(o, EventCancelAck, rep.Reason, events)
		}

	case domain.StatusRejected:
		o.RejectReason = rep.Reason
		c.tryStep(o, EventReject, rep.Reason, events)

	case domain.StatusExpired:
		c.tryStep(o, EventExpire, rep.Reason, events)

	case domain.StatusSuspended:
		c.tryStep(o, EventSuspend, rep.Reason, events)

	case domain.StatusFilled, domain.StatusPartiallyFill:
		// Fill accounting already handled these.
	}
}

// ExpireDayOrders sweeps working DAY orders into EXPIRED at session end
// and returns how many were expired.
func (c *Coordinator) ExpireDayOrders(ctx context.Context) (int, error) {
	orders, err := c.store.ListByStatus(ctx,
		domain.StatusPending, domain.StatusSent, domain.StatusActive, domain.StatusPartiallyFill)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, stale := range orders {
		if stale.TimeInForce != domain.TIFDay {
			continue
		}

		unlock := c.locks.Lock(stale.ID)
		o, err := c.store.Get(ctx, stale.ID)
		if err != nil {
			unlock()
			continue
		}

		var events []domain.LifecycleEvent
		if err := c.step(o, EventExpire, "trading session ended", &events); err == nil {
			if err := c.commit(ctx, o, events); err == nil {
				expired++
			} else {
				slog.Error("expire sweep commit failed",
					slog.String("order_id", o.ID),
					slog.Any("error", err))
			}
		}
		unlock()
	}
	return expired, nil
}

// Get returns a snapshot of one order.
func (c *Coordinator) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	return c.store.Get(ctx, orderID)
}

// brokerCall runs one broker interaction under the retry policy. The
// session token is re-fetched on every attempt; an invalid-session answer
// drops the cached session so the next attempt logs in again.
func (c *Coordinator) brokerCall(ctx context.Context, op string, call func(token string) error) error {
	start := time.Now()

	for attempt := 1; ; attempt++ {
		token, err := c.session.Token(ctx)
		if err == nil {
			err = call(token)
			if errors.Is(err, domain.ErrSessionInvalid) {
				c.session.Invalidate()
			}
		}
		if err == nil {
			return nil
		}

		d := c.policy.Decide(attempt, time.Since(start), err)
		if !d.Retry {
			if domain.IsTransient(err) {
				return fmt.Errorf("%w: %s failed after %d attempts: %v",
					domain.ErrBrokerUnavailable, op, attempt, err)
			}
			return err
		}

		slog.Warn("broker call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("delay", d.Delay),
			slog.Any("error", err))

		if serr := infra.Sleep(ctx, d.Delay); serr != nil {
			return serr
		}
	}
}

// step applies one state machine event to the order and records the audit
// event. The order is only mutated when the edge is legal.
func (c *Coordinator) step(o *domain.Order, ev Event, reason string, events *[]domain.LifecycleEvent) error {
	next, err := Transition(o.Status, ev)
	if err != nil {
		return err
	}
	c.record(o, next, reason, events)
	return nil
}

// tryStep is step for report-driven paths: an illegal edge is logged and
// skipped instead of failing the whole report.
func (c *Coordinator) tryStep(o *domain.Order, ev Event, reason string, events *[]domain.LifecycleEvent) {
	if err := c.step(o, ev, reason, events); err != nil {
		slog.Warn("report event not applicable",
			slog.String("order_id", o.ID),
			slog.String("status", string(o.Status)),
			slog.String("event", string(ev)),
			slog.Any("error", err))
	}
}

// resume returns a reject-return state to where the order was, preferring
// the fill-derived state over the remembered one.
func (c *Coordinator) resume(o *domain.Order, reason string, events *[]domain.LifecycleEvent) error {
	target := o.PriorStatus
	switch {
	case o.Quantity > 0 && o.FilledQty == o.Quantity:
		target = domain.StatusFilled
	case o.FilledQty > 0:
		target = domain.StatusPartiallyFill
	}

	next, err := ResumeTo(o.Status, target)
	if err != nil {
		return err
	}
	c.record(o, next, reason, events)
	return nil
}

// record mutates the order for an already-validated transition and queues
// the audit event.
func (c *Coordinator) record(o *domain.Order, next domain.OrderStatus, reason string, events *[]domain.LifecycleEvent) {
	from := o.Status
	if next == domain.StatusPendingCancel || next == domain.StatusPendingReplace {
		o.PriorStatus = from
	}

	now := c.now()
	o.Status = next
	o.UpdatedUnixM = now
	switch next {
	case domain.StatusFilled:
		o.FilledUnixM = now
	case domain.StatusCancelled:
		o.CancelledUnixM = now
	}

	o.EventSeq++
	*events = append(*events, domain.LifecycleEvent{
		OrderID: o.ID,
		Seq:     o.EventSeq,
		From:    from,
		To:      next,
		Reason:  reason,
		TsUnixM: now,
	})
}

// commit persists the order and publishes the queued audit events.
// Publishing happens after the save so a failed save never emits events
// for a state that does not exist.
func (c *Coordinator) commit(ctx context.Context, o *domain.Order, events []domain.LifecycleEvent) error {
	if err := c.store.Save(ctx, o); err != nil {
		return err
	}
	for _, ev := range events {
		c.sink.Publish(ctx, ev)
	}
	return nil
}

// resolve finds the order a report belongs to.
func (c *Coordinator) resolve(ctx context.Context, rep domain.ExecutionReport) (*domain.Order, error) {
	if rep.OrderID != "" {
		return c.store.Get(ctx, rep.OrderID)
	}
	return c.store.GetByExternalID(ctx, rep.ExternalID)
}

// checkCollar rejects limit prices too far from the last trade.
func (c *Coordinator) checkCollar(req domain.NewOrderRequest) error {
	if c.collarPct <= 0 || c.prices == nil || !req.Type.RequiresPrice() {
		return nil
	}
	last, ok := c.prices.Last(req.Symbol)
	if !ok {
		return nil
	}

	diff := int64(req.PriceMicros - last)
	if diff < 0 {
		diff = -diff
	}
	if diff*100 > int64(last)*int64(c.collarPct) {
		return &domain.ValidationError{
			Message: fmt.Sprintf("price %s deviates more than %d%% from last trade %s",
				req.PriceMicros, c.collarPct, last),
		}
	}
	return nil
}

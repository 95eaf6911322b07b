package infra

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// StreamHandler supplies the venue-specific logic for a WSWorker.
type StreamHandler interface {
	// URL returns the websocket endpoint to dial.
	URL() string
	// OnConnect runs after a successful dial, typically to authenticate
	// and subscribe. Returning an error drops the connection.
	OnConnect(ctx context.Context, w *WSWorker) error
	// OnMessage handles one inbound frame.
	OnMessage(ctx context.Context, msg []byte)
	// OnPing sends the venue's keep-alive frame.
	OnPing(ctx context.Context, w *WSWorker) error
	// ID identifies the stream in logs.
	ID() string
}

// WSWorker owns one websocket connection: it dials, reconnects with
// exponential backoff, enforces read deadlines, pings on an interval, and
// serializes writes.
type WSWorker struct {
	handler StreamHandler

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
}

// NewWSWorker creates a worker for the given handler with default timeouts.
func NewWSWorker(handler StreamHandler) *WSWorker {
	return &WSWorker{
		handler:      handler,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Start launches the connection loop in the background.
func (w *WSWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop tears the worker down and waits for the loop to exit.
func (w *WSWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.close()
	w.wg.Wait()
}

func (w *WSWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("stream connect failed",
				slog.String("id", w.handler.ID()),
				slog.Any("error", err),
				slog.Int("retry", retry))

			delay := reconnectBackoff(retry)
			retry++

			if err := Sleep(ctx, delay); err != nil {
				return
			}
			continue
		}

		retry = 0
		w.readLoop(ctx)
	}
}

func (w *WSWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: w.DialTimeout}

	conn, _, err := dialer.DialContext(ctx, w.handler.URL(), nil)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.OnConnect(ctx, w); err != nil {
		w.close()
		return fmt.Errorf("on connect: %w", err)
	}

	if w.PingInterval > 0 {
		go w.pingLoop(ctx)
	}

	slog.Info("stream connected", slog.String("id", w.handler.ID()))
	return nil
}

func (w *WSWorker) readLoop(ctx context.Context) {
	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return
		}

		c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("stream read error",
					slog.String("id", w.handler.ID()),
					slog.Any("error", err))
			}
			w.close()
			return
		}

		w.handler.OnMessage(ctx, msg)
	}
}

func (w *WSWorker) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(w.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			c := w.conn
			w.mu.RUnlock()
			if c == nil {
				return
			}
			if err := w.handler.OnPing(ctx, w); err != nil {
				slog.Warn("stream ping error",
					slog.String("id", w.handler.ID()),
					slog.Any("error", err))
				w.close()
				return
			}
		}
	}
}

// Write sends one frame, serialized against concurrent writers.
func (w *WSWorker) Write(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()

	if c == nil {
		return fmt.Errorf("stream not connected")
	}
	return c.WriteMessage(msgType, data)
}

func (w *WSWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

const (
	wsBaseDelay = 1 * time.Second
	wsMaxDelay  = 60 * time.Second
)

// reconnectBackoff returns wsBaseDelay * 2^retry capped at wsMaxDelay.
func reconnectBackoff(retry int) time.Duration {
	if retry < 0 {
		return wsBaseDelay
	}
	if retry > 30 {
		return wsMaxDelay
	}
	d := wsBaseDelay * time.Duration(1<<retry)
	if d > wsMaxDelay {
		return wsMaxDelay
	}
	return d
}

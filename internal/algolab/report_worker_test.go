package algolab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/infra"
	"github.com/erdoganonur/bist-trading-platform-sub007/pkg/quant"
)

type captureSink struct {
	mu      sync.Mutex
	reports []domain.ExecutionReport
}

func (c *captureSink) ApplyReport(ctx context.Context, rep domain.ExecutionReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, rep)
	return nil
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

type capturePrices struct {
	mu    sync.Mutex
	last  map[string]quant.PriceMicros
	calls int
}

func (c *capturePrices) SetLastPrice(symbol string, price quant.PriceMicros, ts quant.TimeStamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		c.last = map[string]quant.PriceMicros{}
	}
	c.last[symbol] = price
	c.calls++
}

// presetSession returns a manager with a cached hash so stream tests never
// hit the login endpoints.
func presetSession(t *testing.T) *SessionManager {
	t.Helper()
	sm := newTestSession(t, "http://unused.invalid")
	sm.mu.Lock()
	sm.hash = "hash"
	sm.expiresAt = time.Now().Add(time.Hour)
	sm.mu.Unlock()
	return sm
}

func newStreamServer(t *testing.T, frames []string, subscribed chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, sub, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if subscribed != nil {
			subscribed <- string(sub)
		}

		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		time.Sleep(300 * time.Millisecond)
	}))
}

func streamConfig(wsURL string) *infra.Config {
	cfg := testConfig("http://unused.invalid")
	cfg.AlgoLab.WSURL = strings.Replace(wsURL, "http://", "ws://", 1)
	return cfg
}

func TestReportWorker_FeedsSink(t *testing.T) {
	frame := `{"Type":"O","Content":{"id":"EXT-9","seq":3,"status":"PARTIAL","filledlot":40,"price":"45.50","timestamp":"1700000000000"}}`
	subscribed := make(chan string, 1)
	server := newStreamServer(t, []string{frame, `pong`, `not json`}, subscribed)
	defer server.Close()

	sink := &captureSink{}
	worker := NewReportWorker(streamConfig(server.URL), presetSession(t), sink)
	worker.Start(context.Background())
	defer worker.Stop()

	select {
	case sub := <-subscribed:
		var req wsSubscribe
		if err := json.Unmarshal([]byte(sub), &req); err != nil {
			t.Fatalf("subscription not json: %v", err)
		}
		if req.Type != "O" || req.Token != "hash" {
			t.Errorf("subscription = %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription received")
	}

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if sink.count() != 1 {
		t.Fatalf("sink received %d reports, want 1", sink.count())
	}

	rep := sink.reports[0]
	if rep.ExternalID != "EXT-9" || rep.Seq != 3 {
		t.Errorf("report identity = %+v", rep)
	}
	if rep.Status != domain.StatusPartiallyFill {
		t.Errorf("status = %s", rep.Status)
	}
	if rep.FilledQty != 40 {
		t.Errorf("filled = %d", rep.FilledQty)
	}
	if rep.PriceMicros != 45_500_000 {
		t.Errorf("price = %d", rep.PriceMicros)
	}
}

func TestTickerWorker_FeedsPriceCache(t *testing.T) {
	frames := []string{
		`{"Type":"T","Content":{"symbol":"GARAN","price":"45.60","time":"1700000000000"}}`,
		`{"Type":"T","Content":{"symbol":"GARAN","price":"not a number"}}`,
		`{"Type":"O","Content":{}}`,
	}
	server := newStreamServer(t, frames, nil)
	defer server.Close()

	sink := &capturePrices{}
	worker := NewTickerWorker(streamConfig(server.URL), []string{"GARAN"}, presetSession(t), sink)
	worker.Start(context.Background())
	defer worker.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sink.mu.Lock()
		price, ok := sink.last["GARAN"]
		sink.mu.Unlock()
		if ok {
			if price != 45_600_000 {
				t.Errorf("price = %d, want 45600000", price)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("price cache never updated")
}

func TestMapBrokerStatus(t *testing.T) {
	tests := []struct {
		in   string
		want domain.OrderStatus
	}{
		{"WAITING", domain.StatusActive},
		{"waiting", domain.StatusActive},
		{"PARTIAL", domain.StatusPartiallyFill},
		{"FILLED", domain.StatusFilled},
		{"DELETED", domain.StatusCancelled},
		{"REJECTED", domain.StatusRejected},
		{"EXPIRED", domain.StatusExpired},
		{"SUSPENDED", domain.StatusSuspended},
		{"SOMETHING_NEW", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := mapBrokerStatus(tt.in); got != tt.want {
			t.Errorf("mapBrokerStatus(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToExecutionReport_BadPrice(t *testing.T) {
	_, err := toExecutionReport(wsOrderStatus{OrderID: "X", Price: "abc"})
	if err == nil {
		t.Error("unparseable price must be an error")
	}
}

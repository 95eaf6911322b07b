// Package app wires configuration, storage, the broker gateway, and the
// coordinator into a runnable process.
package app

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/algolab"
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/audit"
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/infra"
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/oms"
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/storage"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config      *infra.Config
	Store       *storage.OrderStore
	Coordinator *oms.Coordinator
	Prices      *oms.PriceCache

	session *algolab.SessionManager
	reports *algolab.ReportWorker
	ticks   *algolab.TickerWorker
}

// NewBootstrap creates an empty bootstrap.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads config, opens storage, and builds the execution core for
// the configured trading mode.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	slog.SetDefault(infra.NewLogger(cfg.Logging.Level))
	infra.PrintBanner(cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	store, err := storage.NewOrderStore(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("✅ order store initialized (WAL-mode)", slog.String("path", cfg.Storage.DBPath))

	sink := audit.NewStoreSink(store)
	policy := infra.NewRetryPolicy(cfg)
	b.Prices = oms.NewPriceCache()

	switch strings.ToLower(cfg.Trading.Mode) {
	case "paper":
		sim := oms.NewSimGateway(b.Prices, 2*time.Second)
		b.Coordinator = oms.NewCoordinator(store, sim, oms.StaticSession{}, policy, sink, b.Prices, cfg.Risk.PriceCollarPct)
		sim.AttachSink(b.Coordinator)
		slog.Info("✅ paper gateway ready, no broker connection will be made")

	case "live":
		// Safety latch: live order flow must be confirmed explicitly.
		if os.Getenv("BIST_CONFIRM_LIVE") != "true" {
			return fmt.Errorf("live mode requires BIST_CONFIRM_LIVE=true")
		}

		signer, err := algolab.NewSigner(cfg.AlgoLab.APIKey, cfg.AlgoLab.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid AlgoLab api key: %w", err)
		}
		client := algolab.NewClient(cfg, signer)
		b.session = algolab.NewSessionManager(cfg, client, smsCodeProvider())
		gateway := algolab.NewGateway(client, cfg.AlgoLab.SubAccount)

		b.Coordinator = oms.NewCoordinator(store, gateway, b.session, policy, sink, b.Prices, cfg.Risk.PriceCollarPct)
		b.reports = algolab.NewReportWorker(cfg, b.session, b.Coordinator)
		b.ticks = algolab.NewTickerWorker(cfg, cfg.Trading.Symbols, b.session, b.Prices)
		slog.Info("✅ AlgoLab gateway ready", slog.String("base_url", cfg.AlgoLab.BaseURL))

	default:
		return fmt.Errorf("unknown trading mode: %s", cfg.Trading.Mode)
	}

	return nil
}

// Run starts the background workers and blocks until the context is
// cancelled, then shuts everything down in reverse order.
func (b *Bootstrap) Run(ctx context.Context) {
	if b.session != nil {
		b.session.StartHeartbeat(ctx)
		b.reports.Start(ctx)
		if len(b.Config.Trading.Symbols) > 0 {
			b.ticks.Start(ctx)
		}
	}

	go b.expiryLoop(ctx)

	slog.Info("✨ order execution coordinator operational")
	<-ctx.Done()

	slog.Info("👋 shutting down gracefully")
	if b.session != nil {
		if len(b.Config.Trading.Symbols) > 0 {
			b.ticks.Stop()
		}
		b.reports.Stop()
		b.session.Stop()
	}
	if err := b.Store.Close(); err != nil {
		slog.Error("store close failed", slog.Any("error", err))
	}
}

// expiryLoop sweeps working DAY orders into EXPIRED once per day at the
// configured session close.
func (b *Bootstrap) expiryLoop(ctx context.Context) {
	for {
		delay := nextCloseDelay(time.Now(), b.Config.Trading.SessionClose)
		slog.Info("day-order expiry sweep scheduled",
			slog.Duration("in", delay.Round(time.Second)))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		n, err := b.Coordinator.ExpireDayOrders(ctx)
		if err != nil {
			slog.Error("day-order expiry sweep failed", slog.Any("error", err))
			continue
		}
		slog.Info("day-order expiry sweep completed", slog.Int("expired", n))
	}
}

// nextCloseDelay returns the time until the next occurrence of the HH:MM
// session close, local time.
func nextCloseDelay(now time.Time, closeHHMM string) time.Duration {
	t, err := time.Parse("15:04", closeHHMM)
	if err != nil {
		// Validated at config load; keep a sane fallback anyway.
		t, _ = time.Parse("15:04", "18:10")
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// smsCodeProvider prefers the BIST_ALGOLAB_SMS variable (for pre-shared
// static codes) and falls back to an interactive prompt.
func smsCodeProvider() algolab.SMSCodeFunc {
	return func(ctx context.Context) (string, error) {
		if code := os.Getenv("BIST_ALGOLAB_SMS"); code != "" {
			return code, nil
		}

		fmt.Fprint(os.Stderr, "Enter AlgoLab SMS code: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read sms code: %w", err)
		}
		return strings.TrimSpace(line), nil
	}
}

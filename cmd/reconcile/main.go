// Command reconcile inspects the audit log for manual reconciliation of
// orders in uncertain states. It lists ERROR orders and prints the full
// transition history of a single order.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/erdoganonur/bist-trading-platform-sub007/internal/domain"
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/infra"
	"github.com/erdoganonur/bist-trading-platform-sub007/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	orderID := flag.String("order", "", "print the transition history of one order")
	flag.Parse()

	cfg, err := infra.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.NewOrderStore(cfg.Storage.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	if *orderID != "" {
		if err := printHistory(ctx, store, *orderID); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := listErrorOrders(ctx, store); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// listErrorOrders prints every order needing manual attention.
func listErrorOrders(ctx context.Context, store *storage.OrderStore) error {
	orders, err := store.ListByStatus(ctx, domain.StatusError, domain.StatusSuspended)
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}
	if len(orders) == 0 {
		fmt.Println("no orders need reconciliation")
		return nil
	}

	fmt.Printf("%-36s  %-10s  %-8s  %-6s  %-10s  %s\n",
		"ORDER", "SYMBOL", "STATUS", "FILLED", "EXTERNAL", "REASON")
	for _, o := range orders {
		fmt.Printf("%-36s  %-10s  %-8s  %d/%d  %-10s  %s\n",
			o.ID, o.Symbol, o.Status, o.FilledQty, o.Quantity, o.ExternalID, o.RejectReason)
	}
	fmt.Printf("\n%d order(s); use -order <id> for the transition history\n", len(orders))
	return nil
}

// printHistory replays the audit log of one order.
func printHistory(ctx context.Context, store *storage.OrderStore, orderID string) error {
	o, err := store.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}

	fmt.Printf("order %s  %s %s %d @ %s  client=%s external=%s\n",
		o.ID, o.Side, o.Symbol, o.Quantity, o.PriceMicros, o.ClientOrderID, o.ExternalID)
	fmt.Printf("status=%s filled=%d avg=%s version=%d\n\n",
		o.Status, o.FilledQty, o.AvgPriceMicros, o.Version)

	events, err := store.LoadEvents(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("no audit events recorded")
		return nil
	}

	for _, ev := range events {
		ts := time.UnixMicro(int64(ev.TsUnixM)).Format(time.RFC3339)
		from := string(ev.From)
		if from == "" {
			from = "(new)"
		}
		fmt.Printf("%3d  %s  %-18s -> %-18s  %s\n", ev.Seq, ts, from, ev.To, ev.Reason)
	}
	return nil
}

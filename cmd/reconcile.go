package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/momo-collections/internal/core/events"
	"github.com/frahmantamala/momo-collections/internal/payment"
	"github.com/frahmantamala/momo-collections/pkg/logger"
)

const reconcileDrainTimeout = 10 * time.Second

var (
	reconcileOlderThan   time.Duration
	reconcileLimit       int
	reconcileConcurrency int
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Poll the gateway for stale non-terminal payments",
	Long: `Refresh every PENDING or PROCESSING payment initiated before the cutoff by
asking the gateway for its current status. Runs once and exits.`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().DurationVar(&reconcileOlderThan, "older-than", 15*time.Minute, "only payments initiated longer ago than this")
	reconcileCmd.Flags().IntVar(&reconcileLimit, "limit", 500, "maximum payments to check in one run")
	reconcileCmd.Flags().IntVar(&reconcileConcurrency, "concurrency", 4, "gateway calls in flight at once")
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(".")
	if err != nil {
		return err
	}
	lg := logger.LoggerWrapper()

	sqlDB, err := initDB(cfg.Database)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	db, err := initGorm(sqlDB)
	if err != nil {
		return fmt.Errorf("failed to init gorm: %w", err)
	}

	bus := events.NewEventBus(lg)
	payment.NewEventHandler(lg).RegisterEventHandlers(bus)
	svc := newPaymentService(cfg, db, bus, lg)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cutoff := time.Now().UTC().Add(-reconcileOlderThan)
	lg.Info("reconcile started",
		"cutoff", cutoff,
		"limit", reconcileLimit,
		"concurrency", reconcileConcurrency)

	result, err := svc.SweepStale(ctx, cutoff, reconcileLimit, reconcileConcurrency)

	drainCtx, cancel := context.WithTimeout(context.Background(), reconcileDrainTimeout)
	defer cancel()
	if derr := bus.Drain(drainCtx); derr != nil {
		lg.Warn("reconcile exiting with undelivered payment events", "error", derr)
	}

	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	lg.Info("reconcile finished",
		"checked", result.Checked,
		"updated", result.Updated,
		"failed", result.Failed)
	fmt.Fprintf(os.Stdout, "checked=%d updated=%d failed=%d\n", result.Checked, result.Updated, result.Failed)
	return nil
}

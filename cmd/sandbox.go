package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/momo-collections/internal/paymentgateway/sandbox"
	"github.com/frahmantamala/momo-collections/pkg/logger"
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Start a local fake of the mobile-money gateway",
	Long: `Serve the gateway's collect-money API locally. Collections settle after a
delay and a webhook is posted to their callback URL. Phone numbers ending in
0000 fail, 1111 cancel, 9999 stay pending and everything else succeeds.`,
	Run: func(cmd *cobra.Command, args []string) {
		startSandbox()
	},
}

var (
	sandboxPort         int
	sandboxMaxWorkers   int
	sandboxJobQueueSize int
	sandboxSettleDelay  time.Duration
	sandboxMode         bool
	sandboxAPIKey       string
	sandboxAPISecret    string
)

func startSandbox() {
	lg := logger.LoggerWrapper()

	// credentials default to the configured gateway so the server talks to
	// the sandbox without further setup
	key, secret := sandboxAPIKey, sandboxAPISecret
	if config, err := loadConfig("."); err == nil {
		lg = logger.LoggerWrapper()
		key = getStringFlag(sandboxAPIKey, config.Gateway.APIKey)
		secret = getStringFlag(sandboxAPISecret, config.Gateway.APISecret)
	} else {
		lg.Warn("config not loaded, using flags only", "error", err)
	}
	if key == "" || secret == "" {
		fmt.Fprintln(os.Stderr, "sandbox needs --api-key and --api-secret (or a loadable config)")
		os.Exit(1)
	}

	fake := sandbox.NewServer(sandbox.Config{
		APIKey:       key,
		APISecret:    secret,
		SettleDelay:  sandboxSettleDelay,
		MaxWorkers:   sandboxMaxWorkers,
		JobQueueSize: sandboxJobQueueSize,
		SandboxMode:  sandboxMode,
	}, lg)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", sandboxPort),
		Handler:           fake.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lg.Info("starting sandbox gateway",
		"address", server.Addr,
		"max_workers", sandboxMaxWorkers,
		"job_queue_size", sandboxJobQueueSize,
		"settle_delay", sandboxSettleDelay,
		"sandbox_mode", sandboxMode)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		lg.Info("received signal, shutting down sandbox gateway", "signal", sig)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("sandbox gateway failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		_ = server.Shutdown(ctx)
		fake.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		lg.Info("sandbox gateway shutdown complete")
	case <-ctx.Done():
		lg.Warn("shutdown timeout reached, forcing exit")
	}
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func init() {
	sandboxCmd.Flags().IntVar(&sandboxPort, "port", 9090, "Port to listen on")
	sandboxCmd.Flags().IntVar(&sandboxMaxWorkers, "max-workers", 4, "Workers delivering settlement webhooks")
	sandboxCmd.Flags().IntVar(&sandboxJobQueueSize, "job-queue-size", 100, "Pending settlement buffer size")
	sandboxCmd.Flags().DurationVar(&sandboxSettleDelay, "settle-delay", 3*time.Second, "Delay before a collection settles")
	sandboxCmd.Flags().BoolVar(&sandboxMode, "sandbox-mode", false, "Answer every collection with status sandbox and never settle")
	sandboxCmd.Flags().StringVar(&sandboxAPIKey, "api-key", "", "Expected API key (overrides config)")
	sandboxCmd.Flags().StringVar(&sandboxAPISecret, "api-secret", "", "Expected API secret (overrides config)")
}

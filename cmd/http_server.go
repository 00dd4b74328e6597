package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/momo-collections/api"
	"github.com/frahmantamala/momo-collections/internal"
	"github.com/frahmantamala/momo-collections/internal/appointment"
	appointmentpostgres "github.com/frahmantamala/momo-collections/internal/appointment/postgres"
	"github.com/frahmantamala/momo-collections/internal/auth"
	"github.com/frahmantamala/momo-collections/internal/core/events"
	"github.com/frahmantamala/momo-collections/internal/patient"
	patientpostgres "github.com/frahmantamala/momo-collections/internal/patient/postgres"
	"github.com/frahmantamala/momo-collections/internal/payment"
	paymentpostgres "github.com/frahmantamala/momo-collections/internal/payment/postgres"
	"github.com/frahmantamala/momo-collections/internal/paymentgateway"
	"github.com/frahmantamala/momo-collections/internal/reference"
	"github.com/frahmantamala/momo-collections/internal/transport"
	"github.com/frahmantamala/momo-collections/internal/transport/rest"
	"github.com/frahmantamala/momo-collections/internal/transport/swagger"
	"github.com/frahmantamala/momo-collections/pkg/logger"
	"github.com/frahmantamala/momo-collections/pkg/metrics"
	"github.com/frahmantamala/momo-collections/pkg/redis"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests and gateway webhooks`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config  *internal.Config
	DB      *sqlx.DB
	Gorm    *gorm.DB
	Redis   *redis.Client
	Router  *chi.Mux
	Logger  *slog.Logger
	Events  *events.EventBus
	Payment *payment.Service
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	if err := setupRoutes(deps); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up routes: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			deps.close()
			os.Exit(1)
		}
	}

	deps.close()
	deps.Logger.Info("server stopped")
}

func (d *Dependencies) close() {
	if d.Events != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := d.Events.Drain(ctx); err != nil {
			d.Logger.Error("event bus drain error", "error", err)
		}
		cancel()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config
	base := transport.NewBaseHandler(deps.Logger)

	webhookService := payment.NewWebhookService(
		deps.Payment,
		paymentpostgres.NewWebhookEventRepository(deps.Gorm),
		deps.Logger,
	)

	var limiter payment.RefreshLimiter
	var redisPinger rest.Pinger
	if deps.Redis != nil {
		limiter = deps.Redis
		redisPinger = deps.Redis
	}

	spec, err := swagger.SpecHandler(context.Background(), api.OpenAPI)
	if err != nil {
		return err
	}

	tokens := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, cfg.Security.AccessTokenDuration)

	rest.RegisterAllRoutes(deps.Router, rest.Routes{
		DB:             deps.DB.DB,
		Redis:          redisPinger,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		OpenAPI:        spec,
		HTTPMetrics:    metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		MetricsHandler: promhttp.Handler(),
		AuthHandler:    auth.NewHandler(base, tokens),
		PaymentHandler: payment.NewHandler(base, deps.Payment, limiter, cfg.Collection.RefreshThrottle),
		WebhookHandler: payment.NewWebhookHandler(base, webhookService),
	}, deps.Logger)

	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGorm(db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	var redisClient *redis.Client
	if config.Redis.RedisEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err = redis.New(ctx, config.Redis)
		cancel()
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
	} else {
		lg.Warn("redis not configured, refresh throttling disabled")
	}

	eventBus := events.NewEventBus(lg)
	payment.NewEventHandler(lg).
		WithMetrics(metrics.NewCollectionMetrics(prometheus.DefaultRegisterer)).
		RegisterEventHandlers(eventBus)

	return &Dependencies{
		Config:  config,
		Logger:  lg,
		DB:      db,
		Gorm:    gormDB,
		Redis:   redisClient,
		Router:  chi.NewRouter(),
		Events:  eventBus,
		Payment: newPaymentService(config, gormDB, eventBus, lg),
	}, nil
}

// newPaymentService wires the collection engine to its stores and the gateway.
func newPaymentService(cfg *internal.Config, db *gorm.DB, bus *events.EventBus, lg *slog.Logger) *payment.Service {
	gateway := paymentgateway.NewClient(paymentgateway.Config{
		BaseURL:      cfg.Gateway.BaseURL,
		APIKey:       cfg.Gateway.APIKey,
		APISecret:    cfg.Gateway.APISecret,
		ProviderName: cfg.Gateway.ProviderName,
		Timeout:      cfg.Gateway.Timeout,
	}, lg)
	if cfg.Gateway.Sandbox {
		lg.Warn("gateway is in sandbox mode, collections will not move real money", "base_url", cfg.Gateway.BaseURL)
	}

	appointments := appointment.NewService(appointmentpostgres.NewAppointmentRepository(db), lg)
	payers := patient.NewService(patientpostgres.NewPatientRepository(db), lg)

	return payment.NewService(
		paymentpostgres.NewPaymentRepository(db),
		gateway,
		appointments,
		payers,
		reference.NewUUIDGenerator(),
		bus,
		payment.Settings{
			MinAmount:   cfg.Collection.MinAmount,
			MaxAmount:   cfg.Collection.MaxAmount,
			Country:     cfg.Gateway.Country,
			Currency:    cfg.Gateway.Currency,
			CallbackURL: cfg.Gateway.CallbackURL,
		},
		lg,
	)
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx pool with gorm.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

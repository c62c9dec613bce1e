package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/syncline/syncline/internal/api"
	v0 "github.com/syncline/syncline/internal/api/v0"
	"github.com/syncline/syncline/internal/config"
	"github.com/syncline/syncline/internal/db"
	"github.com/syncline/syncline/internal/executors/rest"
	"github.com/syncline/syncline/internal/heartbeat"
	"github.com/syncline/syncline/internal/httpclient"
	pkgsync "github.com/syncline/syncline/internal/sync"
	"github.com/syncline/syncline/internal/sync/coordinator"
	"github.com/syncline/syncline/internal/sync/run"
	"github.com/syncline/syncline/internal/sync/state"
	"github.com/syncline/syncline/internal/telemetry"
	"github.com/syncline/syncline/internal/versions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync service",
	Long: `Start the sync scheduler and the admin API server.

The server requires a configuration file (--config) that specifies:
- Connected accounts and their API endpoints
- Data families to sync per account
- Scheduler intervals and the database connection

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second // Kubernetes-friendly shutdown time
	serverRequestTimeout   = 10 * time.Second // Admin API should respond quickly
	serverReadTimeout      = 10 * time.Second // Enough for headers and small requests
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second // Keep connections alive for reuse
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		panic(fmt.Sprintf("failed to bind address flag: %v", err))
	}
	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		panic(fmt.Sprintf("failed to bind config flag: %v", err))
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		panic(fmt.Sprintf("failed to mark config flag as required: %v", err))
	}
}

// buildExecutors creates one REST executor per configured family, each seeing
// only the accounts that sync that family.
func buildExecutors(cfg *config.Config, client httpclient.Client) ([]pkgsync.Executor, error) {
	executors := make([]pkgsync.Executor, 0, len(cfg.Families))
	for _, fam := range cfg.Families {
		accounts := make(map[string]rest.Account)
		for i := range cfg.Accounts {
			acct := &cfg.Accounts[i]
			for _, name := range cfg.FamiliesFor(acct) {
				if name == fam.Name {
					accounts[acct.ID] = rest.Account{
						Endpoint: acct.Endpoint,
						Token:    os.Getenv(acct.TokenEnv),
					}
					break
				}
			}
		}

		path := fam.Path
		if path == "" {
			path = "/" + fam.Name
		}

		executor, err := rest.New(fam.Name, path, accounts,
			&rest.SlogSink{FamilyName: fam.Name},
			rest.WithHTTPClient(client),
			rest.WithPageSize(fam.PageSize))
		if err != nil {
			return nil, fmt.Errorf("failed to create executor for family %q: %w", fam.Name, err)
		}
		executors = append(executors, executor)
	}
	return executors, nil
}

// buildCredentials resolves each account's token from its configured
// environment variable. Accounts without a token are unauthenticated and get
// skipped by the scheduler.
func buildCredentials(cfg *config.Config) *pkgsync.StaticCredentials {
	tokens := make(map[string]string, len(cfg.Accounts))
	for _, acct := range cfg.Accounts {
		if acct.TokenEnv == "" {
			continue
		}
		tokens[acct.ID] = os.Getenv(acct.TokenEnv)
	}
	return pkgsync.NewStaticCredentials(tokens)
}

// poolReadiness reports ready when the database answers a ping.
type poolReadiness struct {
	conn *db.Connection
}

func (p *poolReadiness) CheckReadiness(ctx context.Context) error {
	return p.conn.Ping(ctx)
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	address := viper.GetString("address")

	slog.Info("Starting syncline API server",
		"address", address,
		"version", versions.GetVersionInfo().Version)

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"accounts", len(cfg.Accounts),
		"families", len(cfg.Families))

	if cfg.Database == nil {
		return fmt.Errorf("database configuration is required")
	}

	// Telemetry (no-op providers when disabled)
	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	// Database
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	// Storage services
	states := state.NewDBService(conn.Pool)
	gate := state.NewDBGlobalSwitch(conn.Pool)
	runs := run.NewDBManager(conn.Pool, cfg.Scheduler.GetStaleThreshold())
	recorder := heartbeat.NewDBRecorder(conn.Pool)

	// Executors and credentials
	client := httpclient.NewDefaultClient(0)
	executors, err := buildExecutors(cfg, client)
	if err != nil {
		return err
	}
	registry, err := pkgsync.NewRegistry(executors...)
	if err != nil {
		return err
	}
	creds := buildCredentials(cfg)

	runMetrics, err := telemetry.NewRunMetrics(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create run metrics: %w", err)
	}

	// Seed sync states for every configured (account, family) pair so the
	// very first tick has keys to schedule.
	seeder := func(ctx context.Context, states state.Service) error {
		for i := range cfg.Accounts {
			acct := &cfg.Accounts[i]
			for _, fam := range cfg.FamiliesFor(acct) {
				if _, err := states.GetOrCreate(ctx, acct.ID, fam); err != nil {
					return fmt.Errorf("failed to seed state for %s/%s: %w", acct.ID, fam, err)
				}
			}
		}
		return nil
	}

	// Scheduler
	coord := coordinator.New(
		coordinator.ConfigFromScheduler(&cfg.Scheduler),
		gate, states, runs, registry, creds,
		coordinator.WithRunMetrics(runMetrics),
		coordinator.WithHeartbeatRecorder(recorder),
		coordinator.WithSeeder(seeder),
		coordinator.WithTracer(tel.Tracer("github.com/syncline/syncline/coordinator")),
	)

	coordCtx, coordCancel := context.WithCancel(context.Background())
	defer coordCancel()
	go func() {
		if err := coord.Start(coordCtx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	// Admin API
	metricsMiddleware, err := telemetry.MetricsMiddleware(tel.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics middleware: %w", err)
	}

	router := api.NewServer(
		v0.Services{
			States:     states,
			Gate:       gate,
			Runs:       runs,
			Heartbeats: recorder,
			Trigger:    coord.TriggerSync,
			Ready:      &poolReadiness{conn: conn},
		},
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			telemetry.TracingMiddleware(tel.TracerProvider()),
			metricsMiddleware,
			api.LoggingMiddleware,
		),
	)

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server")

	if err := coord.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}

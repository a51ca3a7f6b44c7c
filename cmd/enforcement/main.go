// Enforcement - case adjudication for the locumbnb marketplace.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/locumbnb/enforcement/internal/abuse"
	"github.com/locumbnb/enforcement/internal/api"
	"github.com/locumbnb/enforcement/internal/bus"
	"github.com/locumbnb/enforcement/internal/cache"
	"github.com/locumbnb/enforcement/internal/domain"
	"github.com/locumbnb/enforcement/internal/engine"
	"github.com/locumbnb/enforcement/internal/repository"
	"github.com/locumbnb/enforcement/internal/screening"
	"github.com/locumbnb/enforcement/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("ENFORCE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting enforcement",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("ENFORCE_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Screening Engine
	screener, err := screening.NewEngine()
	if err != nil {
		slog.Error("failed to initialize screening engine", "error", err)
		os.Exit(1)
	}
	defer screener.Close()

	// Load screening rules from database (no hardcoded defaults -
	// configure via API)
	if err := loadScreeningRules(ctx, repo, screener); err != nil {
		slog.Error("failed to load screening rules", "error", err)
		os.Exit(1)
	}
	slog.Info("screening engine initialized", "rules_count", screener.RulesCount())

	// Initialize Abuse Scorer
	scorer := abuse.NewScorer(repo, cacheImpl, cfg.Enforcement)
	slog.Info("abuse scorer initialized",
		"monthly_threshold", cfg.Enforcement.MonthlyCaseThreshold,
		"total_threshold", cfg.Enforcement.TotalCaseThreshold,
	)

	// Initialize Case Engine
	caseEngine := engine.New(repo, cacheImpl, busImpl, screener, scorer, cfg.Enforcement, logger)
	slog.Info("case engine initialized")

	// Initialize sweep Worker
	sweepWorker := worker.NewWorker(busImpl, caseEngine)

	workerCfg := worker.Config{
		TenantIDs: tenantList(),
		Interval:  time.Duration(cfg.Enforcement.SweepIntervalSecs) * time.Second,
	}

	if err := sweepWorker.Start(workerCfg); err != nil {
		slog.Error("failed to start sweep worker", "error", err)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, caseEngine, screener, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("enforcement is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop sweep worker first
	if err := sweepWorker.Stop(); err != nil {
		slog.Error("failed to stop sweep worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("enforcement shutdown complete")
}

// tenantList parses the comma-separated ENFORCE_TENANTS variable into the
// tenants the sweep worker subscribes for.
func tenantList() []string {
	env := os.Getenv("ENFORCE_TENANTS")
	if env == "" {
		return nil
	}

	var tenants []string
	for _, t := range strings.Split(env, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tenants = append(tenants, t)
		}
	}
	return tenants
}

// loadScreeningRules loads a tenant's screening rules from the database
// into the engine. All rules must be configured via POST /screening-rules -
// no hardcoded defaults.
func loadScreeningRules(ctx context.Context, repo domain.Repository, screener *screening.Engine) error {
	tenants, err := repo.ListTenants(ctx)
	if err != nil {
		slog.Warn("failed to list tenants from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	total := 0
	for _, tenantID := range tenants {
		dbRules, err := repo.ListScreeningRules(ctx, tenantID)
		if err != nil {
			slog.Warn("failed to list screening rules", "tenant_id", tenantID, "error", err)
			continue
		}
		if err := screener.LoadRules(dbRules); err != nil {
			return err
		}
		total += len(dbRules)
	}

	if total > 0 {
		slog.Info("loaded screening rules from database", "count", total)
	} else {
		slog.Info("no screening rules in database - configure via POST /screening-rules API")
	}
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  locumbnb enforcement - case adjudication engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /cancellations                    - Open a cancellation case")
	fmt.Println("    POST /cancellations/{id}/transition    - Approve, reject, or withdraw")
	fmt.Println("    POST /charges/{id}/waive               - Waive a penalty charge")
	fmt.Println("    POST /violations                       - Report a circumvention violation")
	fmt.Println("    POST /violations/{id}/transition       - Advance a violation case")
	fmt.Println("    POST /disputes                         - File a dispute")
	fmt.Println("    GET  /disputes/eligibility             - Quote the filing fee")
	fmt.Println("    POST /disputes/{id}/resolve            - Resolve a dispute")
	fmt.Println("    GET  /cases/{id}                       - Get a case")
	fmt.Println("    GET  /cases/{id}/audit                 - Get a case audit trail")
	fmt.Println("    POST /policies                         - Save a cancellation policy")
	fmt.Println("    POST /screening-rules                  - Create a screening rule")
	fmt.Println("    POST /screening-rules/reload           - Hot-reload screening rules")
	fmt.Println("    GET  /health                           - Health check")
	fmt.Println()
}

// Package worker runs scheduled enforcement sweeps and serves on-demand
// sweep requests from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/locumbnb/enforcement/internal/domain"
	"github.com/locumbnb/enforcement/internal/engine"
)

// Worker expires elapsed grace periods and advances overdue penalty
// invoices. It runs on a fixed interval and also listens for sweep
// requests published by other collaborators.
type Worker struct {
	bus    domain.EventBus
	engine *engine.Engine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to accept sweep requests for.
	TenantIDs []string

	// Interval between scheduled sweep runs. Zero disables the ticker;
	// only requested sweeps run.
	Interval time.Duration
}

// NewWorker creates a new sweep worker.
func NewWorker(bus domain.EventBus, eng *engine.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		engine: eng,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the sweep schedule and subscribes to sweep requests for
// the given tenants.
func (w *Worker) Start(cfg Config) error {
	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribeTenant(tenantID); err != nil {
			slog.Error("failed to subscribe sweep worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	if cfg.Interval > 0 {
		w.wg.Add(1)
		go w.runSchedule(cfg.Interval)
	}

	slog.Info("sweep worker started",
		"tenant_count", len(cfg.TenantIDs),
		"interval", cfg.Interval,
	)

	return nil
}

// subscribeTenant registers the sweep request handler for one tenant.
func (w *Worker) subscribeTenant(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicSweepRequested, func(ctx context.Context, msg *domain.Message) error {
		return w.handleSweepRequest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("sweep subscription active",
		"tenant_id", tenantID,
		"topic", domain.TopicSweepRequested,
	)

	return nil
}

// SweepMessage is the payload of a sweep request.
type SweepMessage struct {
	TenantID string     `json:"tenantId"`
	AsOf     *time.Time `json:"asOf,omitempty"`
}

// handleSweepRequest runs both sweeps for the requesting tenant.
func (w *Worker) handleSweepRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var req SweepMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse sweep request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if req.TenantID != "" {
		tenantID = req.TenantID
	}

	asOf := time.Now().UTC()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	expired, err := w.engine.ExpireGracePeriods(ctx, tenantID, asOf)
	if err != nil {
		slog.Error("grace period sweep failed",
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	advanced, err := w.engine.SweepInvoices(ctx, tenantID, asOf)
	if err != nil {
		slog.Error("invoice sweep failed",
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	slog.Info("sweep request processed",
		"tenant_id", tenantID,
		"grace_expired", expired,
		"invoices_advanced", advanced,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// runSchedule runs SweepAll on a fixed interval until the worker stops.
func (w *Worker) runSchedule(interval time.Duration) {
	defer w.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if err := w.engine.SweepAll(w.ctx, time.Now().UTC()); err != nil {
				slog.Error("scheduled sweep failed", "error", err)
			}
		}
	}
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("sweep worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}

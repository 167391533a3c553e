package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dandantas/renewer/internal/model"
	"github.com/dandantas/renewer/internal/webhook"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Alert types
const (
	TypeExpiringSoon            = "expiring_soon"
	TypeExpired                 = "expired"
	TypeAutomationOffline       = "automation_offline"
	TypeRenewalStuck            = "renewal_stuck"
	TypeRenewalFailed           = "renewal_failed"
	TypeRenewalSucceeded        = "renewal_succeeded"
	TypeAutomationRestartFailed = "automation_restart_failed"
	TypeAutomationChallenge     = "automation_challenge"
)

// DefaultSuppression maps alert types to their cool-down window
var DefaultSuppression = map[string]time.Duration{
	TypeExpiringSoon:            6 * time.Hour,
	TypeExpired:                 24 * time.Hour,
	TypeAutomationOffline:       30 * time.Minute,
	TypeRenewalStuck:            time.Hour,
	TypeRenewalFailed:           time.Hour,
	TypeRenewalSucceeded:        0,
	TypeAutomationRestartFailed: 30 * time.Minute,
	TypeAutomationChallenge:     time.Hour,
}

// SuppressionStore persists notification cool-down records
type SuppressionStore interface {
	FindActive(ctx context.Context, notificationType, entityID string, now time.Time) (*model.NotificationSuppression, error)
	Create(ctx context.Context, record *model.NotificationSuppression) error
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// Sender delivers a payload to the notification channel
type Sender interface {
	Send(ctx context.Context, payload webhook.Payload, traceID string) (*webhook.Delivery, error)
}

// Notification is a single alert request
type Notification struct {
	Type     string
	EntityID string
	Message  string
	Embed    *webhook.Embed
	TraceID  string
	// Suppression overrides the default window for Type when non-nil
	Suppression *time.Duration
}

// Notifier is the interface other components depend on
type Notifier interface {
	Notify(ctx context.Context, n Notification) bool
}

// Gateway sends deduplicated alerts. The suppression check and the
// reservation of the (type, entity) window run under one lock, so
// concurrent identical alerts are accepted once. Delivery happens on a
// background worker fed by a bounded queue; callers never wait on the
// webhook.
type Gateway struct {
	mu       sync.Mutex
	store    SuppressionStore
	sender   Sender
	username string
	disabled bool
	now      func() time.Time

	qmu       sync.RWMutex
	queue     chan delivery
	accepting bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// delivery is one accepted alert waiting for the worker
type delivery struct {
	n           Notification
	at          time.Time
	reservation *model.NotificationSuppression
}

// GatewayOption customises a Gateway
type GatewayOption func(*Gateway)

// WithClock overrides the time source
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

// WithUsername sets the display name sent with each payload
func WithUsername(username string) GatewayOption {
	return func(g *Gateway) { g.username = username }
}

// WithQueueSize bounds the number of alerts waiting for delivery
func WithQueueSize(size int) GatewayOption {
	return func(g *Gateway) {
		if size > 0 {
			g.queue = make(chan delivery, size)
		}
	}
}

// Disabled turns the gateway into a logger-only sink
func Disabled() GatewayOption {
	return func(g *Gateway) { g.disabled = true }
}

// NewGateway creates a new notification gateway. Start must be called
// before alerts are delivered.
func NewGateway(store SuppressionStore, sender Sender, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		store:  store,
		sender: sender,
		now:    time.Now,
		queue:  make(chan delivery, 256),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start launches the delivery worker
func (g *Gateway) Start(ctx context.Context) {
	g.qmu.Lock()
	defer g.qmu.Unlock()

	if g.accepting || g.done != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})
	g.accepting = true

	go g.worker(runCtx)
}

// Stop refuses new alerts and drains the queue until ctx expires
func (g *Gateway) Stop(ctx context.Context) {
	g.qmu.Lock()
	if !g.accepting {
		g.qmu.Unlock()
		return
	}
	g.accepting = false
	close(g.queue)
	done, cancel := g.done, g.cancel
	g.qmu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("Notification queue not drained before shutdown", "pending", len(g.queue))
	}
	cancel()
}

// Notify accepts the alert for delivery unless an unexpired suppression
// exists for (type, entity). Returns true when the alert was queued.
// Delivery failures are logged and never returned.
func (g *Gateway) Notify(ctx context.Context, n Notification) bool {
	logger := slog.With(
		"trace_id", n.TraceID,
		"notification_type", n.Type,
		"entity_id", n.EntityID,
	)

	if g.disabled || g.sender == nil {
		logger.Info("Notification skipped, channel disabled", "message", n.Message)
		return false
	}

	d, ok := g.reserve(ctx, n, logger)
	if !ok {
		return false
	}

	g.qmu.RLock()
	defer g.qmu.RUnlock()

	if !g.accepting {
		logger.Warn("Notification dropped, gateway not running", "message", n.Message)
		g.release(ctx, d, logger)
		return false
	}

	select {
	case g.queue <- d:
		return true
	default:
		logger.Warn("Notification dropped, delivery queue full", "message", n.Message)
		g.release(ctx, d, logger)
		return false
	}
}

// reserve checks suppression and records the window before delivery
func (g *Gateway) reserve(ctx context.Context, n Notification, logger *slog.Logger) (delivery, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	d := delivery{n: n, at: now}

	if g.store == nil {
		return d, true
	}

	existing, err := g.store.FindActive(ctx, n.Type, n.EntityID, now)
	if err != nil {
		// Delivery still proceeds; a duplicate is better than a lost alert.
		logger.Warn("Failed to check notification suppression", "error", err)
	} else if existing != nil {
		logger.Debug("Notification suppressed", "expires_at", existing.ExpiresAt)
		return d, false
	}

	if window := g.window(n); window > 0 {
		record := &model.NotificationSuppression{
			Type:      n.Type,
			EntityID:  n.EntityID,
			Message:   n.Message,
			CreatedAt: now,
			ExpiresAt: now.Add(window),
		}
		if err := g.store.Create(ctx, record); err != nil {
			logger.Warn("Failed to record notification suppression", "error", err)
		} else {
			d.reservation = record
		}
	}

	return d, true
}

// release drops the reservation of an alert that was never delivered so
// the next occurrence is not suppressed
func (g *Gateway) release(ctx context.Context, d delivery, logger *slog.Logger) {
	if d.reservation == nil || g.store == nil {
		return
	}
	if err := g.store.Delete(context.WithoutCancel(ctx), d.reservation.ID); err != nil {
		logger.Warn("Failed to release notification suppression", "error", err)
	}
}

func (g *Gateway) worker(ctx context.Context) {
	defer close(g.done)

	for d := range g.queue {
		g.deliver(ctx, d)
	}
}

func (g *Gateway) deliver(ctx context.Context, d delivery) {
	logger := slog.With(
		"trace_id", d.n.TraceID,
		"notification_type", d.n.Type,
		"entity_id", d.n.EntityID,
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Notification delivery panic recovered", "panic", r)
		}
	}()

	payload := webhook.BuildPayload(d.n.Message, g.username, d.n.Embed, d.at)
	if _, err := g.sender.Send(ctx, payload, d.n.TraceID); err != nil {
		logger.Error("Failed to deliver notification", "error", err)
		g.release(ctx, d, logger)
		return
	}

	logger.Info("Notification delivered")
}

func (g *Gateway) window(n Notification) time.Duration {
	if n.Suppression != nil {
		return *n.Suppression
	}
	return DefaultSuppression[n.Type]
}

package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kelechi-nwosu/enrichd/internal/core"
	"github.com/kelechi-nwosu/enrichd/internal/core/retry"
	"github.com/kelechi-nwosu/enrichd/internal/models"
)

// SubscriptionManager keeps webhook subscriptions alive. The remote store
// caps subscription lifetime, so renewal replaces the subscription with a
// new one and deletes the old — never an in-place extension.
type SubscriptionManager struct {
	drive  core.DriveClient
	retry  retry.Policy
	logger *zap.Logger

	lifetime        time.Duration
	renewThreshold  time.Duration
	checkInterval   time.Duration
	notificationURL string
	clientState     string

	now func() time.Time
}

type SubscriptionConfig struct {
	Lifetime        time.Duration
	RenewThreshold  time.Duration
	CheckInterval   time.Duration
	NotificationURL string
	ClientState     string
}

func NewSubscriptionManager(drive core.DriveClient, retryPolicy retry.Policy, logger *zap.Logger, cfg SubscriptionConfig) *SubscriptionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = 72 * time.Hour
	}
	if cfg.RenewThreshold <= 0 {
		cfg.RenewThreshold = 24 * time.Hour
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 48 * time.Hour
	}
	return &SubscriptionManager{
		drive:           drive,
		retry:           retryPolicy,
		logger:          logger,
		lifetime:        cfg.Lifetime,
		renewThreshold:  cfg.RenewThreshold,
		checkInterval:   cfg.CheckInterval,
		notificationURL: cfg.NotificationURL,
		clientState:     cfg.ClientState,
		now:             time.Now,
	}
}

// Create registers a subscription on resource with the configured lifetime.
func (m *SubscriptionManager) Create(ctx context.Context, resource string) (*models.Subscription, error) {
	req := &models.Subscription{
		Resource:        resource,
		ChangeType:      "updated",
		NotificationURL: m.notificationURL,
		ExpirationTime:  m.now().Add(m.lifetime),
		ClientState:     m.clientState,
	}

	var created *models.Subscription
	err := m.retry.Do(ctx, "create-subscription", func(ctx context.Context) error {
		var createErr error
		created, createErr = m.drive.CreateSubscription(ctx, req)
		return createErr
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription for %s: %w", resource, err)
	}

	m.logger.Info("subscription created",
		zap.String("id", created.ID),
		zap.String("resource", created.Resource),
		zap.Time("expires", created.ExpirationTime))
	return created, nil
}

// RenewDue replaces every subscription within the renewal threshold of its
// expiry. One subscription's failure never blocks the others.
func (m *SubscriptionManager) RenewDue(ctx context.Context) (int, error) {
	var subs []models.Subscription
	err := m.retry.Do(ctx, "list-subscriptions", func(ctx context.Context) error {
		var listErr error
		subs, listErr = m.drive.ListSubscriptions(ctx)
		return listErr
	})
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	renewed := 0
	for _, sub := range subs {
		if sub.ExpirationTime.Sub(m.now()) > m.renewThreshold {
			continue
		}
		if err := m.renewOne(ctx, sub); err != nil {
			m.logger.Error("subscription renewal failed",
				zap.String("id", sub.ID),
				zap.String("resource", sub.Resource),
				zap.Error(err))
			continue
		}
		renewed++
	}
	return renewed, nil
}

// renewOne creates the replacement first so a delete failure can never leave
// the resource without an active subscription.
func (m *SubscriptionManager) renewOne(ctx context.Context, old models.Subscription) error {
	replacement, err := m.Create(ctx, old.Resource)
	if err != nil {
		return err
	}

	err = m.retry.Do(ctx, "delete-subscription", func(ctx context.Context) error {
		return m.drive.DeleteSubscription(ctx, old.ID)
	})
	if err != nil {
		// The replacement exists; the stale subscription expires on its own.
		m.logger.Warn("could not delete replaced subscription",
			zap.String("old", old.ID),
			zap.String("new", replacement.ID),
			zap.Error(err))
	}

	m.logger.Info("subscription renewed",
		zap.String("old", old.ID),
		zap.String("new", replacement.ID))
	return nil
}

// Start runs the periodic renewal job until ctx is cancelled.
func (m *SubscriptionManager) Start(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.logger.Info("subscription renewal loop stopped")
				return
			case <-ticker.C:
				if n, err := m.RenewDue(ctx); err != nil {
					m.logger.Error("renewal run failed", zap.Error(err))
				} else if n > 0 {
					m.logger.Info("renewal run complete", zap.Int("renewed", n))
				}
			}
		}
	}()
}

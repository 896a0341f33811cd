package repository

import (
	"context"
	"time"

	"educommerce/internal/domain/model"
)

// SubscriptionRepository is the port for user subscriptions.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, sub *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Subscription, error)
	FindOccupyingByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	FindPendingByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.Subscription, error)

	// ResetStalePending applies the timeout reset as a conditional update
	// keyed on the observed status_updated_at: sets status to free_plan,
	// clears the plan reference and the gateway agreement uid, and stamps
	// status_updated_at. Returns false without error when another writer got
	// there first.
	ResetStalePending(ctx context.Context, tx Tx, id string, observedStatusUpdatedAt time.Time) (bool, error)

	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}

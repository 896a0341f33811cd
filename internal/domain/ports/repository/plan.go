package repository

import (
	"context"

	"educommerce/internal/domain/model"
)

// SubscriptionPlanRepository is the read-mostly port over the plan catalog.
type SubscriptionPlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.SubscriptionPlan) error
	FindByID(ctx context.Context, id string) (*model.SubscriptionPlan, error)
	ListAll(ctx context.Context) ([]*model.SubscriptionPlan, error)
}

package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"educommerce/internal/domain/model"
	"educommerce/internal/domain/ports/repository"
)

// Compile-time check
var _ PlanUseCase = (*planUC)(nil)

// PlanUseCase is the read-only catalog view over plan definitions.
type PlanUseCase interface {
	List(ctx context.Context) ([]*model.SubscriptionPlan, error)
	Get(ctx context.Context, id string) (*model.SubscriptionPlan, error)
	Create(ctx context.Context, name string, price int64, period model.BillingPeriod, benefits model.PlanBenefits) (*model.SubscriptionPlan, error)
}

type planUC struct {
	plans repository.SubscriptionPlanRepository
	log   *zerolog.Logger
}

func NewPlanUseCase(plans repository.SubscriptionPlanRepository, logger *zerolog.Logger) *planUC {
	l := logger.With().Str("component", "PlanUC").Logger()
	return &planUC{plans: plans, log: &l}
}

func (uc *planUC) List(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	return uc.plans.ListAll(ctx)
}

func (uc *planUC) Get(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	return uc.plans.FindByID(ctx, id)
}

func (uc *planUC) Create(ctx context.Context, name string, price int64, period model.BillingPeriod, benefits model.PlanBenefits) (*model.SubscriptionPlan, error) {
	p, err := model.NewSubscriptionPlan(uuid.NewString(), name, price, period, benefits)
	if err != nil {
		return nil, err
	}
	if err := uc.plans.Save(ctx, repository.NoTX, p); err != nil {
		return nil, err
	}
	uc.log.Info().Str("plan_id", p.ID).Str("name", p.Name).Msg("plan created")
	return p, nil
}

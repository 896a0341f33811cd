package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"educommerce/internal/domain"
	"educommerce/internal/domain/model"
	"educommerce/internal/domain/ports/repository"
	"educommerce/internal/infra/metrics"
)

// DetermineAction is the decision engine core: given the user's full
// subscription and purchase history and a target plan, it picks the single
// legal next action. It is a pure projection over already-fetched
// collections: no network, no mutation, safe to run concurrently over
// independent snapshots.
//
// Priority order (first match wins):
//  1. nothing active, nothing pending            -> NEW_SUBSCRIPTION
//  2. pending sub for target plan, still fresh   -> RETRY_PAYMENT
//  3. active sub to a cheaper plan               -> UPGRADE
//  4. active sub to a pricier plan               -> DOWNGRADE
//  5. otherwise                                  -> NO_ACTION
//
// Independent of the action, HasActivePlusPending is set when both an active
// and a pending subscription to the target plan coexist (an upgrade attempt
// overlapping an existing active plan), so the caller can offer an explicit
// cancel-pending.
func DetermineAction(
	session model.SessionContext,
	targetPlan *model.SubscriptionPlan,
	purchases []*model.Purchase,
	plans []*model.SubscriptionPlan,
	subs []*model.Subscription,
	now time.Time,
	pendingTimeout time.Duration,
) (model.ActionDecision, error) {
	if targetPlan.IsZero() || session.UserID == "" {
		return model.ActionDecision{}, domain.ErrInvalidArgument
	}

	planByID := make(map[string]*model.SubscriptionPlan, len(plans))
	for _, p := range plans {
		planByID[p.ID] = p
	}

	var active, pending *model.Subscription
	for _, s := range subs {
		if s.UserID != session.UserID {
			continue
		}
		switch {
		case s.IsOccupying():
			active = s
		case s.Status == model.SubscriptionStatusPending:
			pending = s
		}
	}

	d := model.ActionDecision{Action: model.ActionNone}
	if active != nil {
		d.ActivePlanID = active.PlanID
	}
	d.HasActivePlusPending = active != nil && pending != nil &&
		active.PlanID == targetPlan.ID && pending.PlanID == targetPlan.ID

	switch {
	case active == nil && pending == nil:
		d.Action = model.ActionNewSubscription

	case pending != nil && pending.PlanID == targetPlan.ID && !pending.StalePendingSince(now, pendingTimeout):
		// Reuse the in-flight record; creating a second pending row would
		// break the at-most-one-pending invariant.
		d.Action = model.ActionRetryPayment
		d.SubscriptionID = pending.ID
		if pp := pendingPurchaseFor(purchases, session.UserID, now, pendingTimeout); pp != nil {
			d.PendingPurchaseID = pp.ID
		}

	case active != nil && active.PlanID != targetPlan.ID:
		activePrice := int64(0) // missing plan reference (post-reset free plan) prices as free
		if ap, ok := planByID[active.PlanID]; ok {
			activePrice = ap.Price
		}
		if activePrice < targetPlan.Price {
			d.Action = model.ActionUpgrade
		} else if activePrice > targetPlan.Price {
			d.Action = model.ActionDowngrade
		}
	}

	return d, nil
}

func pendingPurchaseFor(purchases []*model.Purchase, userID string, now time.Time, timeout time.Duration) *model.Purchase {
	for _, p := range purchases {
		if p.BuyerUserID == userID && p.PaymentStatus == model.PaymentStatusPending && !p.StalePendingSince(now, timeout) {
			return p
		}
	}
	return nil
}

// Compile-time check
var _ DecisionUseCase = (*decisionUC)(nil)

// DecisionUseCase fetches the snapshots the engine projects over. It is the
// single gate every checkout flow passes through before any creation call.
type DecisionUseCase interface {
	Determine(ctx context.Context, session model.SessionContext, targetPlanID string) (model.ActionDecision, error)
}

type decisionUC struct {
	plans          repository.SubscriptionPlanRepository
	subs           repository.SubscriptionRepository
	purchases      repository.PurchaseRepository
	pendingTimeout time.Duration
	log            *zerolog.Logger
}

func NewDecisionUseCase(
	plans repository.SubscriptionPlanRepository,
	subs repository.SubscriptionRepository,
	purchases repository.PurchaseRepository,
	pendingTimeout time.Duration,
	logger *zerolog.Logger,
) *decisionUC {
	l := logger.With().Str("component", "DecisionUC").Logger()
	return &decisionUC{plans: plans, subs: subs, purchases: purchases, pendingTimeout: pendingTimeout, log: &l}
}

func (uc *decisionUC) Determine(ctx context.Context, session model.SessionContext, targetPlanID string) (model.ActionDecision, error) {
	target, err := uc.plans.FindByID(ctx, targetPlanID)
	if err != nil {
		return model.ActionDecision{}, err
	}
	allPlans, err := uc.plans.ListAll(ctx)
	if err != nil {
		return model.ActionDecision{}, err
	}
	subs, err := uc.subs.ListByUser(ctx, repository.NoTX, session.UserID)
	if err != nil {
		return model.ActionDecision{}, err
	}
	purchases, err := uc.purchases.ListByBuyer(ctx, repository.NoTX, session.UserID)
	if err != nil {
		return model.ActionDecision{}, err
	}

	d, err := DetermineAction(session, target, purchases, allPlans, subs, time.Now(), uc.pendingTimeout)
	if err != nil {
		return model.ActionDecision{}, err
	}
	metrics.IncDecision(string(d.Action))
	uc.log.Debug().
		Str("user_id", session.UserID).
		Str("target_plan", targetPlanID).
		Str("action", string(d.Action)).
		Bool("active_plus_pending", d.HasActivePlusPending).
		Msg("decision computed")
	return d, nil
}

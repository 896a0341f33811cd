package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"educommerce/internal/domain"
	"educommerce/internal/domain/model"
	"educommerce/internal/domain/ports/adapter"
	"educommerce/internal/domain/ports/repository"
	"educommerce/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase owns every transition out of pending. Confirmations only
// happen against a gateway-verified status; the timeout path is a
// conditional, idempotent reset. paid and failed are absorbing.
type ReconcileUseCase interface {
	// ConfirmSubscription finalizes a pending subscription after the gateway
	// reported a terminal status. The reported status is re-verified with
	// the gateway before anything is written.
	ConfirmSubscription(ctx context.Context, subscriptionID string, gatewaySubscriptionUID string) (*model.Subscription, error)
	// ConfirmPurchase finalizes a pending purchase by id or order number.
	ConfirmPurchase(ctx context.Context, reference string) (*model.Purchase, error)
	// ExpireLapsed transitions an active subscription to expired after the
	// gateway reports its recurring agreement ended.
	ExpireLapsed(ctx context.Context, subscriptionID string) error
	// ReconcileStaleSubscription applies the pending-timeout reset to one
	// subscription. Running it twice on an already-reset record is a no-op.
	ReconcileStaleSubscription(ctx context.Context, sub *model.Subscription) (bool, error)
	// Sweep is the server-side enforcement of the timeout rule: it resets
	// every stale pending record regardless of any client ever revisiting.
	Sweep(ctx context.Context) (int, error)
}

type reconcileUC struct {
	subs           repository.SubscriptionRepository
	purchases      repository.PurchaseRepository
	plans          repository.SubscriptionPlanRepository
	gateway        adapter.PaymentGateway
	pendingTimeout time.Duration
	log            *zerolog.Logger
}

func NewReconcileUseCase(
	subs repository.SubscriptionRepository,
	purchases repository.PurchaseRepository,
	plans repository.SubscriptionPlanRepository,
	gateway adapter.PaymentGateway,
	pendingTimeout time.Duration,
	logger *zerolog.Logger,
) *reconcileUC {
	l := logger.With().Str("component", "ReconcileUC").Logger()
	if pendingTimeout <= 0 {
		pendingTimeout = 5 * time.Minute
	}
	return &reconcileUC{subs: subs, purchases: purchases, plans: plans, gateway: gateway, pendingTimeout: pendingTimeout, log: &l}
}

func (uc *reconcileUC) ConfirmSubscription(ctx context.Context, subscriptionID, gatewaySubscriptionUID string) (*model.Subscription, error) {
	sub, err := uc.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != model.SubscriptionStatusPending {
		// Webhook retry after we already finalized; nothing to do.
		return sub, nil
	}

	// Verification is keyed on the page reference the gateway issued at
	// checkout; our own record id means nothing to the gateway.
	if sub.PayPlusPageRequestUID == nil {
		metrics.IncReconcile("missing_page_ref")
		return nil, fmt.Errorf("%w: subscription %s has no gateway page reference", domain.ErrValidation, sub.ID)
	}
	approved, err := uc.gateway.VerifyTransaction(ctx, *sub.PayPlusPageRequestUID)
	if err != nil {
		metrics.IncReconcile("verify_error")
		return nil, err
	}
	if !approved {
		// Declined attempt: the record stays pending so RETRY_PAYMENT can
		// reuse it; the timeout reset catches abandoned ones.
		metrics.IncPayment("failed")
		uc.log.Info().Str("subscription_id", subscriptionID).Msg("gateway declined subscription payment")
		return sub, nil
	}

	now := time.Now()
	if err := sub.Transition(model.SubscriptionStatusActive, now); err != nil {
		return nil, err
	}
	if gatewaySubscriptionUID != "" {
		sub.PayPlusSubscriptionUID = &gatewaySubscriptionUID
	}
	if plan, err := uc.plans.FindByID(ctx, sub.PlanID); err == nil {
		sub.NextBillingDate = plan.NextBillingAfter(now)
		metrics.AddPaymentRevenue("ILS", plan.Price)
	}
	if err := uc.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return nil, err
	}
	metrics.IncPayment("succeeded")
	metrics.IncSubscriptionTransition(string(model.SubscriptionStatusActive))
	uc.log.Info().Str("subscription_id", sub.ID).Msg("subscription activated")
	return sub, nil
}

func (uc *reconcileUC) ConfirmPurchase(ctx context.Context, reference string) (*model.Purchase, error) {
	p, err := uc.purchases.FindByID(ctx, repository.NoTX, reference)
	if errors.Is(err, domain.ErrNotFound) && model.ValidOrderNumber(reference) {
		p, err = uc.purchases.FindByOrderNumber(ctx, repository.NoTX, reference)
	}
	if err != nil {
		return nil, err
	}
	if p.PaymentStatus.IsTerminal() {
		return p, nil // absorbing; webhook replays converge here
	}

	if p.PayPlusPageRequestUID == nil {
		metrics.IncReconcile("missing_page_ref")
		return nil, fmt.Errorf("%w: purchase %s has no gateway page reference", domain.ErrValidation, p.ID)
	}
	approved, err := uc.gateway.VerifyTransaction(ctx, *p.PayPlusPageRequestUID)
	if err != nil {
		metrics.IncReconcile("verify_error")
		return nil, err
	}
	status := model.PaymentStatusFailed
	if approved {
		status = model.PaymentStatusPaid
	}
	changed, err := uc.purchases.UpdatePaymentStatus(ctx, repository.NoTX, p.ID, status, time.Now())
	if err != nil {
		return nil, err
	}
	if changed {
		p.PaymentStatus = status
		if approved {
			metrics.IncPayment("succeeded")
			metrics.AddPaymentRevenue("ILS", p.PaymentAmount)
		} else {
			metrics.IncPayment("failed")
		}
		uc.log.Info().Str("purchase_id", p.ID).Str("order_number", p.OrderNumber).Str("status", string(status)).Msg("purchase finalized")
	}
	return p, nil
}

func (uc *reconcileUC) ExpireLapsed(ctx context.Context, subscriptionID string) error {
	sub, err := uc.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status == model.SubscriptionStatusExpired {
		return nil
	}
	if sub.Status != model.SubscriptionStatusActive {
		return fmt.Errorf("%w: subscription %s is %s", domain.ErrNoActiveSubscription, sub.ID, sub.Status)
	}
	if err := sub.Transition(model.SubscriptionStatusExpired, time.Now()); err != nil {
		return err
	}
	if err := uc.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return err
	}
	metrics.IncSubscriptionTransition(string(model.SubscriptionStatusExpired))
	return nil
}

func (uc *reconcileUC) ReconcileStaleSubscription(ctx context.Context, sub *model.Subscription) (bool, error) {
	now := time.Now()
	if !sub.StalePendingSince(now, uc.pendingTimeout) {
		return false, nil // fresh, already reset, or terminal: no-op
	}
	// Conditional update keyed on the status_updated_at we observed; a
	// concurrent reconciler wins exactly once and everyone converges.
	reset, err := uc.subs.ResetStalePending(ctx, repository.NoTX, sub.ID, sub.StatusUpdatedAt)
	if err != nil {
		return false, err
	}
	if reset {
		metrics.IncReconcile("subscription_reset")
		uc.log.Info().Str("subscription_id", sub.ID).Msg("stale pending subscription reset to free plan")
	}
	return reset, nil
}

func (uc *reconcileUC) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-uc.pendingTimeout)
	n := 0

	staleSubs, err := uc.subs.ListPendingOlderThan(ctx, repository.NoTX, cutoff, 200)
	if err != nil {
		return 0, err
	}
	for _, s := range staleSubs {
		reset, err := uc.ReconcileStaleSubscription(ctx, s)
		if err != nil {
			uc.log.Error().Err(err).Str("subscription_id", s.ID).Msg("sweep: subscription reset failed")
			continue
		}
		if reset {
			n++
		}
	}

	stalePurchases, err := uc.purchases.ListPendingOlderThan(ctx, repository.NoTX, cutoff, 200)
	if err != nil {
		return n, err
	}
	for _, p := range stalePurchases {
		changed, err := uc.purchases.UpdatePaymentStatus(ctx, repository.NoTX, p.ID, model.PaymentStatusFailed, time.Now())
		if err != nil {
			uc.log.Error().Err(err).Str("purchase_id", p.ID).Msg("sweep: purchase timeout failed")
			continue
		}
		if changed {
			metrics.IncReconcile("purchase_timeout")
			n++
		}
	}
	return n, nil
}

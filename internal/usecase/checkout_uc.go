package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"educommerce/internal/domain"
	"educommerce/internal/domain/model"
	"educommerce/internal/domain/ports/adapter"
	"educommerce/internal/domain/ports/repository"
	"educommerce/internal/infra/metrics"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

// CheckoutResult describes what the caller should do next: follow PaymentURL
// when one is set, otherwise the decision already settled the state.
type CheckoutResult struct {
	Decision     model.ActionDecision
	Subscription *model.Subscription
	Purchase     *model.Purchase
	PaymentURL   string
}

// PurchaseRequest carries the product-catalog facts the purchase flow needs.
// The product catalog itself is a collaborator; its pricing and access policy
// arrive with the intent.
type PurchaseRequest struct {
	Ref           model.PurchasableRef
	OriginalPrice int64
	CouponCode    string
	IsLifetime    bool
	AccessDays    *int
	Category      *string
	Title         string
}

// CheckoutUseCase is the only path that creates pending records. Every flow
// runs the decision engine first, so a retry reuses the in-flight record and
// the at-most-one-pending invariant holds.
type CheckoutUseCase interface {
	StartSubscription(ctx context.Context, session model.SessionContext, targetPlanID, frontendOrigin string) (*CheckoutResult, error)
	StartPurchase(ctx context.Context, session model.SessionContext, req PurchaseRequest, frontendOrigin string) (*CheckoutResult, error)
	// CancelPendingSubscription applies the idempotent pending -> cancelled
	// transition; cancelling an already-cancelled record is a no-op.
	CancelPendingSubscription(ctx context.Context, session model.SessionContext) error
}

type checkoutUC struct {
	decisions      DecisionUseCase
	coupons        CouponUseCase
	plans          repository.SubscriptionPlanRepository
	subs           repository.SubscriptionRepository
	purchases      repository.PurchaseRepository
	gateway        adapter.PaymentGateway
	txm            repository.TransactionManager
	loc            *time.Location
	pendingTimeout time.Duration
	log            *zerolog.Logger
}

func NewCheckoutUseCase(
	decisions DecisionUseCase,
	coupons CouponUseCase,
	plans repository.SubscriptionPlanRepository,
	subs repository.SubscriptionRepository,
	purchases repository.PurchaseRepository,
	gateway adapter.PaymentGateway,
	txm repository.TransactionManager,
	loc *time.Location,
	pendingTimeout time.Duration,
	logger *zerolog.Logger,
) *checkoutUC {
	l := logger.With().Str("component", "CheckoutUC").Logger()
	if loc == nil {
		loc = time.UTC
	}
	return &checkoutUC{
		decisions: decisions, coupons: coupons, plans: plans, subs: subs,
		purchases: purchases, gateway: gateway, txm: txm, loc: loc,
		pendingTimeout: pendingTimeout, log: &l,
	}
}

func (uc *checkoutUC) StartSubscription(ctx context.Context, session model.SessionContext, targetPlanID, frontendOrigin string) (*CheckoutResult, error) {
	decision, err := uc.decisions.Determine(ctx, session, targetPlanID)
	if err != nil {
		return nil, err
	}
	res := &CheckoutResult{Decision: decision}

	plan, err := uc.plans.FindByID(ctx, targetPlanID)
	if err != nil {
		return nil, err
	}

	switch decision.Action {
	case model.ActionNone:
		return res, nil

	case model.ActionRetryPayment:
		// Reuse the pending record; a fresh create here would race the retry
		// and duplicate the pending row.
		sub, err := uc.subs.FindByID(ctx, repository.NoTX, decision.SubscriptionID)
		if err != nil {
			return nil, err
		}
		res.Subscription = sub
		return uc.requestSubscriptionPage(ctx, session, res, sub, plan, frontendOrigin)

	case model.ActionNewSubscription, model.ActionUpgrade, model.ActionDowngrade:
		if plan.IsFree() {
			return res, uc.adoptFreePlan(ctx, session, res, plan)
		}
		sub, err := model.NewPendingSubscription(uuid.NewString(), session.UserID, plan)
		if err != nil {
			return nil, err
		}
		err = uc.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			// Re-check inside the transaction so two tabs cannot both insert.
			if existing, err := uc.subs.FindPendingByUser(ctx, tx, session.UserID); err == nil && existing != nil {
				return domain.ErrDuplicatePending
			} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			return uc.subs.Save(ctx, tx, sub)
		})
		if err != nil {
			return nil, err
		}
		res.Subscription = sub
		return uc.requestSubscriptionPage(ctx, session, res, sub, plan, frontendOrigin)
	}

	return nil, domain.ErrInvalidArgument
}

func (uc *checkoutUC) adoptFreePlan(ctx context.Context, session model.SessionContext, res *CheckoutResult, plan *model.SubscriptionPlan) error {
	now := time.Now()
	sub := &model.Subscription{
		ID:              uuid.NewString(),
		UserID:          session.UserID,
		PlanID:          plan.ID,
		Status:          model.SubscriptionStatusFreePlan,
		StatusUpdatedAt: now,
		CreatedAt:       now,
	}
	if err := uc.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return err
	}
	res.Subscription = sub
	uc.log.Info().Str("user_id", session.UserID).Str("plan_id", plan.ID).Msg("free plan adopted")
	return nil
}

func (uc *checkoutUC) requestSubscriptionPage(ctx context.Context, session model.SessionContext, res *CheckoutResult, sub *model.Subscription, plan *model.SubscriptionPlan, frontendOrigin string) (*CheckoutResult, error) {
	page, err := uc.gateway.CreatePage(ctx, adapter.PageRequest{
		Reference:      sub.ID,
		Recurring:      true,
		Amount:         plan.Price,
		FrontendOrigin: frontendOrigin,
		Environment:    session.Environment,
		Description:    fmt.Sprintf("subscription %s", plan.Name),
	})
	if err != nil {
		metrics.IncPayment("page_failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	// The page reference is what reconciliation verifies against; losing it
	// strands the record until the timeout reset.
	if page.PageRequestUID != "" {
		sub.PayPlusPageRequestUID = &page.PageRequestUID
	}
	if page.SubscriptionUID != "" {
		sub.PayPlusSubscriptionUID = &page.SubscriptionUID
	}
	if err := uc.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return nil, err
	}
	metrics.IncPayment("initiated")
	res.PaymentURL = page.PaymentURL
	return res, nil
}

func (uc *checkoutUC) StartPurchase(ctx context.Context, session model.SessionContext, req PurchaseRequest, frontendOrigin string) (*CheckoutResult, error) {
	if !req.Ref.Valid() || req.OriginalPrice < 0 {
		return nil, domain.ErrInvalidArgument
	}
	res := &CheckoutResult{}

	// Retry path: an in-flight pending purchase for the same product is
	// reused, order number and all.
	if existing, err := uc.purchases.FindPendingByBuyerAndRef(ctx, repository.NoTX, session.UserID, req.Ref); err == nil && existing != nil {
		if existing.StalePendingSince(time.Now(), uc.pendingTimeout) {
			// The sweep owns the timeout transition; inserting a second row
			// here would break the single-pending invariant.
			return nil, domain.ErrTimeoutExpired
		}
		res.Decision = model.ActionDecision{Action: model.ActionRetryPayment, PendingPurchaseID: existing.ID}
		res.Purchase = existing
		return uc.requestPurchasePage(ctx, session, res, existing, frontendOrigin)
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	var discount int64
	var couponCode *string
	if req.CouponCode != "" {
		cr, err := uc.coupons.Apply(ctx, req.CouponCode, req.OriginalPrice, req.Ref.Type, req.Category)
		if err != nil {
			// Invalid or inapplicable coupons surface to the caller; the
			// original price remains the fallback there.
			return nil, err
		}
		discount = cr.DiscountAmount
		code := cr.Coupon.Code
		couponCode = &code
	}

	expiry := ComputeAccessExpiry(req.IsLifetime, req.AccessDays, time.Now(), uc.loc)
	meta := map[string]any{"environment": session.Environment}
	if req.Title != "" {
		meta["product_title"] = req.Title
	}
	if session.Impersonated() {
		meta["impersonator_id"] = session.ImpersonatorID
	}

	p, err := model.NewPendingPurchase(uuid.NewString(), session.UserID, req.Ref, req.OriginalPrice, discount, couponCode, expiry, meta)
	if err != nil {
		return nil, err
	}

	err = uc.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if existing, err := uc.purchases.FindPendingByBuyerAndRef(ctx, tx, session.UserID, req.Ref); err == nil && existing != nil {
			if existing.StalePendingSince(time.Now(), uc.pendingTimeout) {
				return domain.ErrTimeoutExpired
			}
			return domain.ErrDuplicatePending
		} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return uc.purchases.Save(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	res.Decision = model.ActionDecision{Action: model.ActionNewSubscription}
	res.Purchase = p
	return uc.requestPurchasePage(ctx, session, res, p, frontendOrigin)
}

func (uc *checkoutUC) requestPurchasePage(ctx context.Context, session model.SessionContext, res *CheckoutResult, p *model.Purchase, frontendOrigin string) (*CheckoutResult, error) {
	if p.PaymentAmount == 0 {
		// Fully discounted: no gateway round-trip, confirm locally.
		if _, err := uc.purchases.UpdatePaymentStatus(ctx, repository.NoTX, p.ID, model.PaymentStatusPaid, time.Now()); err != nil {
			return nil, err
		}
		p.PaymentStatus = model.PaymentStatusPaid
		return res, nil
	}
	page, err := uc.gateway.CreatePage(ctx, adapter.PageRequest{
		Reference:      p.ID,
		Amount:         p.PaymentAmount,
		FrontendOrigin: frontendOrigin,
		Environment:    session.Environment,
		Description:    p.OrderNumber,
		Meta:           p.Meta,
	})
	if err != nil {
		metrics.IncPayment("page_failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	if page.PageRequestUID != "" {
		p.PayPlusPageRequestUID = &page.PageRequestUID
		if err := uc.purchases.Save(ctx, repository.NoTX, p); err != nil {
			return nil, err
		}
	}
	metrics.IncPayment("initiated")
	res.PaymentURL = page.PaymentURL
	return res, nil
}

func (uc *checkoutUC) CancelPendingSubscription(ctx context.Context, session model.SessionContext) error {
	sub, err := uc.subs.FindPendingByUser(ctx, repository.NoTX, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil // already gone; cancel is idempotent
		}
		return err
	}
	if err := sub.Transition(model.SubscriptionStatusCancelled, time.Now()); err != nil {
		return err
	}
	if err := uc.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return err
	}
	metrics.IncSubscriptionTransition(string(model.SubscriptionStatusCancelled))
	uc.log.Info().Str("user_id", session.UserID).Str("subscription_id", sub.ID).Msg("pending subscription cancelled")
	return nil
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"educommerce/internal/domain"
	"educommerce/internal/domain/model"
	"educommerce/internal/usecase"
)

type planDTO struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Price           int64     `json:"price"`
	BillingPeriod   string    `json:"billing_period,omitempty"`
	GamesLimit      *int      `json:"games_limit"`
	ClassroomsLimit *int      `json:"classrooms_limit"`
	ReportsAccess   bool      `json:"reports_access"`
	CreatedAt       time.Time `json:"created_at"`
}

func toPlanDTO(p *model.SubscriptionPlan) planDTO {
	return planDTO{
		ID:              p.ID,
		Name:            p.Name,
		Price:           p.Price,
		BillingPeriod:   string(p.BillingPeriod),
		GamesLimit:      p.Benefits.GamesLimit,
		ClassroomsLimit: p.Benefits.ClassroomsLimit,
		ReportsAccess:   p.Benefits.ReportsAccess,
		CreatedAt:       p.CreatedAt,
	}
}

type subscriptionDTO struct {
	ID                     string     `json:"id"`
	UserID                 string     `json:"user_id"`
	PlanID                 string     `json:"plan_id,omitempty"`
	Status                 string     `json:"status"`
	PayPlusSubscriptionUID *string    `json:"payplus_subscription_uid,omitempty"`
	NextBillingDate        *time.Time `json:"next_billing_date,omitempty"`
	StatusUpdatedAt        time.Time  `json:"status_updated_at"`
	CreatedAt              time.Time  `json:"created_at"`
}

func toSubscriptionDTO(s *model.Subscription) subscriptionDTO {
	return subscriptionDTO{
		ID:                     s.ID,
		UserID:                 s.UserID,
		PlanID:                 s.PlanID,
		Status:                 string(s.Status),
		PayPlusSubscriptionUID: s.PayPlusSubscriptionUID,
		NextBillingDate:        s.NextBillingDate,
		StatusUpdatedAt:        s.StatusUpdatedAt,
		CreatedAt:              s.CreatedAt,
	}
}

type purchaseDTO struct {
	ID              string         `json:"id"`
	OrderNumber     string         `json:"order_number"`
	BuyerUserID     string         `json:"buyer_user_id"`
	PurchasableType string         `json:"purchasable_type"`
	PurchasableID   string         `json:"purchasable_id"`
	PaymentAmount   int64          `json:"payment_amount"`
	OriginalPrice   int64          `json:"original_price"`
	DiscountAmount  int64          `json:"discount_amount"`
	CouponCode      *string        `json:"coupon_code,omitempty"`
	PaymentStatus   string         `json:"payment_status"`
	AccessExpiresAt *time.Time     `json:"access_expires_at,omitempty"`
	AccessExpired   bool           `json:"access_expired"`
	Meta            map[string]any `json:"meta,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func toPurchaseDTO(p *model.Purchase, now time.Time) purchaseDTO {
	return purchaseDTO{
		ID:              p.ID,
		OrderNumber:     p.OrderNumber,
		BuyerUserID:     p.BuyerUserID,
		PurchasableType: string(p.Purchasable.Type),
		PurchasableID:   p.Purchasable.ID,
		PaymentAmount:   p.PaymentAmount,
		OriginalPrice:   p.OriginalPrice,
		DiscountAmount:  p.DiscountAmount,
		CouponCode:      p.CouponCode,
		PaymentStatus:   string(p.PaymentStatus),
		AccessExpiresAt: p.AccessExpiresAt,
		AccessExpired:   p.AccessExpired(now),
		Meta:            p.Meta,
		CreatedAt:       p.CreatedAt,
	}
}

type decisionDTO struct {
	Action               string `json:"action"`
	SubscriptionID       string `json:"subscription_id,omitempty"`
	PendingPurchaseID    string `json:"pending_purchase_id,omitempty"`
	ActivePlanID         string `json:"active_plan_id,omitempty"`
	HasActivePlusPending bool   `json:"has_active_plus_pending"`
}

func toDecisionDTO(d model.ActionDecision) decisionDTO {
	return decisionDTO{
		Action:               string(d.Action),
		SubscriptionID:       d.SubscriptionID,
		PendingPurchaseID:    d.PendingPurchaseID,
		ActivePlanID:         d.ActivePlanID,
		HasActivePlusPending: d.HasActivePlusPending,
	}
}

type checkoutDTO struct {
	Decision     decisionDTO      `json:"decision"`
	Subscription *subscriptionDTO `json:"subscription,omitempty"`
	Purchase     *purchaseDTO     `json:"purchase,omitempty"`
	PaymentURL   string           `json:"payment_url,omitempty"`
}

func toCheckoutDTO(res *usecase.CheckoutResult, now time.Time) checkoutDTO {
	out := checkoutDTO{Decision: toDecisionDTO(res.Decision), PaymentURL: res.PaymentURL}
	if res.Subscription != nil {
		s := toSubscriptionDTO(res.Subscription)
		out.Subscription = &s
	}
	if res.Purchase != nil {
		p := toPurchaseDTO(res.Purchase, now)
		out.Purchase = &p
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

// writeDomainError maps the domain error taxonomy onto HTTP statuses. Every
// handler funnels failures through here so the wire codes stay consistent.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, domain.ErrInvalidCoupon):
		writeError(w, http.StatusBadRequest, "invalid_coupon", err.Error())
	case errors.Is(err, domain.ErrCouponNotApplicable):
		writeError(w, http.StatusBadRequest, "coupon_not_applicable", err.Error())
	case errors.Is(err, domain.ErrDuplicatePending), errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "duplicate_pending", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrTerminalState):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrNoActiveSubscription):
		writeError(w, http.StatusConflict, "no_active_subscription", err.Error())
	case errors.Is(err, domain.ErrTimeoutExpired):
		writeError(w, http.StatusConflict, "pending_timed_out", err.Error())
	case errors.Is(err, domain.ErrGateway):
		writeError(w, http.StatusBadGateway, "gateway_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

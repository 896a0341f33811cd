package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"educommerce/internal/domain"
	"educommerce/internal/domain/model"
	"educommerce/internal/domain/ports/repository"
	"educommerce/internal/infra/payment"
	"educommerce/internal/usecase"
)

// Server exposes the commerce lifecycle over HTTP. Handlers delegate every
// state change to a use case; none of them flips a status enum directly.
type Server struct {
	plans     usecase.PlanUseCase
	coupons   usecase.CouponUseCase
	checkout  usecase.CheckoutUseCase
	reconcile usecase.ReconcileUseCase

	subs      repository.SubscriptionRepository
	purchases repository.PurchaseRepository

	frontendOrigin string
	payplusSecret  string
	log            *zerolog.Logger
}

func NewServer(
	plans usecase.PlanUseCase,
	coupons usecase.CouponUseCase,
	checkout usecase.CheckoutUseCase,
	reconcile usecase.ReconcileUseCase,
	subs repository.SubscriptionRepository,
	purchases repository.PurchaseRepository,
	frontendOrigin, payplusSecret string,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "api").Logger()
	return &Server{
		plans: plans, coupons: coupons, checkout: checkout, reconcile: reconcile,
		subs: subs, purchases: purchases,
		frontendOrigin: frontendOrigin, payplusSecret: payplusSecret, log: &l,
	}
}

// Router assembles the chi mux. The gateway callback and the operational
// endpoints stay outside the auth group: PayPlus does not carry our tokens.
func (s *Server) Router(hmacSecret, environment string) http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(s.log), TraceID(), RequestLog(s.log), Timeout(30*time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/api/v1/payments/callback", s.handleGatewayCallback)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticate(hmacSecret, environment))

		r.Get("/plans", s.handleListPlans)
		r.Post("/plans", s.handleCreatePlan)
		r.Get("/subscriptions", s.handleListSubscriptions)
		r.Put("/subscriptions/{id}", s.handleUpdateSubscription)
		r.Get("/purchases", s.handleListPurchases)
		r.Post("/purchases", s.handleCreatePurchase)
		r.Put("/purchases/{id}", s.handleUpdatePurchase)
		r.Post("/coupons/apply", s.handleApplyCoupon)
		r.Post("/payments/create-page", s.handleCreatePaymentPage)
		r.Post("/payments/complete", s.handlePaymentComplete)
	})
	return r
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.plans.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]planDTO, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanDTO(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name            string `json:"name"`
		Price           int64  `json:"price"`
		BillingPeriod   string `json:"billing_period"`
		GamesLimit      *int   `json:"games_limit"`
		ClassroomsLimit *int   `json:"classrooms_limit"`
		ReportsAccess   bool   `json:"reports_access"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "malformed body")
		return
	}
	benefits := model.PlanBenefits{
		GamesLimit:      body.GamesLimit,
		ClassroomsLimit: body.ClassroomsLimit,
		ReportsAccess:   body.ReportsAccess,
	}
	p, err := s.plans.Create(r.Context(), body.Name, body.Price, model.BillingPeriod(body.BillingPeriod), benefits)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanDTO(p))
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no session")
		return
	}
	subs, err := s.subs.ListByUser(r.Context(), repository.NoTX, session.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]subscriptionDTO, 0, len(subs))
	for _, sub := range subs {
		out = append(out, toSubscriptionDTO(sub))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleUpdateSubscription accepts an action verb, never a raw status value.
func (s *Server) handleUpdateSubscription(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no session")
		return
	}
	id := chi.URLParam(r, "id")
	var body struct {
		Action                 string `json:"action"`
		GatewaySubscriptionUID string `json:"gateway_subscription_uid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "malformed body")
		return
	}

	switch body.Action {
	case "cancel_pending":
		if err := s.checkout.CancelPendingSubscription(r.Context(), session); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	case "confirm":
		sub, err := s.reconcile.ConfirmSubscription(r.Context(), id, body.GatewaySubscriptionUID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSubscriptionDTO(sub))
	case "expire":
		if err := s.reconcile.ExpireLapsed(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "expired"})
	default:
		writeError(w, http.StatusBadRequest, "validation_error", "unknown action")
	}
}

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no session")
		return
	}
	filter, err := parsePurchaseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var list []*model.Purchase
	if on := filter.orderNumber(); on != "" {
		p, err := s.purchases.FindByOrderNumber(r.Context(), repository.NoTX, on)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			writeDomainError(w, err)
			return
		}
		if p != nil && p.BuyerUserID == session.UserID {
			list = []*model.Purchase{p}
		}
	} else {
		list, err = s.purchases.ListByBuyer(r.Context(), repository.NoTX, session.UserID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
	}

	now := time.Now()
	out := make([]purchaseDTO, 0, len(list))
	for _, p := range list {
		if filter == nil || filter.matches(p) {
			out = append(out, toPurchaseDTO(p, now))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no session")
		return
	}
	var body struct {
		PurchasableType string  `json:"purchasable_type"`
		PurchasableID   string  `json:"purchasable_id"`
		OriginalPrice   int64   `json:"original_price"`
		CouponCode      string  `json:"coupon_code"`
		IsLifetime      bool    `json:"is_lifetime"`
		AccessDays      *int    `json:"access_days"`
		Category        *string `json:"category"`
		Title           string  `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "malformed body")
		return
	}

	res, err := s.checkout.StartPurchase(r.Context(), session, usecase.PurchaseRequest{
		Ref:           model.PurchasableRef{Type: model.PurchasableType(body.PurchasableType), ID: body.PurchasableID},
		OriginalPrice: body.OriginalPrice,
		CouponCode:    body.CouponCode,
		IsLifetime:    body.IsLifetime,
		AccessDays:    body.AccessDays,
		Category:      body.Category,
		Title:         body.Title,
	}, s.frontendOrigin)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCheckoutDTO(res, time.Now()))
}

func (s *Server) handleUpdatePurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "malformed body")
		return
	}
	if body.Action != "confirm" {
		writeError(w, http.StatusBadRequest, "validation_error", "unknown action")
		return
	}
	p, err := s.reconcile.ConfirmPurchase(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseDTO(p, time.Now()))
}

func (s *Server) handleApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code          string  `json:"code"`
		OriginalPrice int64   `json:"original_price"`
		ProductType   string  `json:"product_type"`
		Category      *string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "malformed body")
		return
	}
	res, err := s.coupons.Apply(r.Context(), body.Code, body.OriginalPrice, model.PurchasableType(body.ProductType), body.Category)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"code":            res.Coupon.Code,
		"original_price":  res.OriginalPrice,
		"final_price":     res.FinalPrice,
		"discount_amount": res.DiscountAmount,
	})
}

// handleCreatePaymentPage requests a hosted payment page for a plan selection
// or for an existing pending record referenced by id. Either way the checkout
// gate decides; the handler only resolves the reference and checks ownership.
func (s *Server) handleCreatePaymentPage(w http.ResponseWriter, r *http.Request) {
	session, ok := SessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no session")
		return
	}
	var body struct {
		PlanID         string `json:"plan_id"`
		SubscriptionID string `json:"subscription_id"`
		PurchaseID     string `json:"purchase_id"`
		FrontendOrigin string `json:"frontend_origin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "malformed body")
		return
	}
	origin := body.FrontendOrigin
	if origin == "" {
		origin = s.frontendOrigin
	}

	var (
		res *usecase.CheckoutResult
		err error
	)
	switch {
	case body.PurchaseID != "":
		p, ferr := s.purchases.FindByID(r.Context(), repository.NoTX, body.PurchaseID)
		if ferr != nil {
			writeDomainError(w, ferr)
			return
		}
		if p.BuyerUserID != session.UserID {
			writeError(w, http.StatusNotFound, "not_found", "purchase not found")
			return
		}
		if p.PaymentStatus.IsTerminal() {
			writeDomainError(w, domain.ErrTerminalState)
			return
		}
		// The checkout gate recognizes the in-flight record by buyer and
		// product and reuses it, order number and all.
		res, err = s.checkout.StartPurchase(r.Context(), session, usecase.PurchaseRequest{
			Ref:           p.Purchasable,
			OriginalPrice: p.OriginalPrice,
		}, origin)
	case body.SubscriptionID != "":
		sub, ferr := s.subs.FindByID(r.Context(), repository.NoTX, body.SubscriptionID)
		if ferr != nil {
			writeDomainError(w, ferr)
			return
		}
		if sub.UserID != session.UserID {
			writeError(w, http.StatusNotFound, "not_found", "subscription not found")
			return
		}
		res, err = s.checkout.StartSubscription(r.Context(), session, sub.PlanID, origin)
	case body.PlanID != "":
		res, err = s.checkout.StartSubscription(r.Context(), session, body.PlanID, origin)
	default:
		writeError(w, http.StatusBadRequest, "validation_error", "plan_id, subscription_id or purchase_id is required")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckoutDTO(res, time.Now()))
}

// handlePaymentComplete relays the hosted page's window message. A payload
// that is not ours is acknowledged and dropped; the authoritative state comes
// from gateway verification inside the reconciler either way.
func (s *Server) handlePaymentComplete(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "unreadable body")
		return
	}
	msg, ok := payment.ParseCompletionMessage(raw)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	switch {
	case msg.SubscriptionID != "":
		if _, err := s.reconcile.ConfirmSubscription(r.Context(), msg.SubscriptionID, ""); err != nil {
			writeDomainError(w, err)
			return
		}
	default:
		ref := msg.PurchaseID
		if ref == "" {
			ref = msg.OrderNumber
		}
		if _, err := s.reconcile.ConfirmPurchase(r.Context(), ref); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// handleGatewayCallback is the server-to-server IPN path. The HMAC header is
// checked before the body is trusted at all.
func (s *Server) handleGatewayCallback(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "unreadable body")
		return
	}
	if !payment.VerifyCallbackSignature(s.payplusSecret, raw, r.Header.Get("Hash")) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "bad signature")
		return
	}

	var body struct {
		MoreInfo     string `json:"more_info"`
		RecurringUID string `json:"recurring_uid"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.MoreInfo == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "missing reference")
		return
	}

	if body.RecurringUID != "" {
		if _, err := s.reconcile.ConfirmSubscription(r.Context(), body.MoreInfo, body.RecurringUID); err != nil {
			writeDomainError(w, err)
			return
		}
	} else {
		if _, err := s.reconcile.ConfirmPurchase(r.Context(), body.MoreInfo); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

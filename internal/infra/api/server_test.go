package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"educommerce/internal/domain"
	"educommerce/internal/domain/model"
	"educommerce/internal/domain/ports/repository"
	"educommerce/internal/usecase"
)

const (
	testSecret        = "test-hmac-secret"
	testPayPlusSecret = "payplus-secret"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func signToken(t *testing.T, sub, impersonator string) string {
	t.Helper()
	claims := identityClaims{
		Impersonator: impersonator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return raw
}

//
// ---------------- mock use cases ----------------
//

type mockPlanUC struct {
	ListFunc   func(ctx context.Context) ([]*model.SubscriptionPlan, error)
	GetFunc    func(ctx context.Context, id string) (*model.SubscriptionPlan, error)
	CreateFunc func(ctx context.Context, name string, price int64, period model.BillingPeriod, b model.PlanBenefits) (*model.SubscriptionPlan, error)
}

func (m *mockPlanUC) List(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *mockPlanUC) Get(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockPlanUC) Create(ctx context.Context, name string, price int64, period model.BillingPeriod, b model.PlanBenefits) (*model.SubscriptionPlan, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, name, price, period, b)
	}
	return model.NewSubscriptionPlan("plan-x", name, price, period, b)
}

type mockCouponUC struct {
	ApplyFunc func(ctx context.Context, code string, price int64, pt model.PurchasableType, cat *string) (*usecase.CouponResult, error)
}

func (m *mockCouponUC) Apply(ctx context.Context, code string, price int64, pt model.PurchasableType, cat *string) (*usecase.CouponResult, error) {
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, code, price, pt, cat)
	}
	return nil, domain.ErrInvalidCoupon
}

type mockCheckoutUC struct {
	StartSubscriptionFunc func(ctx context.Context, s model.SessionContext, planID, origin string) (*usecase.CheckoutResult, error)
	StartPurchaseFunc     func(ctx context.Context, s model.SessionContext, req usecase.PurchaseRequest, origin string) (*usecase.CheckoutResult, error)
	CancelFunc            func(ctx context.Context, s model.SessionContext) error
}

func (m *mockCheckoutUC) StartSubscription(ctx context.Context, s model.SessionContext, planID, origin string) (*usecase.CheckoutResult, error) {
	if m.StartSubscriptionFunc != nil {
		return m.StartSubscriptionFunc(ctx, s, planID, origin)
	}
	return &usecase.CheckoutResult{}, nil
}

func (m *mockCheckoutUC) StartPurchase(ctx context.Context, s model.SessionContext, req usecase.PurchaseRequest, origin string) (*usecase.CheckoutResult, error) {
	if m.StartPurchaseFunc != nil {
		return m.StartPurchaseFunc(ctx, s, req, origin)
	}
	return &usecase.CheckoutResult{}, nil
}

func (m *mockCheckoutUC) CancelPendingSubscription(ctx context.Context, s model.SessionContext) error {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, s)
	}
	return nil
}

type mockReconcileUC struct {
	ConfirmSubscriptionFunc func(ctx context.Context, id, uid string) (*model.Subscription, error)
	ConfirmPurchaseFunc     func(ctx context.Context, ref string) (*model.Purchase, error)
	ExpireFunc              func(ctx context.Context, id string) error
}

func (m *mockReconcileUC) ConfirmSubscription(ctx context.Context, id, uid string) (*model.Subscription, error) {
	if m.ConfirmSubscriptionFunc != nil {
		return m.ConfirmSubscriptionFunc(ctx, id, uid)
	}
	return nil, domain.ErrNotFound
}

func (m *mockReconcileUC) ConfirmPurchase(ctx context.Context, ref string) (*model.Purchase, error) {
	if m.ConfirmPurchaseFunc != nil {
		return m.ConfirmPurchaseFunc(ctx, ref)
	}
	return nil, domain.ErrNotFound
}

func (m *mockReconcileUC) ExpireLapsed(ctx context.Context, id string) error {
	if m.ExpireFunc != nil {
		return m.ExpireFunc(ctx, id)
	}
	return nil
}

func (m *mockReconcileUC) ReconcileStaleSubscription(context.Context, *model.Subscription) (bool, error) {
	return false, nil
}

func (m *mockReconcileUC) Sweep(context.Context) (int, error) { return 0, nil }

//
// ---------------- in-memory repos (read endpoints) ----------------
//

type memSubRepo struct {
	mu   sync.RWMutex
	subs map[string]*model.Subscription
}

func newMemSubRepo() *memSubRepo { return &memSubRepo{subs: map[string]*model.Subscription{}} }

func (m *memSubRepo) Save(_ context.Context, _ repository.Tx, s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subs[s.ID] = &cp
	return nil
}

func (m *memSubRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.subs[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memSubRepo) ListByUser(_ context.Context, _ repository.Tx, userID string) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memSubRepo) FindOccupyingByUser(_ context.Context, _ repository.Tx, _ string) (*model.Subscription, error) {
	return nil, domain.ErrNotFound
}

func (m *memSubRepo) FindPendingByUser(_ context.Context, _ repository.Tx, _ string) (*model.Subscription, error) {
	return nil, domain.ErrNotFound
}

func (m *memSubRepo) ListPendingOlderThan(_ context.Context, _ repository.Tx, _ time.Time, _ int) ([]*model.Subscription, error) {
	return nil, nil
}

func (m *memSubRepo) ResetStalePending(_ context.Context, _ repository.Tx, _ string, _ time.Time) (bool, error) {
	return false, nil
}

func (m *memSubRepo) CountByStatus(_ context.Context, _ repository.Tx) (map[model.SubscriptionStatus]int, error) {
	return nil, nil
}

type memPurchaseRepo struct {
	mu        sync.RWMutex
	purchases map[string]*model.Purchase
}

func newMemPurchaseRepo() *memPurchaseRepo {
	return &memPurchaseRepo{purchases: map[string]*model.Purchase{}}
}

func (m *memPurchaseRepo) Save(_ context.Context, _ repository.Tx, p *model.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.purchases[p.ID] = &cp
	return nil
}

func (m *memPurchaseRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.purchases[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memPurchaseRepo) FindByOrderNumber(_ context.Context, _ repository.Tx, orderNumber string) (*model.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.purchases {
		if p.OrderNumber == orderNumber {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPurchaseRepo) ListByBuyer(_ context.Context, _ repository.Tx, buyerUserID string) ([]*model.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Purchase
	for _, p := range m.purchases {
		if p.BuyerUserID == buyerUserID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPurchaseRepo) FindPendingByBuyerAndRef(_ context.Context, _ repository.Tx, _ string, _ model.PurchasableRef) (*model.Purchase, error) {
	return nil, domain.ErrNotFound
}

func (m *memPurchaseRepo) ListPendingOlderThan(_ context.Context, _ repository.Tx, _ time.Time, _ int) ([]*model.Purchase, error) {
	return nil, nil
}

func (m *memPurchaseRepo) UpdatePaymentStatus(_ context.Context, _ repository.Tx, _ string, _ model.PaymentStatus, _ time.Time) (bool, error) {
	return false, nil
}

//
// ---------------- fixture ----------------
//

type serverFixture struct {
	handler   http.Handler
	subs      *memSubRepo
	purchases *memPurchaseRepo
	checkout  *mockCheckoutUC
	reconcile *mockReconcileUC
	coupons   *mockCouponUC
	plans     *mockPlanUC
}

func newServerFixture() *serverFixture {
	f := &serverFixture{
		subs:      newMemSubRepo(),
		purchases: newMemPurchaseRepo(),
		checkout:  &mockCheckoutUC{},
		reconcile: &mockReconcileUC{},
		coupons:   &mockCouponUC{},
		plans:     &mockPlanUC{},
	}
	srv := NewServer(f.plans, f.coupons, f.checkout, f.reconcile, f.subs, f.purchases,
		"https://app.example", testPayPlusSecret, newTestLogger())
	f.handler = srv.Router(testSecret, "production")
	return f
}

func (f *serverFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

//
// ---------------- tests ----------------
//

func TestServer_Auth(t *testing.T) {
	f := newServerFixture()

	t.Run("should reject requests without a token", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/subscriptions", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("should reject a token signed with the wrong secret", func(t *testing.T) {
		claims := jwt.RegisteredClaims{Subject: "u1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
		bad, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))
		rec := f.do(t, http.MethodGet, "/api/v1/subscriptions", bad, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("should accept a valid token and scope to its subject", func(t *testing.T) {
		// --- Arrange ---
		_ = f.subs.Save(context.Background(), repository.NoTX, &model.Subscription{
			ID: "s1", UserID: "u1", PlanID: "p1", Status: model.SubscriptionStatusActive,
		})
		_ = f.subs.Save(context.Background(), repository.NoTX, &model.Subscription{
			ID: "s2", UserID: "u2", PlanID: "p1", Status: model.SubscriptionStatusActive,
		})

		// --- Act ---
		rec := f.do(t, http.MethodGet, "/api/v1/subscriptions", signToken(t, "u1", ""), nil)

		// --- Assert ---
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var got []subscriptionDTO
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 1 || got[0].ID != "s1" {
			t.Errorf("expected only u1's subscription, got %+v", got)
		}
	})

	t.Run("should pass the impersonation claim into the session", func(t *testing.T) {
		// --- Arrange ---
		var seen model.SessionContext
		f.checkout.StartPurchaseFunc = func(_ context.Context, s model.SessionContext, _ usecase.PurchaseRequest, _ string) (*usecase.CheckoutResult, error) {
			seen = s
			return &usecase.CheckoutResult{}, nil
		}

		// --- Act ---
		rec := f.do(t, http.MethodPost, "/api/v1/purchases", signToken(t, "u1", "admin-7"), map[string]any{
			"purchasable_type": "workshop", "purchasable_id": "w1", "original_price": 100,
		})

		// --- Assert ---
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if seen.UserID != "u1" || seen.ImpersonatorID != "admin-7" || seen.Environment != "production" {
			t.Errorf("unexpected session %+v", seen)
		}
	})
}

func TestServer_Purchases(t *testing.T) {
	t.Run("should filter the buyer's purchases", func(t *testing.T) {
		// --- Arrange ---
		f := newServerFixture()
		ctx := context.Background()
		_ = f.purchases.Save(ctx, repository.NoTX, &model.Purchase{
			ID: "p1", OrderNumber: "EDU-000001aaaaaa", BuyerUserID: "u1",
			Purchasable: model.WorkshopRef("w1"), PaymentStatus: model.PaymentStatusPaid,
		})
		_ = f.purchases.Save(ctx, repository.NoTX, &model.Purchase{
			ID: "p2", OrderNumber: "EDU-000002bbbbbb", BuyerUserID: "u1",
			Purchasable: model.CourseRef("c1"), PaymentStatus: model.PaymentStatusPending,
		})

		// --- Act ---
		rec := f.do(t, http.MethodGet, `/api/v1/purchases?filter={"payment_status":"paid"}`, signToken(t, "u1", ""), nil)

		// --- Assert ---
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var got []purchaseDTO
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if len(got) != 1 || got[0].ID != "p1" {
			t.Errorf("expected only the paid purchase, got %+v", got)
		}
	})

	t.Run("should not leak another user's purchase through an order-number lookup", func(t *testing.T) {
		// --- Arrange ---
		f := newServerFixture()
		_ = f.purchases.Save(context.Background(), repository.NoTX, &model.Purchase{
			ID: "p3", OrderNumber: "EDU-000003cccccc", BuyerUserID: "u2",
			Purchasable: model.WorkshopRef("w1"), PaymentStatus: model.PaymentStatusPaid,
		})

		// --- Act ---
		rec := f.do(t, http.MethodGet, `/api/v1/purchases?filter={"order_number":"EDU-000003cccccc"}`, signToken(t, "u1", ""), nil)

		// --- Assert ---
		var got []purchaseDTO
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if len(got) != 0 {
			t.Errorf("expected an empty result, got %+v", got)
		}
	})

	t.Run("should map a confirm action to the reconciler", func(t *testing.T) {
		// --- Arrange ---
		f := newServerFixture()
		var confirmed string
		f.reconcile.ConfirmPurchaseFunc = func(_ context.Context, ref string) (*model.Purchase, error) {
			confirmed = ref
			return &model.Purchase{ID: ref, PaymentStatus: model.PaymentStatusPaid, Purchasable: model.WorkshopRef("w1")}, nil
		}

		// --- Act ---
		rec := f.do(t, http.MethodPut, "/api/v1/purchases/p9", signToken(t, "u1", ""), map[string]string{"action": "confirm"})

		// --- Assert ---
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if confirmed != "p9" {
			t.Errorf("expected confirm for p9, got %q", confirmed)
		}
	})

	t.Run("should reject an unknown purchase action", func(t *testing.T) {
		f := newServerFixture()
		rec := f.do(t, http.MethodPut, "/api/v1/purchases/p9", signToken(t, "u1", ""), map[string]string{"action": "mark_paid"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestServer_Coupons(t *testing.T) {
	t.Run("should map coupon errors onto 400 with an error code", func(t *testing.T) {
		// --- Arrange ---
		f := newServerFixture()
		f.coupons.ApplyFunc = func(context.Context, string, int64, model.PurchasableType, *string) (*usecase.CouponResult, error) {
			return nil, domain.ErrCouponNotApplicable
		}

		// --- Act ---
		rec := f.do(t, http.MethodPost, "/api/v1/coupons/apply", signToken(t, "u1", ""), map[string]any{
			"code": "SAVE20", "original_price": 100, "product_type": "game",
		})

		// --- Assert ---
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		var body struct {
			Error struct{ Code string }
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Error.Code != "coupon_not_applicable" {
			t.Errorf("expected coupon_not_applicable, got %q", body.Error.Code)
		}
	})
}

func TestServer_GatewayCallback(t *testing.T) {
	sign := func(body []byte) string {
		h := hmac.New(sha256.New, []byte(testPayPlusSecret))
		h.Write(body)
		return base64.StdEncoding.EncodeToString(h.Sum(nil))
	}

	t.Run("should reject an unsigned callback", func(t *testing.T) {
		f := newServerFixture()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback",
			bytes.NewReader([]byte(`{"more_info":"p1"}`)))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("should confirm a purchase on a signed callback", func(t *testing.T) {
		// --- Arrange ---
		f := newServerFixture()
		var confirmed string
		f.reconcile.ConfirmPurchaseFunc = func(_ context.Context, ref string) (*model.Purchase, error) {
			confirmed = ref
			return &model.Purchase{ID: ref, PaymentStatus: model.PaymentStatusPaid, Purchasable: model.WorkshopRef("w1")}, nil
		}
		body := []byte(`{"more_info":"pur-1"}`)

		// --- Act ---
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback", bytes.NewReader(body))
		req.Header.Set("Hash", sign(body))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		// --- Assert ---
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if confirmed != "pur-1" {
			t.Errorf("expected pur-1 confirmed, got %q", confirmed)
		}
	})

	t.Run("should route a recurring callback to subscription confirmation", func(t *testing.T) {
		// --- Arrange ---
		f := newServerFixture()
		var gotID, gotUID string
		f.reconcile.ConfirmSubscriptionFunc = func(_ context.Context, id, uid string) (*model.Subscription, error) {
			gotID, gotUID = id, uid
			return &model.Subscription{ID: id, Status: model.SubscriptionStatusActive}, nil
		}
		body := []byte(`{"more_info":"sub-1","recurring_uid":"rec-1"}`)

		// --- Act ---
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback", bytes.NewReader(body))
		req.Header.Set("Hash", sign(body))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		// --- Assert ---
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if gotID != "sub-1" || gotUID != "rec-1" {
			t.Errorf("expected sub-1/rec-1, got %q/%q", gotID, gotUID)
		}
	})
}

func TestServer_PaymentComplete(t *testing.T) {
	t.Run("should ignore a foreign window message", func(t *testing.T) {
		// --- Arrange ---
		f := newServerFixture()
		f.reconcile.ConfirmPurchaseFunc = func(context.Context, string) (*model.Purchase, error) {
			t.Fatal("reconciler must not run for a foreign message")
			return nil, nil
		}

		// --- Act ---
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/complete",
			bytes.NewReader([]byte(`{"type":"analytics_event","status":"success","purchaseId":"p1"}`)))
		req.Header.Set("Authorization", "Bearer "+signToken(t, "u1", ""))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		// --- Assert ---
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body map[string]string
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body["status"] != "ignored" {
			t.Errorf("expected ignored, got %q", body["status"])
		}
	})

	t.Run("should confirm by order number when no purchase id is present", func(t *testing.T) {
		// --- Arrange ---
		f := newServerFixture()
		var confirmed string
		f.reconcile.ConfirmPurchaseFunc = func(_ context.Context, ref string) (*model.Purchase, error) {
			confirmed = ref
			return &model.Purchase{ID: "p1", PaymentStatus: model.PaymentStatusPaid, Purchasable: model.WorkshopRef("w1")}, nil
		}

		// --- Act ---
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/complete",
			bytes.NewReader([]byte(`{"type":"payplus_payment_complete","status":"success","orderNumber":"EDU-000001aaaaaa"}`)))
		req.Header.Set("Authorization", "Bearer "+signToken(t, "u1", ""))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		// --- Assert ---
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if confirmed != "EDU-000001aaaaaa" {
			t.Errorf("expected order-number confirmation, got %q", confirmed)
		}
	})
}

func TestServer_Subscriptions(t *testing.T) {
	t.Run("should delegate cancel_pending to the checkout use case", func(t *testing.T) {
		// --- Arrange ---
		f := newServerFixture()
		cancelled := false
		f.checkout.CancelFunc = func(_ context.Context, s model.SessionContext) error {
			cancelled = true
			if s.UserID != "u1" {
				t.Errorf("expected session user u1, got %q", s.UserID)
			}
			return nil
		}

		// --- Act ---
		rec := f.do(t, http.MethodPut, "/api/v1/subscriptions/s1", signToken(t, "u1", ""), map[string]string{"action": "cancel_pending"})

		// --- Assert ---
		if rec.Code != http.StatusOK || !cancelled {
			t.Errorf("expected delegated cancel, got code=%d cancelled=%v", rec.Code, cancelled)
		}
	})

	t.Run("should reject a raw status write", func(t *testing.T) {
		f := newServerFixture()
		rec := f.do(t, http.MethodPut, "/api/v1/subscriptions/s1", signToken(t, "u1", ""), map[string]string{"status": "active"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for a non-action body, got %d", rec.Code)
		}
	})
}

func TestServer_CreatePaymentPage(t *testing.T) {
	t.Run("should route a purchase reference through the checkout gate", func(t *testing.T) {
		// --- Arrange ---
		f := newServerFixture()
		_ = f.purchases.Save(context.Background(), repository.NoTX, &model.Purchase{
			ID: "p1", OrderNumber: "EDU-000001aaaaaa", BuyerUserID: "u1",
			Purchasable: model.WorkshopRef("w1"), OriginalPrice: 500,
			PaymentStatus: model.PaymentStatusPending,
		})
		var gotReq usecase.PurchaseRequest
		f.checkout.StartPurchaseFunc = func(_ context.Context, _ model.SessionContext, req usecase.PurchaseRequest, _ string) (*usecase.CheckoutResult, error) {
			gotReq = req
			return &usecase.CheckoutResult{PaymentURL: "https://pay.example/p1"}, nil
		}

		// --- Act ---
		rec := f.do(t, http.MethodPost, "/api/v1/payments/create-page", signToken(t, "u1", ""), map[string]string{"purchase_id": "p1"})

		// --- Assert ---
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotReq.Ref != model.WorkshopRef("w1") || gotReq.OriginalPrice != 500 {
			t.Errorf("expected the stored purchase facts, got %+v", gotReq)
		}
	})

	t.Run("should not expose another buyer's purchase", func(t *testing.T) {
		f := newServerFixture()
		_ = f.purchases.Save(context.Background(), repository.NoTX, &model.Purchase{
			ID: "p2", OrderNumber: "EDU-000002bbbbbb", BuyerUserID: "u2",
			Purchasable: model.WorkshopRef("w1"), PaymentStatus: model.PaymentStatusPending,
		})
		rec := f.do(t, http.MethodPost, "/api/v1/payments/create-page", signToken(t, "u1", ""), map[string]string{"purchase_id": "p2"})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("should refuse a terminal purchase", func(t *testing.T) {
		f := newServerFixture()
		_ = f.purchases.Save(context.Background(), repository.NoTX, &model.Purchase{
			ID: "p3", OrderNumber: "EDU-000003cccccc", BuyerUserID: "u1",
			Purchasable: model.WorkshopRef("w1"), PaymentStatus: model.PaymentStatusPaid,
		})
		rec := f.do(t, http.MethodPost, "/api/v1/payments/create-page", signToken(t, "u1", ""), map[string]string{"purchase_id": "p3"})
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("should resolve a subscription reference to its plan", func(t *testing.T) {
		// --- Arrange ---
		f := newServerFixture()
		_ = f.subs.Save(context.Background(), repository.NoTX, &model.Subscription{
			ID: "s1", UserID: "u1", PlanID: "plan-9", Status: model.SubscriptionStatusPending,
		})
		var gotPlan string
		f.checkout.StartSubscriptionFunc = func(_ context.Context, _ model.SessionContext, planID, _ string) (*usecase.CheckoutResult, error) {
			gotPlan = planID
			return &usecase.CheckoutResult{PaymentURL: "https://pay.example/s1"}, nil
		}

		// --- Act ---
		rec := f.do(t, http.MethodPost, "/api/v1/payments/create-page", signToken(t, "u1", ""), map[string]string{"subscription_id": "s1"})

		// --- Assert ---
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotPlan != "plan-9" {
			t.Errorf("expected plan-9, got %q", gotPlan)
		}
	})

	t.Run("should keep the plan selection path", func(t *testing.T) {
		f := newServerFixture()
		var gotPlan string
		f.checkout.StartSubscriptionFunc = func(_ context.Context, _ model.SessionContext, planID, _ string) (*usecase.CheckoutResult, error) {
			gotPlan = planID
			return &usecase.CheckoutResult{}, nil
		}
		rec := f.do(t, http.MethodPost, "/api/v1/payments/create-page", signToken(t, "u1", ""), map[string]string{"plan_id": "plan-basic"})
		if rec.Code != http.StatusOK || gotPlan != "plan-basic" {
			t.Errorf("expected delegation with plan-basic, got code=%d plan=%q", rec.Code, gotPlan)
		}
	})

	t.Run("should require a reference", func(t *testing.T) {
		f := newServerFixture()
		rec := f.do(t, http.MethodPost, "/api/v1/payments/create-page", signToken(t, "u1", ""), map[string]string{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

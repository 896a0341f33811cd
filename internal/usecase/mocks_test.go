package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"educommerce/internal/domain"
	"educommerce/internal/domain/model"
	"educommerce/internal/domain/ports/adapter"
	"educommerce/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

//
// ---------------- in-memory repositories ----------------
//

type memPlanRepo struct {
	mu    sync.RWMutex
	plans map[string]*model.SubscriptionPlan
}

func newMemPlanRepo() *memPlanRepo {
	return &memPlanRepo{plans: map[string]*model.SubscriptionPlan{}}
}

func (m *memPlanRepo) Save(_ context.Context, _ repository.Tx, p *model.SubscriptionPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *memPlanRepo) FindByID(_ context.Context, id string) (*model.SubscriptionPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPlanRepo) ListAll(_ context.Context) ([]*model.SubscriptionPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.SubscriptionPlan, 0, len(m.plans))
	for _, p := range m.plans {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

type memSubRepo struct {
	mu   sync.RWMutex
	subs map[string]*model.Subscription
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{subs: map[string]*model.Subscription{}}
}

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
	s, ok := m.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
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

func (m *memSubRepo) FindOccupyingByUser(_ context.Context, _ repository.Tx, userID string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subs {
		if s.UserID == userID && s.IsOccupying() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSubRepo) FindPendingByUser(_ context.Context, _ repository.Tx, userID string) (*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subs {
		if s.UserID == userID && s.Status == model.SubscriptionStatusPending {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memSubRepo) ListPendingOlderThan(_ context.Context, _ repository.Tx, cutoff time.Time, limit int) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.Status == model.SubscriptionStatusPending && !s.StatusUpdatedAt.After(cutoff) {
			cp := *s
			out = append(out, &cp)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memSubRepo) ResetStalePending(_ context.Context, _ repository.Tx, id string, observed time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.Status != model.SubscriptionStatusPending || !s.StatusUpdatedAt.Equal(observed) {
		return false, nil
	}
	s.Status = model.SubscriptionStatusFreePlan
	s.PlanID = ""
	s.PayPlusSubscriptionUID = nil
	s.PayPlusPageRequestUID = nil
	s.NextBillingDate = nil
	s.StatusUpdatedAt = time.Now()
	return true, nil
}

func (m *memSubRepo) CountByStatus(_ context.Context, _ repository.Tx) (map[model.SubscriptionStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := map[model.SubscriptionStatus]int{}
	for _, s := range m.subs {
		counts[s.Status]++
	}
	return counts, nil
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
	p, ok := m.purchases[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
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

func (m *memPurchaseRepo) FindPendingByBuyerAndRef(_ context.Context, _ repository.Tx, buyerUserID string, ref model.PurchasableRef) (*model.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.purchases {
		if p.BuyerUserID == buyerUserID && p.Purchasable == ref && p.PaymentStatus == model.PaymentStatusPending {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPurchaseRepo) ListPendingOlderThan(_ context.Context, _ repository.Tx, cutoff time.Time, limit int) ([]*model.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Purchase
	for _, p := range m.purchases {
		if p.PaymentStatus == model.PaymentStatusPending && !p.StatusUpdatedAt.After(cutoff) {
			cp := *p
			out = append(out, &cp)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memPurchaseRepo) UpdatePaymentStatus(_ context.Context, _ repository.Tx, id string, status model.PaymentStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.PaymentStatus != model.PaymentStatusPending {
		return false, nil
	}
	p.PaymentStatus = status
	p.StatusUpdatedAt = at
	return true, nil
}

type memCouponRepo struct {
	mu      sync.RWMutex
	coupons map[string]*model.Coupon
}

func newMemCouponRepo() *memCouponRepo {
	return &memCouponRepo{coupons: map[string]*model.Coupon{}}
}

func (m *memCouponRepo) FindByCode(_ context.Context, _ repository.Tx, canonicalCode string) (*model.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.coupons[canonicalCode]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCouponRepo) Save(_ context.Context, _ repository.Tx, c *model.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.coupons[model.CanonicalCouponCode(c.Code)] = &cp
	return nil
}

//
// ---------------- gateway / tx mocks ----------------
//

type mockGateway struct {
	CreatePageFunc func(ctx context.Context, req adapter.PageRequest) (*adapter.PageResult, error)
	VerifyFunc     func(ctx context.Context, pageRequestUID string) (bool, error)
}

func (g *mockGateway) Name() string { return "mock" }

func (g *mockGateway) CreatePage(ctx context.Context, req adapter.PageRequest) (*adapter.PageResult, error) {
	if g.CreatePageFunc != nil {
		return g.CreatePageFunc(ctx, req)
	}
	return &adapter.PageResult{PaymentURL: "https://pay.example/" + req.Reference, PageRequestUID: "pr-" + req.Reference}, nil
}

func (g *mockGateway) VerifyTransaction(ctx context.Context, pageRequestUID string) (bool, error) {
	if g.VerifyFunc != nil {
		return g.VerifyFunc(ctx, pageRequestUID)
	}
	return true, nil
}

type mockTxManager struct{}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

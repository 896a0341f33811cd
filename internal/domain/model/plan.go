package model

import (
	"time"

	"educommerce/internal/domain"
)

type BillingPeriod string

const (
	BillingPeriodMonthly BillingPeriod = "monthly"
	BillingPeriodYearly  BillingPeriod = "yearly"
	// BillingPeriodNone marks a free plan with no recurring charge.
	BillingPeriodNone BillingPeriod = ""
)

// PlanBenefits describes the capability grants a plan carries.
// A nil limit means unlimited.
type PlanBenefits struct {
	GamesLimit      *int `json:"games_limit"`
	ClassroomsLimit *int `json:"classrooms_limit"`
	ReportsAccess   bool `json:"reports_access"`
}

func (b PlanBenefits) UnlimitedGames() bool      { return b.GamesLimit == nil }
func (b PlanBenefits) UnlimitedClassrooms() bool { return b.ClassroomsLimit == nil }

// SubscriptionPlan is a catalog-owned plan definition. Price is stored in
// agorot (integer) to avoid float errors. A plan is immutable once referenced
// by a live subscription.
type SubscriptionPlan struct {
	ID            string
	Name          string
	Price         int64 // agorot; 0 for the free plan
	BillingPeriod BillingPeriod
	Benefits      PlanBenefits
	CreatedAt     time.Time
}

func (p *SubscriptionPlan) IsZero() bool { return p == nil || p.ID == "" }
func (p *SubscriptionPlan) IsFree() bool { return p.Price == 0 }

// NewSubscriptionPlan validates and constructs a plan.
func NewSubscriptionPlan(id, name string, price int64, period BillingPeriod, benefits PlanBenefits) (*SubscriptionPlan, error) {
	if id == "" || name == "" || price < 0 {
		return nil, domain.ErrInvalidArgument
	}
	switch period {
	case BillingPeriodMonthly, BillingPeriodYearly, BillingPeriodNone:
	default:
		return nil, domain.ErrInvalidArgument
	}
	if period == BillingPeriodNone && price != 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &SubscriptionPlan{
		ID:            id,
		Name:          name,
		Price:         price,
		BillingPeriod: period,
		Benefits:      benefits,
		CreatedAt:     time.Now(),
	}, nil
}

// NextBillingAfter returns the next billing instant for a paid plan, or nil
// for a free plan.
func (p *SubscriptionPlan) NextBillingAfter(from time.Time) *time.Time {
	var next time.Time
	switch p.BillingPeriod {
	case BillingPeriodMonthly:
		next = from.AddDate(0, 1, 0)
	case BillingPeriodYearly:
		next = from.AddDate(1, 0, 0)
	default:
		return nil
	}
	return &next
}

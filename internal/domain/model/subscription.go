package model

import (
	"time"

	"educommerce/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusFreePlan  SubscriptionStatus = "free_plan"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// statusTransition is a {from,to} pair checked against the allow table.
type statusTransition struct {
	From SubscriptionStatus
	To   SubscriptionStatus
}

// validTransitions defines every allowed subscription status move. Status is
// only ever changed through the decision engine or the reconciler.
var validTransitions = map[statusTransition]bool{
	{SubscriptionStatusPending, SubscriptionStatusActive}:    true, // gateway confirmed
	{SubscriptionStatusPending, SubscriptionStatusFreePlan}:  true, // timeout reset
	{SubscriptionStatusPending, SubscriptionStatusCancelled}: true, // explicit cancel-pending
	{SubscriptionStatusActive, SubscriptionStatusCancelled}:  true, // user cancel
	{SubscriptionStatusActive, SubscriptionStatusExpired}:    true, // billing period lapsed
	{SubscriptionStatusFreePlan, SubscriptionStatusPending}:  true, // paid upgrade started
	{SubscriptionStatusExpired, SubscriptionStatusPending}:   true, // re-subscription
	{SubscriptionStatusCancelled, SubscriptionStatusPending}: true, // re-subscription
}

// CanTransition reports whether moving a subscription from one status to
// another is allowed.
func CanTransition(from, to SubscriptionStatus) bool {
	return validTransitions[statusTransition{from, to}]
}

// Subscription is a user's individual subscription instance.
//
// Invariants: at most one subscription with status active or free_plan per
// user; at most one pending subscription per user, which may coexist with an
// active one while an upgrade is in flight.
type Subscription struct {
	ID     string // UUID
	UserID string // UUID of user
	// PlanID is empty while the user sits on the implicit free plan after a
	// timeout reset.
	PlanID string
	Status SubscriptionStatus
	// PayPlusSubscriptionUID identifies the recurring-billing agreement at
	// the gateway; nil until the gateway reports one.
	PayPlusSubscriptionUID *string
	// PayPlusPageRequestUID references the hosted payment page the gateway
	// issued for this record. Status verification is keyed on it; nil until
	// checkout requests a page.
	PayPlusPageRequestUID *string
	NextBillingDate       *time.Time
	// StatusUpdatedAt feeds the pending-timeout policy and keys the
	// conditional reset update.
	StatusUpdatedAt time.Time
	CreatedAt       time.Time
}

// NewPendingSubscription creates the record written when a user selects a
// paid plan; it stays pending until the gateway confirms.
func NewPendingSubscription(id, userID string, plan *SubscriptionPlan) (*Subscription, error) {
	if id == "" || userID == "" || plan.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Subscription{
		ID:              id,
		UserID:          userID,
		PlanID:          plan.ID,
		Status:          SubscriptionStatusPending,
		StatusUpdatedAt: now,
		CreatedAt:       now,
	}, nil
}

// IsOccupying reports whether the subscription counts as the user's single
// current entitlement (active or free_plan).
func (s *Subscription) IsOccupying() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusFreePlan
}

// StalePendingSince reports whether the subscription has sat pending for at
// least the given timeout as of now.
func (s *Subscription) StalePendingSince(now time.Time, timeout time.Duration) bool {
	return s.Status == SubscriptionStatusPending && now.Sub(s.StatusUpdatedAt) >= timeout
}

// Transition moves the subscription to the target status, stamping
// StatusUpdatedAt. It rejects moves outside the allow table.
func (s *Subscription) Transition(to SubscriptionStatus, now time.Time) error {
	if !CanTransition(s.Status, to) {
		return domain.ErrInvalidTransition
	}
	s.Status = to
	s.StatusUpdatedAt = now
	return nil
}

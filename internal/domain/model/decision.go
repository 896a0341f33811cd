package model

// ActionType is the single legal next step for a user against a target plan.
type ActionType string

const (
	ActionNewSubscription ActionType = "NEW_SUBSCRIPTION"
	ActionRetryPayment    ActionType = "RETRY_PAYMENT"
	ActionUpgrade         ActionType = "UPGRADE"
	ActionDowngrade       ActionType = "DOWNGRADE"
	ActionNone            ActionType = "NO_ACTION"
)

// ActionDecision is the decision engine's output: an action descriptor the
// caller executes, never a mutation performed by the engine itself.
type ActionDecision struct {
	Action ActionType
	// SubscriptionID carries the existing pending subscription for
	// RETRY_PAYMENT so the next attempt reuses the record instead of
	// creating a duplicate.
	SubscriptionID string
	// PendingPurchaseID is the in-flight purchase tied to that pending
	// subscription, when one exists.
	PendingPurchaseID string
	// ActivePlanID is the plan the user currently occupies, if any.
	ActivePlanID string
	// HasActivePlusPending is set when the user holds both an active and a
	// pending subscription to the target plan, so the UI can offer an
	// explicit cancel-pending action alongside the main one.
	HasActivePlusPending bool
}

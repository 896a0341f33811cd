package adapter

import "context"

// PageRequest describes the hosted-payment-page creation call.
type PageRequest struct {
	// Reference is our id for the charge: a purchase id or subscription id.
	Reference string
	// Recurring requests a recurring-billing agreement (subscriptions).
	Recurring bool
	Amount    int64 // agorot
	// FrontendOrigin is where the hosted page posts its completion message.
	FrontendOrigin string
	Environment    string
	Description    string
	Meta           map[string]any
}

// PageResult is what the gateway hands back for a created page.
type PageResult struct {
	PaymentURL string
	// PageRequestUID is the gateway's identifier for this page.
	PageRequestUID string
	// SubscriptionUID is set for recurring requests: the billing agreement id.
	SubscriptionUID string
}

// PaymentGateway is the port to the hosted payment provider.
type PaymentGateway interface {
	Name() string
	// CreatePage requests a hosted checkout page and returns its URL.
	CreatePage(ctx context.Context, req PageRequest) (*PageResult, error)
	// VerifyTransaction asks the provider for the authoritative status of a
	// page request. Client-reported success is never trusted without it.
	VerifyTransaction(ctx context.Context, pageRequestUID string) (approved bool, err error)
}

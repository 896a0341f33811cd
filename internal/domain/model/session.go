package model

// SessionContext is the explicit per-request identity value handed to the
// decision engine and the reconciler. It replaces any ambient user or
// impersonation state: set once when the request is authenticated, passed by
// value from there on.
type SessionContext struct {
	// UserID is the subject the request acts on behalf of.
	UserID string
	// ImpersonatorID is set while an admin acts as UserID; empty otherwise.
	// It is cleared by issuing a token without the impersonation claim.
	ImpersonatorID string
	// Environment distinguishes sandbox from production checkout flows and
	// is carried into purchase metadata.
	Environment string
}

func (s SessionContext) Impersonated() bool { return s.ImpersonatorID != "" }

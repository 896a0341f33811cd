package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrValidation           = errors.New("validation failed")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrDuplicatePending     = errors.New("user already has a pending record for this plan")
	ErrTerminalState        = errors.New("record is in a terminal state")
	ErrInvalidTransition    = errors.New("subscription status transition not allowed")

	// Coupon errors. ErrInvalidCoupon covers unknown, expired and exhausted
	// codes; ErrCouponNotApplicable means the code exists but its filter
	// excludes the purchase context.
	ErrInvalidCoupon       = errors.New("invalid coupon")
	ErrCouponNotApplicable = errors.New("coupon not applicable to this purchase")

	// Gateway errors
	ErrGateway        = errors.New("payment gateway error")
	ErrTimeoutExpired = errors.New("pending payment timed out")

	// Infrastructure errors
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid transaction executor")
	ErrLockNotAcquired    = errors.New("could not acquire lock")
)

package repository

import (
	"context"

	"educommerce/internal/domain/model"
)

// CouponRepository is read-only from this subsystem's perspective.
type CouponRepository interface {
	// FindByCode looks up a coupon by its canonical (upper-case) code.
	FindByCode(ctx context.Context, tx Tx, canonicalCode string) (*model.Coupon, error)
	Save(ctx context.Context, tx Tx, c *model.Coupon) error
}

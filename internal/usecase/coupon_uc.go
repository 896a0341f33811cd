package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"educommerce/internal/domain"
	"educommerce/internal/domain/model"
	"educommerce/internal/domain/ports/repository"
	"educommerce/internal/infra/metrics"
)

// Compile-time check
var _ CouponUseCase = (*couponUC)(nil)

// CouponResult is the applied-coupon outcome. The original price is always
// carried so a caller can fall back to it without ambiguity.
type CouponResult struct {
	Coupon         *model.Coupon
	OriginalPrice  int64
	FinalPrice     int64
	DiscountAmount int64
}

type CouponUseCase interface {
	// Apply validates a coupon code against a price/product-type/category
	// tuple and returns the discount. An empty code fails validation locally
	// and never reaches the repository.
	Apply(ctx context.Context, code string, originalPrice int64, productType model.PurchasableType, category *string) (*CouponResult, error)
}

type couponUC struct {
	coupons repository.CouponRepository
	log     *zerolog.Logger
}

func NewCouponUseCase(coupons repository.CouponRepository, logger *zerolog.Logger) *couponUC {
	l := logger.With().Str("component", "CouponUC").Logger()
	return &couponUC{coupons: coupons, log: &l}
}

func (uc *couponUC) Apply(ctx context.Context, code string, originalPrice int64, productType model.PurchasableType, category *string) (*CouponResult, error) {
	canonical := model.CanonicalCouponCode(code)
	if canonical == "" {
		return nil, domain.ErrValidation
	}
	if originalPrice < 0 {
		return nil, domain.ErrInvalidArgument
	}

	c, err := uc.coupons.FindByCode(ctx, repository.NoTX, canonical)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncCoupon("invalid")
			return nil, domain.ErrInvalidCoupon
		}
		return nil, err
	}
	if !c.Usable(time.Now()) {
		metrics.IncCoupon("invalid")
		return nil, domain.ErrInvalidCoupon
	}
	if !c.AppliesTo(productType, category) {
		metrics.IncCoupon("not_applicable")
		return nil, domain.ErrCouponNotApplicable
	}

	discount, err := c.Apply(originalPrice)
	if err != nil {
		return nil, err
	}
	metrics.IncCoupon("applied")
	uc.log.Debug().Str("code", canonical).Int64("discount", discount).Msg("coupon applied")
	return &CouponResult{
		Coupon:         c,
		OriginalPrice:  originalPrice,
		FinalPrice:     originalPrice - discount,
		DiscountAmount: discount,
	}, nil
}

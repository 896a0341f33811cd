package model

import (
	"strings"
	"time"

	"educommerce/internal/domain"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Coupon is read-only from this subsystem's perspective: the catalog owns
// creation and exhaustion bookkeeping.
type Coupon struct {
	Code         string // canonical upper-case
	DiscountType DiscountType
	// DiscountValue is a percentage for percentage coupons, agorot for fixed.
	DiscountValue int64
	// ProductTypes limits the coupon to these purchasable types; empty means
	// any type. Category further narrows within a type; nil means any.
	ProductTypes []PurchasableType
	Category     *string
	ExpiresAt    *time.Time
	MaxUses      int // 0 = unlimited
	Uses         int
}

// CanonicalCouponCode upper-cases and trims a user-supplied code. Lookup is
// case-insensitive; the canonical form is what gets stored and compared.
func CanonicalCouponCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Usable reports whether the coupon is neither expired nor exhausted as of now.
func (c *Coupon) Usable(now time.Time) bool {
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return false
	}
	return true
}

// AppliesTo checks the coupon's product-type/category filter against a
// purchase context.
func (c *Coupon) AppliesTo(productType PurchasableType, category *string) bool {
	if len(c.ProductTypes) > 0 {
		ok := false
		for _, t := range c.ProductTypes {
			if t == productType {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if c.Category != nil {
		if category == nil || !strings.EqualFold(*c.Category, *category) {
			return false
		}
	}
	return true
}

// Apply computes the discount for the given original price.
// Percentage: round(price * value / 100), clamped so the final price never
// drops below zero. Fixed: min(value, price).
func (c *Coupon) Apply(originalPrice int64) (discount int64, err error) {
	if originalPrice < 0 {
		return 0, domain.ErrInvalidArgument
	}
	switch c.DiscountType {
	case DiscountPercentage:
		if c.DiscountValue < 0 {
			return 0, domain.ErrInvalidArgument
		}
		// integer round-half-up of price*value/100
		discount = (originalPrice*c.DiscountValue + 50) / 100
		if discount > originalPrice {
			discount = originalPrice
		}
	case DiscountFixed:
		if c.DiscountValue < 0 {
			return 0, domain.ErrInvalidArgument
		}
		discount = c.DiscountValue
		if discount > originalPrice {
			discount = originalPrice
		}
	default:
		return 0, domain.ErrInvalidArgument
	}
	return discount, nil
}

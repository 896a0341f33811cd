package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"educommerce/internal/domain"
	"educommerce/internal/domain/model"
	"educommerce/internal/domain/ports/repository"
	"educommerce/internal/infra/metrics"
)

// Ensure couponRepo implements repository.CouponRepository
var _ repository.CouponRepository = (*couponRepo)(nil)

type couponRepo struct {
	pool *pgxpool.Pool
}

func NewCouponRepo(pool *pgxpool.Pool) *couponRepo {
	return &couponRepo{pool: pool}
}

func (r *couponRepo) FindByCode(ctx context.Context, tx repository.Tx, canonicalCode string) (*model.Coupon, error) {
	// Codes are stored canonicalized; UPPER on the column tolerates legacy
	// rows written before canonicalization.
	const q = `
SELECT code, discount_type, discount_value, product_types, category, expires_at, max_uses, uses
  FROM coupons
 WHERE UPPER(code)=$1;`

	row, err := pickRow(ctx, r.pool, tx, q, canonicalCode)
	if err != nil {
		return nil, err
	}

	c := &model.Coupon{}
	var dtype string
	var types []string
	if err := row.Scan(&c.Code, &dtype, &c.DiscountValue, &types, &c.Category, &c.ExpiresAt, &c.MaxUses, &c.Uses); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		metrics.IncDBQuery("coupons", "error")
		return nil, domain.ErrReadDatabaseRow
	}
	c.DiscountType = model.DiscountType(dtype)
	for _, t := range types {
		c.ProductTypes = append(c.ProductTypes, model.PurchasableType(t))
	}
	metrics.IncDBQuery("coupons", "ok")
	return c, nil
}

func (r *couponRepo) Save(ctx context.Context, tx repository.Tx, c *model.Coupon) error {
	const q = `
INSERT INTO coupons (code, discount_type, discount_value, product_types, category, expires_at, max_uses, uses)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (code) DO UPDATE SET
  discount_type=$2, discount_value=$3, product_types=$4, category=$5, expires_at=$6, max_uses=$7, uses=$8;`

	types := make([]string, 0, len(c.ProductTypes))
	for _, t := range c.ProductTypes {
		types = append(types, string(t))
	}
	_, err := execSQL(ctx, r.pool, tx, q, model.CanonicalCouponCode(c.Code), c.DiscountType, c.DiscountValue, types, c.Category, c.ExpiresAt, c.MaxUses, c.Uses)
	if err != nil {
		metrics.IncDBQuery("coupons", "error")
		return domain.ErrOperationFailed
	}
	metrics.IncDBQuery("coupons", "ok")
	return nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"educommerce/internal/domain"
	"educommerce/internal/domain/model"
	"educommerce/internal/domain/ports/repository"
	"educommerce/internal/infra/metrics"
)

// Ensure purchaseRepo implements repository.PurchaseRepository
var _ repository.PurchaseRepository = (*purchaseRepo)(nil)

type purchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPurchaseRepo(pool *pgxpool.Pool) *purchaseRepo {
	return &purchaseRepo{pool: pool}
}

const purchaseColumns = `id, order_number, buyer_user_id, purchasable_type, purchasable_id, payment_amount, original_price, discount_amount, coupon_code, payment_status, page_request_uid, access_expires_at, meta, status_updated_at, created_at`

func (r *purchaseRepo) Save(ctx context.Context, tx repository.Tx, p *model.Purchase) error {
	const q = `
INSERT INTO purchases (
  id, order_number, buyer_user_id, purchasable_type, purchasable_id,
  payment_amount, original_price, discount_amount, coupon_code,
  payment_status, page_request_uid, access_expires_at, meta, status_updated_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  payment_status=$10, page_request_uid=$11, status_updated_at=$14;`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.OrderNumber, p.BuyerUserID, p.Purchasable.Type, p.Purchasable.ID,
		p.PaymentAmount, p.OriginalPrice, p.DiscountAmount, p.CouponCode,
		p.PaymentStatus, p.PayPlusPageRequestUID, p.AccessExpiresAt, p.Meta, p.StatusUpdatedAt, p.CreatedAt)
	if err != nil {
		metrics.IncDBQuery("purchases", "error")
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists // order_number collision
		}
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	metrics.IncDBQuery("purchases", "ok")
	return nil
}

func (r *purchaseRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Purchase, error) {
	const q = `SELECT ` + purchaseColumns + ` FROM purchases WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *purchaseRepo) FindByOrderNumber(ctx context.Context, tx repository.Tx, orderNumber string) (*model.Purchase, error) {
	const q = `SELECT ` + purchaseColumns + ` FROM purchases WHERE order_number=$1;`
	return r.queryOne(ctx, tx, q, orderNumber)
}

func (r *purchaseRepo) ListByBuyer(ctx context.Context, tx repository.Tx, buyerUserID string) ([]*model.Purchase, error) {
	const q = `SELECT ` + purchaseColumns + ` FROM purchases WHERE buyer_user_id=$1 ORDER BY created_at DESC;`
	return r.queryMany(ctx, tx, q, buyerUserID)
}

func (r *purchaseRepo) FindPendingByBuyerAndRef(ctx context.Context, tx repository.Tx, buyerUserID string, ref model.PurchasableRef) (*model.Purchase, error) {
	const q = `
SELECT ` + purchaseColumns + `
  FROM purchases
 WHERE buyer_user_id=$1 AND purchasable_type=$2 AND purchasable_id=$3 AND payment_status='pending'
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, buyerUserID, ref.Type, ref.ID)
}

func (r *purchaseRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Purchase, error) {
	const q = `
SELECT ` + purchaseColumns + `
  FROM purchases
 WHERE payment_status='pending' AND status_updated_at <= $1
 ORDER BY status_updated_at ASC
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, cutoff, limit)
}

// UpdatePaymentStatus only ever moves a row out of pending: paid and failed
// are absorbing, enforced in the WHERE clause rather than in racy reads.
func (r *purchaseRepo) UpdatePaymentStatus(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, at time.Time) (bool, error) {
	const q = `
UPDATE purchases
   SET payment_status=$2, status_updated_at=$3
 WHERE id=$1 AND payment_status='pending';`

	tag, err := execSQL(ctx, r.pool, tx, q, id, status, at)
	if err != nil {
		metrics.IncDBQuery("purchases", "error")
		return false, domain.ErrOperationFailed
	}
	metrics.IncDBQuery("purchases", "ok")
	return tag.RowsAffected() == 1, nil
}

func (r *purchaseRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Purchase, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPurchase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *purchaseRepo) queryMany(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Purchase, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanPurchase(row pgx.Row) (*model.Purchase, error) {
	p := &model.Purchase{}
	var ptype, status string
	if err := row.Scan(&p.ID, &p.OrderNumber, &p.BuyerUserID, &ptype, &p.Purchasable.ID,
		&p.PaymentAmount, &p.OriginalPrice, &p.DiscountAmount, &p.CouponCode,
		&status, &p.PayPlusPageRequestUID, &p.AccessExpiresAt, &p.Meta, &p.StatusUpdatedAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Purchasable.Type = model.PurchasableType(ptype)
	p.PaymentStatus = model.PaymentStatus(status)
	return p, nil
}

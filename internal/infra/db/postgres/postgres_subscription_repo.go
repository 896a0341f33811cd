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

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_id, status, payplus_subscription_uid, payplus_page_request_uid, next_billing_date, status_updated_at, created_at`

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, user_id, plan_id, status, payplus_subscription_uid, payplus_page_request_uid, next_billing_date, status_updated_at, created_at
) VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  plan_id=NULLIF($3,''), status=$4, payplus_subscription_uid=$5, payplus_page_request_uid=$6, next_billing_date=$7, status_updated_at=$8;`

	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.UserID, s.PlanID, s.Status, s.PayPlusSubscriptionUID, s.PayPlusPageRequestUID, s.NextBillingDate, s.StatusUpdatedAt, s.CreatedAt)
	if err != nil {
		metrics.IncDBQuery("subscriptions", "error")
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// partial unique index: one pending row per user
			return domain.ErrDuplicatePending
		}
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	metrics.IncDBQuery("subscriptions", "ok")
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id=$1 ORDER BY created_at DESC;`
	return r.queryMany(ctx, tx, q, userID)
}

func (r *subscriptionRepo) FindOccupyingByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE user_id=$1 AND status IN ('active','free_plan')
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) FindPendingByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE user_id=$1 AND status='pending'
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionColumns + `
  FROM subscriptions
 WHERE status='pending' AND status_updated_at <= $1
 ORDER BY status_updated_at ASC
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, cutoff, limit)
}

// ResetStalePending is the lost-update-safe timeout reset: the WHERE clause
// keys on the status_updated_at the caller observed, so of N concurrent
// reconcilers exactly one row update succeeds and the rest see rows=0.
func (r *subscriptionRepo) ResetStalePending(ctx context.Context, tx repository.Tx, id string, observedStatusUpdatedAt time.Time) (bool, error) {
	const q = `
UPDATE subscriptions
   SET status='free_plan',
       plan_id=NULL,
       payplus_subscription_uid=NULL,
       payplus_page_request_uid=NULL,
       next_billing_date=NULL,
       status_updated_at=NOW()
 WHERE id=$1 AND status='pending' AND status_updated_at=$2;`

	tag, err := execSQL(ctx, r.pool, tx, q, id, observedStatusUpdatedAt)
	if err != nil {
		metrics.IncDBQuery("subscriptions", "error")
		return false, domain.ErrOperationFailed
	}
	metrics.IncDBQuery("subscriptions", "ok")
	return tag.RowsAffected() == 1, nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var status string
	var planID *string
	if err := row.Scan(&s.ID, &s.UserID, &planID, &status, &s.PayPlusSubscriptionUID, &s.PayPlusPageRequestUID, &s.NextBillingDate, &s.StatusUpdatedAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	if planID != nil {
		s.PlanID = *planID
	}
	s.Status = model.SubscriptionStatus(status)
	return s, nil
}

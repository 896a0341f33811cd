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

// Ensure planRepo implements repository.SubscriptionPlanRepository
var _ repository.SubscriptionPlanRepository = (*planRepo)(nil)

type planRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *planRepo {
	return &planRepo{pool: pool}
}

const planColumns = `id, name, price, billing_period, games_limit, classrooms_limit, reports_access, created_at`

func (r *planRepo) Save(ctx context.Context, tx repository.Tx, p *model.SubscriptionPlan) error {
	const q = `
INSERT INTO subscription_plans (
  id, name, price, billing_period, games_limit, classrooms_limit, reports_access, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  name=$2, price=$3, billing_period=$4, games_limit=$5, classrooms_limit=$6, reports_access=$7;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.Name, p.Price, p.BillingPeriod,
		p.Benefits.GamesLimit, p.Benefits.ClassroomsLimit, p.Benefits.ReportsAccess, p.CreatedAt)
	if err != nil {
		metrics.IncDBQuery("plans", "error")
		return domain.ErrOperationFailed
	}
	metrics.IncDBQuery("plans", "ok")
	return nil
}

func (r *planRepo) FindByID(ctx context.Context, id string) (*model.SubscriptionPlan, error) {
	const q = `SELECT ` + planColumns + ` FROM subscription_plans WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, nil, q, id)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *planRepo) ListAll(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	const q = `SELECT ` + planColumns + ` FROM subscription_plans ORDER BY price ASC;`
	rows, err := queryRows(ctx, r.pool, nil, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()
	var out []*model.SubscriptionPlan
	for rows.Next() {
		p, err := scanPlan(rows)
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

func scanPlan(row pgx.Row) (*model.SubscriptionPlan, error) {
	p := &model.SubscriptionPlan{}
	var period string
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &period,
		&p.Benefits.GamesLimit, &p.Benefits.ClassroomsLimit, &p.Benefits.ReportsAccess, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.BillingPeriod = model.BillingPeriod(period)
	return p, nil
}

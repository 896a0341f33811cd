package repository

import (
	"context"
	"time"

	"educommerce/internal/domain/model"
)

// PurchaseRepository is the port for one-time purchases.
type PurchaseRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Purchase) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Purchase, error)
	FindByOrderNumber(ctx context.Context, tx Tx, orderNumber string) (*model.Purchase, error)
	ListByBuyer(ctx context.Context, tx Tx, buyerUserID string) ([]*model.Purchase, error)
	FindPendingByBuyerAndRef(ctx context.Context, tx Tx, buyerUserID string, ref model.PurchasableRef) (*model.Purchase, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.Purchase, error)

	// UpdatePaymentStatus moves a pending purchase to a terminal status.
	// It must refuse to overwrite an already-terminal row (absorbing states);
	// returns false when the row was already terminal.
	UpdatePaymentStatus(ctx context.Context, tx Tx, id string, status model.PaymentStatus, at time.Time) (bool, error)
}

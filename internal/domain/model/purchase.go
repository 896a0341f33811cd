package model

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"educommerce/internal/domain"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending" // awaiting gateway confirmation
	PaymentStatusPaid    PaymentStatus = "paid"    // gateway-confirmed; absorbing
	PaymentStatusFailed  PaymentStatus = "failed"  // gateway failure or timeout; absorbing
)

// IsTerminal reports whether the status is absorbing: the reconciler never
// moves a purchase out of paid or failed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed
}

type PurchasableType string

const (
	PurchasableWorkshop PurchasableType = "workshop"
	PurchasableCourse   PurchasableType = "course"
	PurchasableFile     PurchasableType = "file"
	PurchasableTool     PurchasableType = "tool"
	PurchasableGame     PurchasableType = "game"
)

// PurchasableRef is the polymorphic reference to a catalog entity. Construct
// it through the typed helpers so the type tag is always one of the declared
// constants.
type PurchasableRef struct {
	Type PurchasableType
	ID   string
}

func WorkshopRef(id string) PurchasableRef { return PurchasableRef{PurchasableWorkshop, id} }
func CourseRef(id string) PurchasableRef   { return PurchasableRef{PurchasableCourse, id} }
func FileRef(id string) PurchasableRef     { return PurchasableRef{PurchasableFile, id} }
func ToolRef(id string) PurchasableRef     { return PurchasableRef{PurchasableTool, id} }
func GameRef(id string) PurchasableRef     { return PurchasableRef{PurchasableGame, id} }

func (r PurchasableRef) Valid() bool {
	if r.ID == "" {
		return false
	}
	switch r.Type {
	case PurchasableWorkshop, PurchasableCourse, PurchasableFile, PurchasableTool, PurchasableGame:
		return true
	}
	return false
}

// Purchase is a one-time buy of a catalog entity. Created with pending status
// at checkout initiation; moves to paid or failed only via gateway-confirmed
// callback or reconciliation, and is immutable once paid.
type Purchase struct {
	ID          string // UUID
	OrderNumber string // unique, client format EDU-<ts tail><random>
	BuyerUserID string
	Purchasable PurchasableRef
	// Money fields in agorot. PaymentAmount = OriginalPrice - DiscountAmount.
	PaymentAmount  int64
	OriginalPrice  int64
	DiscountAmount int64
	CouponCode     *string
	PaymentStatus  PaymentStatus
	// PayPlusPageRequestUID references the hosted payment page the gateway
	// issued for this purchase. Status verification is keyed on it; nil for
	// fully discounted purchases that never reach the gateway.
	PayPlusPageRequestUID *string
	// AccessExpiresAt is nil for lifetime access. Expiry is evaluated on
	// read, never written back.
	AccessExpiresAt *time.Time
	Meta            map[string]any
	StatusUpdatedAt time.Time
	CreatedAt       time.Time
}

// NewPendingPurchase constructs the checkout-initiation record.
func NewPendingPurchase(id, buyerUserID string, ref PurchasableRef, originalPrice, discount int64, couponCode *string, accessExpiresAt *time.Time, meta map[string]any) (*Purchase, error) {
	if id == "" || buyerUserID == "" || !ref.Valid() || originalPrice < 0 || discount < 0 || discount > originalPrice {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Purchase{
		ID:              id,
		OrderNumber:     NewOrderNumber(now),
		BuyerUserID:     buyerUserID,
		Purchasable:     ref,
		PaymentAmount:   originalPrice - discount,
		OriginalPrice:   originalPrice,
		DiscountAmount:  discount,
		CouponCode:      couponCode,
		PaymentStatus:   PaymentStatusPending,
		AccessExpiresAt: accessExpiresAt,
		Meta:            meta,
		StatusUpdatedAt: now,
		CreatedAt:       now,
	}, nil
}

// AccessExpired evaluates the access window at read time. A nil
// AccessExpiresAt means lifetime access.
func (p *Purchase) AccessExpired(now time.Time) bool {
	return p.AccessExpiresAt != nil && now.After(*p.AccessExpiresAt)
}

// StalePendingSince mirrors Subscription.StalePendingSince for purchases.
func (p *Purchase) StalePendingSince(now time.Time, timeout time.Duration) bool {
	return p.PaymentStatus == PaymentStatusPending && now.Sub(p.StatusUpdatedAt) >= timeout
}

const orderNumberAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var orderNumberPattern = regexp.MustCompile(`^EDU-\d{6}[0-9a-z]{6}$`)

// NewOrderNumber builds a client-format order number: "EDU-" plus the last
// six digits of the millisecond timestamp plus six base-36 characters. Unique
// with high probability; the database enforces the rest.
func NewOrderNumber(now time.Time) string {
	ms := now.UnixMilli() % 1_000_000
	var sb strings.Builder
	for i := 0; i < 6; i++ {
		sb.WriteByte(orderNumberAlphabet[rand.Intn(len(orderNumberAlphabet))])
	}
	return fmt.Sprintf("EDU-%06d%s", ms, sb.String())
}

// ValidOrderNumber reports whether s matches the client order-number format.
func ValidOrderNumber(s string) bool { return orderNumberPattern.MatchString(s) }

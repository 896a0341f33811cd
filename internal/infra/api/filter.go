package api

import (
	"encoding/json"

	"educommerce/internal/domain"
	"educommerce/internal/domain/model"
)

// purchaseFilter is the query language the client sends in the `filter`
// parameter: top-level keys are field-equality clauses ANDed together, and
// "$or" holds a list of sub-filters of which at least one must match.
type purchaseFilter map[string]any

func parsePurchaseFilter(raw string) (purchaseFilter, error) {
	if raw == "" {
		return nil, nil
	}
	var f purchaseFilter
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, domain.ErrValidation
	}
	return f, nil
}

// orderNumber pulls a top-level order_number clause so the handler can fetch
// by the unique key instead of scanning the buyer's history.
func (f purchaseFilter) orderNumber() string {
	if v, ok := f["order_number"].(string); ok {
		return v
	}
	return ""
}

func (f purchaseFilter) matches(p *model.Purchase) bool {
	for key, want := range f {
		if key == "$or" {
			clauses, ok := want.([]any)
			if !ok {
				return false
			}
			anyMatch := false
			for _, c := range clauses {
				sub, ok := c.(map[string]any)
				if ok && purchaseFilter(sub).matches(p) {
					anyMatch = true
					break
				}
			}
			if !anyMatch {
				return false
			}
			continue
		}
		got, known := purchaseField(p, key)
		if !known || got != want {
			return false
		}
	}
	return true
}

// purchaseField resolves a filterable field by its wire name. Unknown fields
// match nothing rather than everything.
func purchaseField(p *model.Purchase, key string) (any, bool) {
	switch key {
	case "id":
		return p.ID, true
	case "order_number":
		return p.OrderNumber, true
	case "buyer_user_id":
		return p.BuyerUserID, true
	case "purchasable_type":
		return string(p.Purchasable.Type), true
	case "purchasable_id":
		return p.Purchasable.ID, true
	case "payment_status":
		return string(p.PaymentStatus), true
	case "coupon_code":
		if p.CouponCode == nil {
			return nil, true
		}
		return *p.CouponCode, true
	}
	return nil, false
}

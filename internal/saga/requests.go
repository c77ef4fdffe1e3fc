package saga

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// startOfValidityGrace is how far in the past a requested start of validity may lie.
const startOfValidityGrace = 60 * time.Second

// ItemRequest is a priced line supplied by the pricing layer. Amount is the
// line total, Vat is per unit.
type ItemRequest struct {
	ProductSetID     string
	Title            string
	Count            int
	Amount           decimal.Decimal
	Vat              []models.Vat
	ManualActivation *bool
	StartOfValidity  *time.Time
	ProductOwnerID   string
	BearerID         string
}

// PurchaseRequest asks for a purchase to be initialized.
type PurchaseRequest struct {
	Items       []ItemRequest
	Currency    string
	Description string
	RecipientID string

	WalletID        string
	PaymentMethodID string
	// UsePurse overrides the wallet's purse policy when set.
	UsePurse  *bool
	ReturnURL string
	Mobile    bool

	ManualActivation *bool
	StartOfValidity  *time.Time
	ProductOwnerID   string
	BearerID         string
}

// InitResult identifies the created transaction and, when the payer must
// interact with the gateway, where to send them.
type InitResult struct {
	TransactionID string
	WebviewURL    string
}

// buildItems validates the request and applies purchase-level defaults to items.
func (e *Engine) buildItems(payer models.User, req PurchaseRequest) ([]models.TransactionItem, error) {
	const op = "initialize purchase"
	if len(req.Items) == 0 {
		return nil, apperror.Policy(op, "at least one item is required")
	}
	if strings.TrimSpace(req.Currency) == "" {
		return nil, apperror.Policy(op, "currency is required")
	}
	if req.StartOfValidity != nil {
		if req.ManualActivation != nil && *req.ManualActivation {
			return nil, apperror.Policy(op, "you can not specify both manual activation and start of validity")
		}
		if req.StartOfValidity.Before(e.now().Add(-startOfValidityGrace)) {
			return nil, apperror.Policy(op, "you can not specify start of validity in the past")
		}
	}

	items := make([]models.TransactionItem, 0, len(req.Items))
	for _, in := range req.Items {
		if in.ProductSetID == "" {
			return nil, apperror.Policy(op, "product set id is required")
		}
		if in.Count <= 0 {
			return nil, apperror.Policy(op, "item count must be positive")
		}
		if in.Amount.IsNegative() {
			return nil, apperror.Policy(op, "item amount must not be negative")
		}
		item := models.TransactionItem{
			ProductSetID:     in.ProductSetID,
			ProductSetTitle:  in.Title,
			Count:            in.Count,
			Amount:           in.Amount,
			Vat:              in.Vat,
			ManualActivation: in.ManualActivation,
			StartOfValidity:  in.StartOfValidity,
			ProductOwnerID:   in.ProductOwnerID,
			BearerID:         in.BearerID,
		}

		if req.StartOfValidity != nil {
			if item.ManualActivation != nil && *item.ManualActivation {
				return nil, apperror.Policy(op, "you can not specify manual activation in cart and start of validity in purchase")
			}
			if item.StartOfValidity == nil {
				start := *req.StartOfValidity
				item.StartOfValidity = &start
			}
		} else if req.ManualActivation != nil && item.ManualActivation == nil {
			manual := *req.ManualActivation
			item.ManualActivation = &manual
		}

		if item.BearerID == "" {
			item.BearerID = req.BearerID
		}
		if item.ProductOwnerID == "" {
			item.ProductOwnerID = req.ProductOwnerID
		}
		if item.ProductOwnerID == "" {
			item.ProductOwnerID = payer.ID
		}
		items = append(items, item)
	}
	return items, nil
}

// resolveUsePurse combines the wallet policy with the request flag.
func resolveUsePurse(policy models.UsePurse, requested *bool, hasPaymentMethod bool) (bool, error) {
	const op = "initialize purchase"
	switch {
	case requested == nil:
		switch policy {
		case models.UsePurseAlways:
			return true, nil
		case models.UsePurseNever:
			return false, nil
		default:
			return !hasPaymentMethod, nil
		}
	case *requested:
		if policy == models.UsePurseNever {
			return false, apperror.Policy(op, "wallet doesn't allow use of purse")
		}
		return true, nil
	default:
		if policy == models.UsePurseAlways {
			return false, apperror.Policy(op, "wallet doesn't allow purchases without using purse")
		}
		return false, nil
	}
}

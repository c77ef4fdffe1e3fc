package models

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes purchases from loans and transfers.
type TransactionType string

const (
	TransactionTypePurchase TransactionType = "PURCHASE"
	TransactionTypeLoan     TransactionType = "LOAN"
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

// TransactionItem is one priced line of a transaction. Amount is the line
// total; Vat is per unit.
type TransactionItem struct {
	ProductSetID     string          `json:"product_set_id"`
	ProductSetTitle  string          `json:"product_set_title,omitempty"`
	Count            int             `json:"count"`
	Amount           decimal.Decimal `json:"amount"`
	Vat              []Vat           `json:"vat,omitempty"`
	ManualActivation *bool           `json:"manual_activation,omitempty"`
	StartOfValidity  *time.Time      `json:"start_of_validity,omitempty"`
	ProductOwnerID   string          `json:"product_owner_id,omitempty"`
	BearerID         string          `json:"bearer_id,omitempty"`
	MtbProductIDs    []string        `json:"mtb_product_ids,omitempty"`
}

// CancelProgress records which refund steps of a cancellation already ran.
type CancelProgress struct {
	PaymentRefunded    bool `json:"payment_refunded,omitempty"`
	PurseRecordsPosted int  `json:"purse_records_posted,omitempty"`
	PurseRefunded      bool `json:"purse_refunded,omitempty"`
}

// Transaction is a purchase (or loan/transfer) coordinated across the purse,
// the payment gateway and product issuance.
type Transaction struct {
	ID      string          `json:"id"`
	Type    TransactionType `json:"type"`
	Version int64           `json:"version"`

	Currency              string          `json:"currency"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	PurseAmount           decimal.Decimal `json:"purse_amount"`
	PurseRefundableAmount decimal.Decimal `json:"purse_refundable_amount"`
	PaymentMethodAmount   decimal.Decimal `json:"payment_method_amount"`

	OwnerID            string          `json:"owner_id"`
	RecipientID        string          `json:"recipient_id,omitempty"`
	WalletID           string          `json:"wallet_id,omitempty"`
	PurseID            string          `json:"purse_id,omitempty"`
	PaymentMethodID    string          `json:"payment_method_id,omitempty"`
	PaymentServiceID   string          `json:"payment_service_id,omitempty"`
	PurseRecordIDs     []string        `json:"purse_record_ids,omitempty"`
	PurseReservationID string          `json:"purse_reservation_id,omitempty"`
	PaymentData        json.RawMessage `json:"payment_data,omitempty"`
	PaymentReference   string          `json:"payment_reference,omitempty"`

	Items       []TransactionItem `json:"items"`
	Vat         []Vat             `json:"vat,omitempty"`
	Description string            `json:"description,omitempty"`

	State             TransactionState `json:"state"`
	Cancellable       bool             `json:"cancellable"`
	CancellableExpire *time.Time       `json:"cancellable_expire,omitempty"`
	CancelProgress    CancelProgress   `json:"cancel_progress"`

	CreatedAt time.Time  `json:"created_at"`
	Expire    *time.Time `json:"expire,omitempty"`
}

// HasPayment reports whether part of the total is charged to a payment method.
func (t *Transaction) HasPayment() bool {
	return t.PaymentMethodAmount.IsPositive()
}

// HasPaymentSession reports whether a gateway session was initialized.
func (t *Transaction) HasPaymentSession() bool {
	return len(t.PaymentData) > 0
}

// ProductIDs returns every issued product id in item order.
func (t *Transaction) ProductIDs() []string {
	var ids []string
	for _, item := range t.Items {
		ids = append(ids, item.MtbProductIDs...)
	}
	return ids
}

// Balanced reports whether purse and payment method amounts cover the total exactly.
func (t *Transaction) Balanced() bool {
	return t.PurseAmount.Add(t.PaymentMethodAmount).Equal(t.TotalAmount)
}

// Clone returns a deep copy, so stores never share mutable state with callers.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	cp := *t
	cp.PurseRecordIDs = append([]string(nil), t.PurseRecordIDs...)
	cp.PaymentData = append(json.RawMessage(nil), t.PaymentData...)
	cp.Vat = append([]Vat(nil), t.Vat...)
	cp.CancellableExpire = cloneTime(t.CancellableExpire)
	cp.Expire = cloneTime(t.Expire)
	cp.Items = make([]TransactionItem, len(t.Items))
	for i, item := range t.Items {
		item.Vat = append([]Vat(nil), item.Vat...)
		item.MtbProductIDs = append([]string(nil), item.MtbProductIDs...)
		item.StartOfValidity = cloneTime(item.StartOfValidity)
		if item.ManualActivation != nil {
			v := *item.ManualActivation
			item.ManualActivation = &v
		}
		cp.Items[i] = item
	}
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// EarliestExpiry returns the earlier of a and b, treating nil as unbounded.
func EarliestExpiry(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return cloneTime(b)
	case b == nil:
		return cloneTime(a)
	case b.Before(*a):
		return cloneTime(b)
	default:
		return cloneTime(a)
	}
}

// TransactionFilter narrows a transaction listing. Zero fields match everything.
type TransactionFilter struct {
	After        *time.Time
	Before       *time.Time
	MtbProductID string
	PartyID      string // owner or recipient
	WalletID     string
	States       []TransactionState
	Limit        int
}

// Matches reports whether t satisfies the filter.
func (f TransactionFilter) Matches(t *Transaction) bool {
	if f.After != nil && t.CreatedAt.Before(*f.After) {
		return false
	}
	if f.Before != nil && !t.CreatedAt.Before(*f.Before) {
		return false
	}
	if f.WalletID != "" && t.WalletID != f.WalletID {
		return false
	}
	if f.PartyID != "" && t.OwnerID != f.PartyID && t.RecipientID != f.PartyID {
		return false
	}
	if len(f.States) > 0 && !slices.Contains(f.States, t.State) {
		return false
	}
	if f.MtbProductID != "" {
		for _, id := range t.ProductIDs() {
			if id == f.MtbProductID {
				return true
			}
		}
		return false
	}
	return true
}

package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// NewPurseRecord is a posting requested on a purse. A ReservationID converts
// that reservation into the posting.
type NewPurseRecord struct {
	TransactionID string
	ReservationID string
	Amount        decimal.Decimal
	Refundable    bool
}

// PaymentInit carries everything a gateway needs to open a payment session.
type PaymentInit struct {
	Method        PaymentMethod
	Amount        decimal.Decimal
	TransactionID string
	Description   string
	Currency      string
	ReturnURL     string
	Locale        string
	Mobile        bool
}

// PaymentSession is the gateway-side state of a payment. Data is opaque to
// the engine and persisted on the transaction between calls.
type PaymentSession struct {
	Data       json.RawMessage `json:"data"`
	Expire     *time.Time      `json:"expire,omitempty"`
	WebviewURL string          `json:"webview_url,omitempty"`
}

// IssuedProduct is a product created for a transaction item.
type IssuedProduct struct {
	ID                string
	Cancellable       bool
	CancellableExpire *time.Time
}

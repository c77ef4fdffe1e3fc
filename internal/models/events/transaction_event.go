package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionEvent is published whenever a transaction reaches an outcome state.
type TransactionEvent struct {
	TransactionID       string          `json:"transaction_id"`
	Type                string          `json:"type"`
	State               string          `json:"state"`
	OwnerID             string          `json:"owner_id"`
	WalletID            string          `json:"wallet_id,omitempty"`
	Currency            string          `json:"currency"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	PurseAmount         decimal.Decimal `json:"purse_amount"`
	PaymentMethodAmount decimal.Decimal `json:"payment_method_amount"`
	ProductIDs          []string        `json:"product_ids,omitempty"`
	OccurredAt          time.Time       `json:"occurred_at"`
}

package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// Purse is the prepaid balance ledger. Reserve fails with
// apperror.KindLedgerConflict when no funds can be held.
type Purse interface {
	Reserve(ctx context.Context, purseID string, amount decimal.Decimal, partial bool) (models.PurseReservation, error)
	CreateRecord(ctx context.Context, purseID string, record models.NewPurseRecord) (string, error)
	DeleteReservation(ctx context.Context, purseID, reservationID string) error
}

// PaymentGateway drives a payment through one payment service. Failures are
// apperror.KindPaymentGateway errors.
type PaymentGateway interface {
	Initialize(ctx context.Context, req models.PaymentInit) (*models.PaymentSession, error)
	Reserve(ctx context.Context, session *models.PaymentSession) error
	Finalize(ctx context.Context, session *models.PaymentSession, finalizationData string) (string, error)
	Cancel(ctx context.Context, session *models.PaymentSession, reference, reason string) error
}

// PaymentRegistry resolves the gateway serving a payment service id.
type PaymentRegistry interface {
	Gateway(serviceID string) (PaymentGateway, error)
}

// Issuer creates and manages the products sold by a transaction.
type Issuer interface {
	Create(ctx context.Context, item models.TransactionItem, tx *models.Transaction) ([]models.IssuedProduct, error)
	Cancel(ctx context.Context, productID string, tx *models.Transaction) error
	MarkPurchased(ctx context.Context, productID string) error
	CheckUsable(ctx context.Context, productID string) error
}

// WalletDirectory looks up wallets on behalf of their owners.
type WalletDirectory interface {
	Wallet(ctx context.Context, ownerID, walletID string) (models.Wallet, error)
}

package saga

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// returnURLPlaceholder in a return URL is replaced by the transaction id.
const returnURLPlaceholder = "{TID}"

// InitializePurchase creates a purchase transaction and, for non-vendor
// payers, authorizes it against the purse and the payment gateway.
//
// The transaction is persisted in INITIALIZED state before authorization, so
// a failed authorization still returns its id together with the error.
func (e *Engine) InitializePurchase(ctx context.Context, payer models.User, req PurchaseRequest) (InitResult, error) {
	const op = "initialize purchase"
	start := e.now()

	if payer.ID == "" {
		return InitResult{}, apperror.Policy(op, "must be a vendor or traveller to initialize a purchase")
	}
	items, err := e.buildItems(payer, req)
	if err != nil {
		return InitResult{}, err
	}

	tx := &models.Transaction{
		ID:          uuid.New().String(),
		Type:        models.TransactionTypePurchase,
		Currency:    req.Currency,
		TotalAmount: models.SumItems(items),
		Items:       items,
		Vat:         models.AggregateVat(items),
		Description: req.Description,
		OwnerID:     payer.ID,
		RecipientID: req.RecipientID,
		State:       models.StateInitialized,
		CreatedAt:   e.now().UTC(),
	}

	unlock := e.locks.lock(tx.ID)
	defer unlock()

	if err := e.store.Create(ctx, tx); err != nil {
		return InitResult{}, err
	}
	result := InitResult{TransactionID: tx.ID}

	if payer.IsVendor() {
		// Vendors settle out of band; the payment reference arrives with finalize.
		tx.PaymentMethodAmount = tx.TotalAmount
		if err := tx.TransitionTo(models.StateFinalizePending); err != nil {
			return result, err
		}
		if err := e.store.Save(ctx, tx); err != nil {
			return result, err
		}
		e.observePhase("initialize", tx, start)
		return result, nil
	}

	webviewURL, err := e.authorize(ctx, payer, req, tx)
	e.observePhase("authorize", tx, start)
	if err != nil {
		e.txLogger(tx).Info("purchase authorization failed", zap.Error(err))
		return result, err
	}
	result.WebviewURL = webviewURL
	return result, nil
}

// authorize reserves purse funds and opens a gateway payment for the rest.
func (e *Engine) authorize(ctx context.Context, payer models.User, req PurchaseRequest, tx *models.Transaction) (string, error) {
	const op = "authorize purchase"
	log := e.txLogger(tx)

	wallet, err := e.wallets.Wallet(ctx, payer.ID, req.WalletID)
	if err != nil {
		return "", err
	}
	if wallet.Currency != "" && wallet.Currency != tx.Currency {
		return "", apperror.Policy(op, "wallet currency "+wallet.Currency+" doesn't match "+tx.Currency)
	}

	var method *models.PaymentMethod
	if req.PaymentMethodID != "" {
		pm, ok := wallet.PaymentMethod(req.PaymentMethodID)
		if !ok {
			return "", apperror.Policy(op, "unknown payment method "+req.PaymentMethodID)
		}
		method = &pm
	}

	usePurse, err := resolveUsePurse(wallet.UsePurse, req.UsePurse, method != nil)
	if err != nil {
		return "", err
	}

	tx.WalletID = wallet.ID
	tx.PurseID = wallet.PurseID

	if usePurse && tx.TotalAmount.IsPositive() && e.reservePurse(ctx, tx, method != nil) {
		// Persist the hold before calling the gateway so it can be reconciled
		// if anything below fails.
		if err := e.store.Save(ctx, tx); err != nil {
			return "", err
		}
	}

	var webviewURL string
	shortfall := tx.TotalAmount.Sub(tx.PurseAmount)
	if shortfall.IsPositive() {
		if method == nil {
			if usePurse {
				return "", apperror.New(apperror.KindInsufficientFunds, op, "not enough funds available in purse for purchase")
			}
			return "", apperror.Policy(op, "no payment method specified")
		}
		gw, err := e.payments.Gateway(method.ServiceID)
		if err != nil {
			return "", err
		}

		locale := payer.Locale
		if locale == "" {
			locale = e.cfg.DefaultLocale
		}
		session, err := gw.Initialize(ctx, models.PaymentInit{
			Method:        *method,
			Amount:        shortfall,
			TransactionID: tx.ID,
			Description:   tx.Description,
			Currency:      tx.Currency,
			ReturnURL:     strings.ReplaceAll(req.ReturnURL, returnURLPlaceholder, tx.ID),
			Locale:        locale,
			Mobile:        req.Mobile,
		})
		if err != nil {
			// The purse hold, if any, stays until it expires.
			log.Error("failed to initialize payment", zap.Error(err))
			return "", apperror.Wrap(apperror.KindPaymentGateway, op, err)
		}

		tx.PaymentMethodID = method.ID
		tx.PaymentServiceID = method.ServiceID
		tx.PaymentMethodAmount = shortfall
		tx.PaymentData = session.Data
		tx.Expire = models.EarliestExpiry(tx.Expire, session.Expire)
		webviewURL = session.WebviewURL
	}

	next := models.StateFinalizePending
	if webviewURL != "" {
		next = models.StateUserInteractionPending
	}
	if err := tx.TransitionTo(next); err != nil {
		return "", err
	}
	if err := e.store.Save(ctx, tx); err != nil {
		return "", err
	}
	return webviewURL, nil
}

// reservePurse holds the purchase total on the purse. Purse failures are not
// fatal: the purse simply contributes nothing. Reports whether a hold was made.
func (e *Engine) reservePurse(ctx context.Context, tx *models.Transaction, partial bool) bool {
	reservation, err := e.purse.Reserve(ctx, tx.PurseID, tx.TotalAmount, partial)
	if err != nil {
		tx.PurseAmount = decimal.Zero
		tx.PurseReservationID = ""
		if apperror.Is(err, apperror.KindLedgerConflict) {
			e.txLogger(tx).Debug("no money in purse", zap.Error(err))
		} else {
			e.txLogger(tx).Error("failed to access purse, skipping", zap.Error(err))
		}
		return false
	}

	tx.PurseReservationID = reservation.ID
	tx.PurseAmount = reservation.Amount
	tx.PurseRefundableAmount = reservation.RefundableAmount
	if !reservation.Expire.IsZero() {
		expire := reservation.Expire
		tx.Expire = &expire
	}
	return true
}

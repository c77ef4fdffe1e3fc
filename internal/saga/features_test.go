package saga_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
	"github.com/sheikh-saqib/purchase-saga/internal/payment"
	"github.com/sheikh-saqib/purchase-saga/internal/saga"
	"github.com/sheikh-saqib/purchase-saga/internal/saga/sagatest"
)

type purchaseTestContext struct {
	opts        sagatest.Options
	h           *sagatest.Harness
	funds       []int64
	refundable  bool
	failOnItem  int
	txID        string
	initErr     error
	finalizeErr error
	cancelErr   error
}

func (c *purchaseTestContext) reset() {
	*c = purchaseTestContext{}
}

// harness builds the harness lazily so Given steps can still tune options.
func (c *purchaseTestContext) harness() *sagatest.Harness {
	if c.h == nil {
		c.h = sagatest.New(c.opts)
		for _, f := range c.funds {
			c.h.Fund(f, c.refundable)
		}
		c.h.Issuer.FailCreateCall = c.failOnItem
	}
	return c.h
}

func (c *purchaseTestContext) aWalletThatAlwaysUsesThePurse() error {
	c.opts.UsePurse = models.UsePurseAlways
	return nil
}

func (c *purchaseTestContext) aWalletThatLetsTheTravellerChoose() error {
	c.opts.UsePurse = models.UsePurseOptional
	return nil
}

func (c *purchaseTestContext) thePurseHoldsRefundable(amount int) error {
	c.funds = append(c.funds, int64(amount))
	c.refundable = true
	return nil
}

func (c *purchaseTestContext) thePurseHoldsNothing() error {
	c.funds = nil
	return nil
}

func (c *purchaseTestContext) issuanceFailsOnItem(n int) error {
	c.failOnItem = n
	return nil
}

func (c *purchaseTestContext) theTravellerBuysWithoutAPaymentMethod(count int, productSet string, price int) error {
	res, err := c.harness().Engine.InitializePurchase(context.Background(), sagatest.Traveller(),
		sagatest.Request("", sagatest.Item(productSet, count, int64(price))))
	c.txID, c.initErr = res.TransactionID, err
	return nil
}

func (c *purchaseTestContext) theTravellerBuysWithTheCardUsingThePurse(table *godog.Table) error {
	var items []saga.ItemRequest
	for i, row := range table.Rows {
		if i == 0 {
			continue
		}
		count, err := strconv.Atoi(row.Cells[1].Value)
		if err != nil {
			return err
		}
		price, err := strconv.ParseInt(row.Cells[2].Value, 10, 64)
		if err != nil {
			return err
		}
		items = append(items, sagatest.Item(row.Cells[0].Value, count, price))
	}
	req := sagatest.Request(sagatest.CardID, items...)
	usePurse := true
	req.UsePurse = &usePurse
	res, err := c.harness().Engine.InitializePurchase(context.Background(), sagatest.Traveller(), req)
	c.txID, c.initErr = res.TransactionID, err
	return err
}

func (c *purchaseTestContext) theTravellerFinalizesThePurchase() error {
	_, c.finalizeErr = c.harness().Engine.Finalize(context.Background(), sagatest.Traveller(), c.txID, "")
	return nil
}

func (c *purchaseTestContext) productIsLentTo(n int, borrower string) error {
	tx, err := c.transaction()
	if err != nil {
		return err
	}
	ids := tx.ProductIDs()
	if n < 1 || n > len(ids) {
		return fmt.Errorf("transaction has %d products", len(ids))
	}
	return c.harness().Products.Lend(ids[n-1], borrower)
}

func (c *purchaseTestContext) theTravellerCancelsThePurchase() error {
	_, c.cancelErr = c.harness().Engine.Cancel(context.Background(), sagatest.Traveller(), c.txID, "")
	return nil
}

func (c *purchaseTestContext) hoursPass(n int) error {
	c.harness().Clock.Advance(time.Duration(n) * time.Hour)
	return nil
}

func (c *purchaseTestContext) transaction() (*models.Transaction, error) {
	if c.txID == "" {
		return nil, errors.New("no transaction was created")
	}
	return c.harness().Engine.Get(context.Background(), c.txID)
}

func expectKind(what string, err error, kind string) error {
	if err == nil {
		return fmt.Errorf("expected %s to fail with %s", what, kind)
	}
	if got := apperror.KindOf(err).String(); got != kind {
		return fmt.Errorf("expected %s to fail with %s, got %s: %v", what, kind, got, err)
	}
	return nil
}

func (c *purchaseTestContext) thePurchaseFailsWith(kind string) error {
	return expectKind("initialize", c.initErr, kind)
}

func (c *purchaseTestContext) theSettlementFailsWith(kind string) error {
	return expectKind("finalize", c.finalizeErr, kind)
}

func (c *purchaseTestContext) theCancellationFailsWith(kind string) error {
	return expectKind("cancel", c.cancelErr, kind)
}

func (c *purchaseTestContext) theTransactionIs(state string) error {
	tx, err := c.transaction()
	if err != nil {
		return err
	}
	if string(tx.State) != state {
		return fmt.Errorf("expected state %s, got %s", state, tx.State)
	}
	return nil
}

func (c *purchaseTestContext) thePurseHasRecordsForTheTransaction(n int) error {
	var got int
	for _, e := range c.harness().PurseEntries() {
		if e.TransactionID == c.txID {
			got++
		}
	}
	if got != n {
		return fmt.Errorf("expected %d purse records, got %d", n, got)
	}
	return nil
}

func (c *purchaseTestContext) purseRecordIs(n, amount int) error {
	var records []models.LedgerEntry
	for _, e := range c.harness().PurseEntries() {
		if e.TransactionID == c.txID {
			records = append(records, e)
		}
	}
	if n < 1 || n > len(records) {
		return fmt.Errorf("only %d purse records", len(records))
	}
	if !records[n-1].Amount.Equal(decimal.NewFromInt(int64(amount))) {
		return fmt.Errorf("expected record %d to be %d, got %s", n, amount, records[n-1].Amount)
	}
	return nil
}

func (c *purchaseTestContext) thePaymentGatewayWasNotCalled() error {
	gw := c.harness().Gateway
	if calls := gw.InitCalls + gw.ReserveCalls + gw.FinalizeCalls + gw.CancelCalls; calls != 0 {
		return fmt.Errorf("expected no gateway calls, got %d", calls)
	}
	return nil
}

func (c *purchaseTestContext) amountsAddUpToTheTotal() error {
	tx, err := c.transaction()
	if err != nil {
		return err
	}
	if !tx.Balanced() {
		return fmt.Errorf("purse %s + payment %s != total %s", tx.PurseAmount, tx.PaymentMethodAmount, tx.TotalAmount)
	}
	return nil
}

func (c *purchaseTestContext) productsWereCancelled(n int) error {
	if got := len(c.harness().Issuer.CancelledProducts()); got != n {
		return fmt.Errorf("expected %d cancelled products, got %d", n, got)
	}
	return nil
}

func (c *purchaseTestContext) thePurseReservationWasReleased() error {
	tx, err := c.transaction()
	if err != nil {
		return err
	}
	if tx.PurseReservationID != "" {
		return fmt.Errorf("reservation %s still linked", tx.PurseReservationID)
	}
	var funded int64
	for _, f := range c.funds {
		funded += f
	}
	if available := c.harness().Available(); !available.Equal(decimal.NewFromInt(funded)) {
		return fmt.Errorf("expected %d available, got %s", funded, available)
	}
	return nil
}

func (c *purchaseTestContext) theCardPaymentIs(status string) error {
	tx, err := c.transaction()
	if err != nil {
		return err
	}
	id, err := payment.PaymentID(tx.PaymentData)
	if err != nil {
		return err
	}
	got, _ := c.harness().Gateway.Status(id)
	if got != status {
		return fmt.Errorf("expected payment %s, got %s", status, got)
	}
	return nil
}

func (c *purchaseTestContext) theTransactionIsNotCancellable() error {
	tx, err := c.transaction()
	if err != nil {
		return err
	}
	if tx.Cancellable || tx.CancellableExpire != nil {
		return fmt.Errorf("expected not cancellable, got %v until %v", tx.Cancellable, tx.CancellableExpire)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &purchaseTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a wallet that always uses the purse$`, tc.aWalletThatAlwaysUsesThePurse)
	ctx.Step(`^a wallet that lets the traveller choose$`, tc.aWalletThatLetsTheTravellerChoose)
	ctx.Step(`^the purse holds (\d+) refundable$`, tc.thePurseHoldsRefundable)
	ctx.Step(`^the purse holds nothing$`, tc.thePurseHoldsNothing)
	ctx.Step(`^issuance fails on item (\d+)$`, tc.issuanceFailsOnItem)

	// When steps
	ctx.Step(`^the traveller buys (\d+) "([^"]*)" at (\d+) without a payment method$`, tc.theTravellerBuysWithoutAPaymentMethod)
	ctx.Step(`^the traveller buys with the card using the purse:$`, tc.theTravellerBuysWithTheCardUsingThePurse)
	ctx.Step(`^the traveller finalizes the purchase$`, tc.theTravellerFinalizesThePurchase)
	ctx.Step(`^product (\d+) is lent to "([^"]*)"$`, tc.productIsLentTo)
	ctx.Step(`^the traveller cancels the purchase$`, tc.theTravellerCancelsThePurchase)
	ctx.Step(`^(\d+) hours pass$`, tc.hoursPass)

	// Then steps
	ctx.Step(`^the purchase fails with "([^"]*)"$`, tc.thePurchaseFailsWith)
	ctx.Step(`^the settlement fails with "([^"]*)"$`, tc.theSettlementFailsWith)
	ctx.Step(`^the cancellation fails with "([^"]*)"$`, tc.theCancellationFailsWith)
	ctx.Step(`^the transaction is "([^"]*)"$`, tc.theTransactionIs)
	ctx.Step(`^the purse has (\d+) records? for the transaction$`, tc.thePurseHasRecordsForTheTransaction)
	ctx.Step(`^purse record (\d+) is (-?\d+)$`, tc.purseRecordIs)
	ctx.Step(`^the payment gateway was not called$`, tc.thePaymentGatewayWasNotCalled)
	ctx.Step(`^purse and payment method amounts add up to the total$`, tc.amountsAddUpToTheTotal)
	ctx.Step(`^(\d+) products? (?:was|were) cancelled$`, tc.productsWereCancelled)
	ctx.Step(`^the purse reservation was released$`, tc.thePurseReservationWasReleased)
	ctx.Step(`^the card payment is "([^"]*)"$`, tc.theCardPaymentIs)
	ctx.Step(`^the transaction is not cancellable$`, tc.theTransactionIsNotCancellable)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

package models

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTo(t *testing.T) {
	tx := &Transaction{State: StateInitialized}

	require.NoError(t, tx.TransitionTo(StateFinalizePending))
	require.NoError(t, tx.TransitionTo(StatePurchased))
	require.NoError(t, tx.TransitionTo(StatePurchased), "re-entering the same state is a no-op")

	err := tx.TransitionTo(StateFinalizePending)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, StatePurchased, tx.State)
}

func TestTerminalStatesHaveNoExit(t *testing.T) {
	for _, s := range []TransactionState{StateCancelled, StateDenied, StateError} {
		assert.True(t, s.IsTerminal(), s)
		tx := &Transaction{State: s}
		assert.Error(t, tx.TransitionTo(StatePurchased), s)
		assert.Error(t, tx.TransitionTo(StateCancelled), s)
	}
	assert.False(t, StatePurchased.IsTerminal())
	assert.False(t, StateIssueError.CanTransitionTo(StatePurchased))
}

func TestStatePredicates(t *testing.T) {
	assert.True(t, StateFinalizePending.IsPending())
	assert.True(t, StateUserInteractionPending.IsPending())
	assert.False(t, StateInitialized.IsPending())
	assert.True(t, StateCancelFailed.IsCancelInProgress())
	assert.False(t, StatePurchased.IsCancelInProgress())
}

func TestAggregateVat(t *testing.T) {
	items := []TransactionItem{
		{Count: 2, Amount: decimal.NewFromInt(20), Vat: []Vat{
			{Percentage: decimal.NewFromInt(24), Amount: decimal.RequireFromString("1.94")},
		}},
		{Count: 1, Amount: decimal.NewFromInt(5), Vat: []Vat{
			{Percentage: decimal.NewFromInt(10), Amount: decimal.RequireFromString("0.45")},
			{Percentage: decimal.NewFromInt(24), Amount: decimal.RequireFromString("0.50")},
		}},
	}

	vat := AggregateVat(items)
	require.Len(t, vat, 2)
	assert.True(t, vat[0].Percentage.Equal(decimal.NewFromInt(10)))
	assert.True(t, vat[0].Amount.Equal(decimal.RequireFromString("0.45")))
	assert.True(t, vat[1].Amount.Equal(decimal.RequireFromString("4.38")))
	assert.True(t, SumItems(items).Equal(decimal.NewFromInt(25)))
}

func TestEarliestExpiry(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)

	assert.Nil(t, EarliestExpiry(nil, nil))
	assert.Equal(t, now, *EarliestExpiry(&now, nil))
	assert.Equal(t, later, *EarliestExpiry(nil, &later))
	assert.Equal(t, now, *EarliestExpiry(&later, &now))
}

func TestClone_IsDeep(t *testing.T) {
	exp := time.Now()
	tx := &Transaction{
		ID:                "t-1",
		PurseRecordIDs:    []string{"r-1"},
		CancellableExpire: &exp,
		Items:             []TransactionItem{{ProductSetID: "ps-1", MtbProductIDs: []string{"p-1"}}},
	}

	cp := tx.Clone()
	cp.PurseRecordIDs[0] = "changed"
	cp.Items[0].MtbProductIDs[0] = "changed"
	*cp.CancellableExpire = exp.Add(time.Hour)

	assert.Equal(t, "r-1", tx.PurseRecordIDs[0])
	assert.Equal(t, "p-1", tx.Items[0].MtbProductIDs[0])
	assert.Equal(t, exp, *tx.CancellableExpire)
}

func TestTransactionFilter(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tx := &Transaction{
		OwnerID:     "u-1",
		RecipientID: "u-2",
		WalletID:    "w-1",
		State:       StateCancelFailed,
		CreatedAt:   created,
		Items:       []TransactionItem{{MtbProductIDs: []string{"p-9"}}},
	}
	before := created.Add(time.Minute)
	after := created.Add(-time.Minute)

	assert.True(t, TransactionFilter{}.Matches(tx))
	assert.True(t, TransactionFilter{PartyID: "u-2", WalletID: "w-1", After: &after, Before: &before}.Matches(tx))
	assert.True(t, TransactionFilter{MtbProductID: "p-9"}.Matches(tx))
	assert.False(t, TransactionFilter{MtbProductID: "p-1"}.Matches(tx))
	assert.False(t, TransactionFilter{Before: &created}.Matches(tx))
	assert.False(t, TransactionFilter{PartyID: "u-3"}.Matches(tx))
	assert.True(t, TransactionFilter{States: []TransactionState{StateIssueError, StateCancelFailed}}.Matches(tx))
	assert.False(t, TransactionFilter{States: []TransactionState{StatePurchased}}.Matches(tx))
}

func TestBalanced(t *testing.T) {
	tx := &Transaction{
		TotalAmount:         decimal.NewFromInt(100),
		PurseAmount:         decimal.NewFromInt(40),
		PaymentMethodAmount: decimal.NewFromInt(60),
	}
	assert.True(t, tx.Balanced())
	tx.PaymentMethodAmount = decimal.NewFromInt(50)
	assert.False(t, tx.Balanced())
}

package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_WrappedChain(t *testing.T) {
	base := Policy("initialize", "wallet doesn't allow use of purse")
	wrapped := fmt.Errorf("handler: %w", base)

	assert.Equal(t, KindPolicy, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindPolicy))
	assert.False(t, Is(nil, KindPolicy))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestWrap_PreservesGatewayFlags(t *testing.T) {
	gw := Gateway("reserve", errors.New("timeout"), true)
	err := Wrap(KindPaymentGateway, "finalize", gw)

	require.NotNil(t, err)
	assert.True(t, err.Retryable)
	assert.True(t, IsRetryable(err))
	assert.Nil(t, Wrap(KindInternal, "noop", nil))

	cancelled := UserCancelledGateway("reserve", errors.New("user aborted"))
	assert.True(t, IsUserCancelled(fmt.Errorf("x: %w", cancelled)))
}

func TestWithGaps(t *testing.T) {
	base := New(KindIssuance, "finalize", "product creation failed")
	gap := errors.New("cancel product p-1")

	err := WithGaps(base, []error{gap})
	require.Len(t, GapsOf(err), 1)
	assert.Empty(t, base.Gaps, "original error must not be mutated")
	assert.Equal(t, KindIssuance, KindOf(err))

	plain := WithGaps(errors.New("save failed"), []error{gap})
	assert.Equal(t, KindInternal, KindOf(plain))
	assert.Equal(t, base, WithGaps(base, nil))
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindNotFound, Op: "load", Msg: "transaction t-1 not found"}
	assert.Equal(t, "load: transaction t-1 not found", err.Error())

	err = &Error{Kind: KindLedgerUnavailable, Err: errors.New("dial tcp")}
	assert.Equal(t, "ledger_unavailable: dial tcp", err.Error())
}

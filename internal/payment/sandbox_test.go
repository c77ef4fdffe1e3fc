package payment

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

func initSandbox(t *testing.T, s *Sandbox) (*models.PaymentSession, string) {
	t.Helper()
	session, err := s.Initialize(context.Background(), models.PaymentInit{
		Amount:        decimal.NewFromInt(40),
		Currency:      "EUR",
		TransactionID: "tx-1",
	})
	require.NoError(t, err)
	id, err := PaymentID(session.Data)
	require.NoError(t, err)
	return session, id
}

func TestSandbox_CaptureAndRefund(t *testing.T) {
	ctx := context.Background()
	s := NewSandbox("https://pay.example/webview/", 10*time.Minute)
	session, id := initSandbox(t, s)

	assert.Equal(t, "https://pay.example/webview/"+id, session.WebviewURL)
	require.NotNil(t, session.Expire)

	require.NoError(t, s.Reserve(ctx, session))
	ref, err := s.Finalize(ctx, session, "3ds-ok")
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	status, _ := s.Status(id)
	assert.Equal(t, StatusCaptured, status)
	assert.Contains(t, string(session.Data), StatusCaptured)

	assert.Error(t, s.Cancel(ctx, session, "wrong", "Cancel requested"))
	require.NoError(t, s.Cancel(ctx, session, ref, "Cancel requested"))
	status, _ = s.Status(id)
	assert.Equal(t, StatusRefunded, status)
}

func TestSandbox_UserCancelled(t *testing.T) {
	s := NewSandbox("", 0)
	session, id := initSandbox(t, s)
	assert.Empty(t, session.WebviewURL)
	assert.Nil(t, session.Expire)

	require.NoError(t, s.UserCancel(id))
	err := s.Reserve(context.Background(), session)
	require.Error(t, err)
	assert.True(t, apperror.IsUserCancelled(err))
	assert.True(t, apperror.Is(err, apperror.KindPaymentGateway))
}

func TestSandbox_FinalizeRequiresReserve(t *testing.T) {
	s := NewSandbox("", 0)
	session, _ := initSandbox(t, s)

	_, err := s.Finalize(context.Background(), session, "")
	assert.True(t, apperror.Is(err, apperror.KindPaymentGateway))

	_, err = s.Initialize(context.Background(), models.PaymentInit{Amount: decimal.Zero})
	assert.Error(t, err)
}

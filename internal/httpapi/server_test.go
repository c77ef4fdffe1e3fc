package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheikh-saqib/purchase-saga/internal/httpapi"
	"github.com/sheikh-saqib/purchase-saga/internal/metrics"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
	"github.com/sheikh-saqib/purchase-saga/internal/saga/sagatest"
)

type fixture struct {
	h       *sagatest.Harness
	handler http.Handler
	metrics *metrics.ServerMetrics
}

func newFixture(t *testing.T, opts sagatest.Options) *fixture {
	t.Helper()
	h := sagatest.New(opts)
	m := metrics.NewServerMetrics(h.Registry)
	srv := httpapi.NewServer(h.Engine, h.Ledger, nil, m, h.Registry)
	return &fixture{h: h, handler: srv.Routes(), metrics: m}
}

func (f *fixture) do(t *testing.T, method, path string, user *models.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != nil {
		req.Header.Set(httpapi.HeaderUserID, user.ID)
		req.Header.Set(httpapi.HeaderUserType, string(user.Type))
		req.Header.Set(httpapi.HeaderUserLocale, user.Locale)
		if user.Operator {
			req.Header.Set(httpapi.HeaderOperator, "true")
		}
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type initBody struct {
	TransactionID string `json:"transaction_id"`
	WebviewURL    string `json:"webview_url"`
}

type errBody struct {
	Error         string   `json:"error"`
	Message       string   `json:"message"`
	TransactionID string   `json:"transaction_id"`
	Gaps          []string `json:"gaps"`
}

func purchaseBody(paymentMethodID string) map[string]any {
	return map[string]any{
		"currency":          sagatest.Currency,
		"description":       "day tickets",
		"wallet_id":         sagatest.WalletID,
		"payment_method_id": paymentMethodID,
		"return_url":        "https://app.example/return/{TID}",
		"items": []map[string]any{
			{"product_set_id": "day-ticket", "title": "Day ticket", "count": 2, "amount": "20"},
		},
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, sagatest.Options{})

	rec := f.do(t, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPurchaseLifecycle(t *testing.T) {
	f := newFixture(t, sagatest.Options{})
	f.h.Fund(50, true)
	traveller := sagatest.Traveller()

	rec := f.do(t, http.MethodPost, "/transactions", &traveller, purchaseBody(""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[initBody](t, rec)
	require.NotEmpty(t, created.TransactionID)
	assert.Empty(t, created.WebviewURL)

	rec = f.do(t, http.MethodGet, "/transactions/"+created.TransactionID, &traveller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tx := decodeBody[models.Transaction](t, rec)
	assert.Equal(t, models.StateFinalizePending, tx.State)
	assert.True(t, tx.PurseAmount.Equal(decimal.NewFromInt(20)))

	rec = f.do(t, http.MethodPost, "/transactions/"+created.TransactionID+"/finalize", &traveller, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tx = decodeBody[models.Transaction](t, rec)
	assert.Equal(t, models.StatePurchased, tx.State)
	assert.Len(t, tx.ProductIDs(), 2)

	rec = f.do(t, http.MethodPost, "/transactions/"+created.TransactionID+"/cancel", &traveller,
		map[string]string{"reason": "changed plans"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tx = decodeBody[models.Transaction](t, rec)
	assert.Equal(t, models.StateCancelled, tx.State)
	assert.True(t, f.h.Available().Equal(decimal.NewFromInt(50)))
}

func TestInitialize_WebviewForCardPayment(t *testing.T) {
	f := newFixture(t, sagatest.Options{WebviewBase: "https://pay.example/checkout"})
	traveller := sagatest.Traveller()

	rec := f.do(t, http.MethodPost, "/transactions", &traveller, purchaseBody(sagatest.CardID))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[initBody](t, rec)
	assert.NotEmpty(t, created.WebviewURL)
}

func TestInitialize_Errors(t *testing.T) {
	f := newFixture(t, sagatest.Options{})
	traveller := sagatest.Traveller()

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader("{"))
		req.Header.Set(httpapi.HeaderUserID, traveller.ID)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "policy_violation", decodeBody[errBody](t, rec).Error)
	})

	t.Run("anonymous payer", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/transactions", nil, purchaseBody(""))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty purse without payment method", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/transactions", &traveller, purchaseBody(""))

		require.Equal(t, http.StatusPaymentRequired, rec.Code)
		body := decodeBody[errBody](t, rec)
		assert.Equal(t, "insufficient_funds", body.Error)
		assert.NotEmpty(t, body.TransactionID)
	})
}

func TestGet_AccessAndMissing(t *testing.T) {
	f := newFixture(t, sagatest.Options{})
	f.h.Fund(50, true)
	traveller := sagatest.Traveller()
	stranger := models.User{ID: "someone-else", Type: models.UserTypeTraveller}
	operator := sagatest.Operator()

	rec := f.do(t, http.MethodPost, "/transactions", &traveller, purchaseBody(""))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[initBody](t, rec).TransactionID

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/transactions/"+id, &stranger, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/transactions/"+id, &operator, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/transactions/missing", &traveller, nil).Code)
}

func TestFinalize_Conflicts(t *testing.T) {
	f := newFixture(t, sagatest.Options{})
	f.h.Fund(50, true)
	traveller := sagatest.Traveller()
	stranger := models.User{ID: "someone-else", Type: models.UserTypeTraveller}

	rec := f.do(t, http.MethodPost, "/transactions", &traveller, purchaseBody(""))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[initBody](t, rec).TransactionID

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/transactions/"+id+"/finalize", &stranger, nil).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/transactions/"+id+"/finalize", &traveller, nil).Code)

	rec = f.do(t, http.MethodPost, "/transactions/"+id+"/finalize", &traveller, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", decodeBody[errBody](t, rec).Error)
}

func TestFinalize_FailureReportsGaps(t *testing.T) {
	f := newFixture(t, sagatest.Options{})
	f.h.Fund(50, true)
	traveller := sagatest.Traveller()

	rec := f.do(t, http.MethodPost, "/transactions", &traveller, purchaseBody(""))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[initBody](t, rec).TransactionID

	f.h.Issuer.FailCreateCall = 1
	f.h.Purse.DeleteErr = sagatest.LedgerDown()

	rec = f.do(t, http.MethodPost, "/transactions/"+id+"/finalize", &traveller, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeBody[errBody](t, rec)
	assert.Equal(t, "issuance", body.Error)
	assert.NotEmpty(t, body.Gaps)

	tx, err := f.h.Store.Load(t.Context(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StateIssueError, tx.State)
}

func TestList(t *testing.T) {
	f := newFixture(t, sagatest.Options{})
	f.h.Fund(100, true)
	traveller := sagatest.Traveller()
	operator := sagatest.Operator()

	var ids []string
	for range 2 {
		rec := f.do(t, http.MethodPost, "/transactions", &traveller, purchaseBody(""))
		require.Equal(t, http.StatusCreated, rec.Code)
		ids = append(ids, decodeBody[initBody](t, rec).TransactionID)
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/transactions/"+ids[0]+"/finalize", &traveller, nil).Code)

	rec := f.do(t, http.MethodGet, "/transactions?state=purchased", &traveller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	txs := decodeBody[[]models.Transaction](t, rec)
	require.Len(t, txs, 1)
	assert.Equal(t, ids[0], txs[0].ID)

	rec = f.do(t, http.MethodGet, "/transactions?limit=1", &operator, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.Transaction](t, rec), 1)

	stranger := models.User{ID: "someone-else"}
	rec = f.do(t, http.MethodGet, "/transactions?party_id="+sagatest.TravellerID, &stranger, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/transactions?limit=zero", &traveller, nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/transactions?after=yesterday", &traveller, nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/transactions", nil, nil).Code)
}

func TestPurseBalance(t *testing.T) {
	f := newFixture(t, sagatest.Options{})
	f.h.Fund(50, true)
	traveller := sagatest.Traveller()

	rec := f.do(t, http.MethodPost, "/transactions", &traveller, purchaseBody(""))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/purses/"+sagatest.PurseID+"/balance", &traveller, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Balance   decimal.Decimal `json:"balance"`
		Available decimal.Decimal `json:"available"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Balance.Equal(decimal.NewFromInt(50)))
	assert.True(t, body.Available.Equal(decimal.NewFromInt(30)))
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, sagatest.Options{})

	f.do(t, http.MethodGet, "/health", nil, nil)
	f.do(t, http.MethodGet, "/transactions/missing", &models.User{ID: "x"}, nil)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Requests.WithLabelValues("health", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Requests.WithLabelValues("get", "404")))

	rec := f.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "purchase_http_requests_total")
}

func TestPurseTopUp(t *testing.T) {
	f := newFixture(t, sagatest.Options{})
	traveller := sagatest.Traveller()
	operator := sagatest.Operator()
	path := "/purses/" + sagatest.PurseID + "/top-ups"

	rec := f.do(t, http.MethodPost, path, &traveller, map[string]any{"amount": "10"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, path, &operator, map[string]any{"amount": "-5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, path, &operator, map[string]any{"amount": "25.50", "refundable": true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, f.h.Available().Equal(decimal.RequireFromString("25.50")))
}

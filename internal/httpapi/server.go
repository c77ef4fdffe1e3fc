// Package httpapi exposes the purchase saga over HTTP. Callers are
// identified by request headers set by an upstream gateway.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sheikh-saqib/purchase-saga/internal/metrics"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
	"github.com/sheikh-saqib/purchase-saga/internal/saga"
)

// Identity headers.
const (
	HeaderUserID     = "X-User-Id"
	HeaderUserType   = "X-User-Type"
	HeaderUserLocale = "X-User-Locale"
	HeaderOperator   = "X-Operator"
)

// Engine is the part of saga.Engine served over HTTP.
type Engine interface {
	InitializePurchase(ctx context.Context, payer models.User, req saga.PurchaseRequest) (saga.InitResult, error)
	Finalize(ctx context.Context, actor models.User, id, finalizationData string) (*models.Transaction, error)
	Cancel(ctx context.Context, actor models.User, id, reason string) (*models.Transaction, error)
	Get(ctx context.Context, id string) (*models.Transaction, error)
	List(ctx context.Context, filter models.TransactionFilter) ([]*models.Transaction, error)
}

// Purses reads and credits purse balances.
type Purses interface {
	GetBalance(ctx context.Context, purseID string) (decimal.Decimal, error)
	GetAvailable(ctx context.Context, purseID string) (decimal.Decimal, error)
	TopUp(ctx context.Context, purseID string, amount decimal.Decimal, refundable bool) (string, error)
}

// Server holds the HTTP handlers.
type Server struct {
	engine   Engine
	purses   Purses
	log      *zap.Logger
	metrics  *metrics.ServerMetrics
	gatherer prometheus.Gatherer
}

// NewServer builds a Server. A nil logger disables logging; a nil gatherer
// leaves /metrics unregistered.
func NewServer(engine Engine, purses Purses, log *zap.Logger, m *metrics.ServerMetrics, gatherer prometheus.Gatherer) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{engine: engine, purses: purses, log: log, metrics: m, gatherer: gatherer}
}

// Routes returns the HTTP handler for every endpoint.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "GET /health", "health", s.health)
	s.handle(mux, "POST /transactions", "initialize", s.initialize)
	s.handle(mux, "GET /transactions", "list", s.list)
	s.handle(mux, "GET /transactions/{id}", "get", s.get)
	s.handle(mux, "POST /transactions/{id}/finalize", "finalize", s.finalize)
	s.handle(mux, "POST /transactions/{id}/cancel", "cancel", s.cancel)
	s.handle(mux, "GET /purses/{id}/balance", "purse_balance", s.purseBalance)
	s.handle(mux, "POST /purses/{id}/top-ups", "purse_top_up", s.purseTopUp)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.gatherer))
	}
	return mux
}

func (s *Server) handle(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(name, h))
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.Requests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
			s.metrics.LatencyMS.WithLabelValues(name).Observe(float64(elapsed.Milliseconds()))
		}
		s.log.Debug("request handled",
			zap.String("handler", name),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed))
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userFromRequest reads the caller identity headers.
func userFromRequest(r *http.Request) models.User {
	user := models.User{
		ID:     strings.TrimSpace(r.Header.Get(HeaderUserID)),
		Type:   models.UserTypeTraveller,
		Locale: r.Header.Get(HeaderUserLocale),
	}
	if models.UserType(strings.ToLower(r.Header.Get(HeaderUserType))) == models.UserTypeVendor {
		user.Type = models.UserTypeVendor
	}
	if op, err := strconv.ParseBool(r.Header.Get(HeaderOperator)); err == nil {
		user.Operator = op
	}
	return user
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

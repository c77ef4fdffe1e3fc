package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
)

var kindStatus = map[apperror.Kind]int{
	apperror.KindPolicy:            http.StatusBadRequest,
	apperror.KindInsufficientFunds: http.StatusPaymentRequired,
	apperror.KindForbidden:         http.StatusForbidden,
	apperror.KindNotFound:          http.StatusNotFound,
	apperror.KindConflict:          http.StatusConflict,
	apperror.KindInvalidState:      http.StatusConflict,
	apperror.KindConcurrency:       http.StatusConflict,
	apperror.KindPaymentGateway:    http.StatusBadGateway,
	apperror.KindLedgerConflict:    http.StatusBadGateway,
	apperror.KindIssuance:          http.StatusBadGateway,
	apperror.KindLedgerUnavailable: http.StatusServiceUnavailable,
}

// statusFor maps an error onto an HTTP status code.
func statusFor(err error) int {
	if status, ok := kindStatus[apperror.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error         string   `json:"error"`
	Message       string   `json:"message"`
	TransactionID string   `json:"transaction_id,omitempty"`
	Retryable     bool     `json:"retryable,omitempty"`
	Gaps          []string `json:"gaps,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error, transactionID string) {
	status := statusFor(err)
	body := errorBody{
		Error:         apperror.KindOf(err).String(),
		Message:       err.Error(),
		TransactionID: transactionID,
		Retryable:     apperror.IsRetryable(err),
	}
	for _, gap := range apperror.GapsOf(err) {
		body.Gaps = append(body.Gaps, gap.Error())
	}

	log := s.log.With(zap.Int("status", status), zap.String("transaction_id", transactionID))
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
	} else {
		log.Info("request rejected", zap.Error(err))
	}
	writeJSON(w, status, body)
}

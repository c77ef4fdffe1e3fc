package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
	"github.com/sheikh-saqib/purchase-saga/internal/saga"
)

const maxListLimit = 500

type itemRequest struct {
	ProductSetID     string          `json:"product_set_id"`
	Title            string          `json:"title"`
	Count            int             `json:"count"`
	Amount           decimal.Decimal `json:"amount"`
	Vat              []models.Vat    `json:"vat"`
	ManualActivation *bool           `json:"manual_activation"`
	StartOfValidity  *time.Time      `json:"start_of_validity"`
	ProductOwnerID   string          `json:"product_owner_id"`
	BearerID         string          `json:"bearer_id"`
}

type purchaseRequest struct {
	Items            []itemRequest `json:"items"`
	Currency         string        `json:"currency"`
	Description      string        `json:"description"`
	RecipientID      string        `json:"recipient_id"`
	WalletID         string        `json:"wallet_id"`
	PaymentMethodID  string        `json:"payment_method_id"`
	UsePurse         *bool         `json:"use_purse"`
	ReturnURL        string        `json:"return_url"`
	Mobile           bool          `json:"mobile"`
	ManualActivation *bool         `json:"manual_activation"`
	StartOfValidity  *time.Time    `json:"start_of_validity"`
	ProductOwnerID   string        `json:"product_owner_id"`
	BearerID         string        `json:"bearer_id"`
}

func (p purchaseRequest) toSaga() saga.PurchaseRequest {
	req := saga.PurchaseRequest{
		Currency:         p.Currency,
		Description:      p.Description,
		RecipientID:      p.RecipientID,
		WalletID:         p.WalletID,
		PaymentMethodID:  p.PaymentMethodID,
		UsePurse:         p.UsePurse,
		ReturnURL:        p.ReturnURL,
		Mobile:           p.Mobile,
		ManualActivation: p.ManualActivation,
		StartOfValidity:  p.StartOfValidity,
		ProductOwnerID:   p.ProductOwnerID,
		BearerID:         p.BearerID,
	}
	for _, in := range p.Items {
		req.Items = append(req.Items, saga.ItemRequest{
			ProductSetID:     in.ProductSetID,
			Title:            in.Title,
			Count:            in.Count,
			Amount:           in.Amount,
			Vat:              in.Vat,
			ManualActivation: in.ManualActivation,
			StartOfValidity:  in.StartOfValidity,
			ProductOwnerID:   in.ProductOwnerID,
			BearerID:         in.BearerID,
		})
	}
	return req
}

type initResponse struct {
	TransactionID string `json:"transaction_id"`
	WebviewURL    string `json:"webview_url,omitempty"`
}

func (s *Server) initialize(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperror.Policy("initialize purchase", "invalid request body"), "")
		return
	}

	res, err := s.engine.InitializePurchase(r.Context(), userFromRequest(r), req.toSaga())
	if err != nil {
		s.writeError(w, err, res.TransactionID)
		return
	}
	writeJSON(w, http.StatusCreated, initResponse{TransactionID: res.TransactionID, WebviewURL: res.WebviewURL})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tx, err := s.engine.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err, id)
		return
	}
	if !canView(userFromRequest(r), tx) {
		s.writeError(w, apperror.Forbidden("get transaction", "not a party of the transaction"), id)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func canView(user models.User, tx *models.Transaction) bool {
	return user.Operator || (user.ID != "" && (tx.OwnerID == user.ID || tx.RecipientID == user.ID))
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	user := userFromRequest(r)
	if !user.Operator {
		if user.ID == "" {
			s.writeError(w, apperror.Forbidden("list transactions", "missing user identity"), "")
			return
		}
		filter.PartyID = user.ID
	}

	txs, err := s.engine.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// parseFilter reads listing filters from the query string.
func parseFilter(r *http.Request) (models.TransactionFilter, error) {
	const op = "list transactions"
	q := r.URL.Query()
	filter := models.TransactionFilter{
		MtbProductID: q.Get("mtb_product_id"),
		PartyID:      q.Get("party_id"),
		WalletID:     q.Get("wallet_id"),
	}
	for _, key := range []string{"after", "before"} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return models.TransactionFilter{}, apperror.Policy(op, "invalid "+key+" timestamp")
		}
		if key == "after" {
			filter.After = &t
		} else {
			filter.Before = &t
		}
	}
	for _, v := range q["state"] {
		for _, state := range strings.Split(v, ",") {
			if state = strings.TrimSpace(state); state != "" {
				filter.States = append(filter.States, models.TransactionState(strings.ToUpper(state)))
			}
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return models.TransactionFilter{}, apperror.Policy(op, "limit must be a positive integer")
		}
		filter.Limit = min(limit, maxListLimit)
	}
	return filter, nil
}

type finalizeRequest struct {
	FinalizationData string `json:"finalization_data"`
}

func (s *Server) finalize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req finalizeRequest
	if !decodeOptional(r, &req) {
		s.writeError(w, apperror.Policy("finalize purchase", "invalid request body"), id)
		return
	}
	tx, err := s.engine.Finalize(r.Context(), userFromRequest(r), id, req.FinalizationData)
	if err != nil {
		s.writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req cancelRequest
	if !decodeOptional(r, &req) {
		s.writeError(w, apperror.Policy("cancel purchase", "invalid request body"), id)
		return
	}
	tx, err := s.engine.Cancel(r.Context(), userFromRequest(r), id, req.Reason)
	if err != nil {
		s.writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// decodeOptional decodes a JSON body when one is present.
func decodeOptional(r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	err := json.NewDecoder(r.Body).Decode(v)
	return err == nil || errors.Is(err, io.EOF)
}

type balanceResponse struct {
	PurseID   string          `json:"purse_id"`
	Balance   decimal.Decimal `json:"balance"`
	Available decimal.Decimal `json:"available"`
}

func (s *Server) purseBalance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	balance, err := s.purses.GetBalance(r.Context(), id)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	available, err := s.purses.GetAvailable(r.Context(), id)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{PurseID: id, Balance: balance, Available: available})
}

type topUpRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Refundable bool            `json:"refundable"`
}

type topUpResponse struct {
	PurseID  string `json:"purse_id"`
	RecordID string `json:"record_id"`
}

// purseTopUp credits a purse. Only operators may post credits.
func (s *Server) purseTopUp(w http.ResponseWriter, r *http.Request) {
	const op = "purse top-up"
	id := r.PathValue("id")
	if !userFromRequest(r).Operator {
		s.writeError(w, apperror.Forbidden(op, "only operators can top up purses"), "")
		return
	}
	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperror.Policy(op, "invalid request body"), "")
		return
	}
	recordID, err := s.purses.TopUp(r.Context(), id, req.Amount, req.Refundable)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, topUpResponse{PurseID: id, RecordID: recordID})
}

package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/purchase-saga/internal/apperror"
	interfaces "github.com/sheikh-saqib/purchase-saga/internal/interfaces"
	"github.com/sheikh-saqib/purchase-saga/internal/models"
)

// SandboxServiceID is the payment service id the sandbox registers under.
const SandboxServiceID = "sandbox"

// Sandbox payment statuses.
const (
	StatusInitialized   = "initialized"
	StatusUserCancelled = "user_cancelled"
	StatusReserved      = "reserved"
	StatusCaptured      = "captured"
	StatusReleased      = "released"
	StatusRefunded      = "refunded"
)

var (
	errUnknownPayment = errors.New("unknown payment")
	errBadSession     = errors.New("malformed session data")
)

// sandboxSession is what the sandbox keeps in PaymentSession.Data.
type sandboxSession struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

type sandboxPayment struct {
	id        string
	amount    decimal.Decimal
	currency  string
	status    string
	reference string
	reason    string
}

// Sandbox is an in-process payment service. It accepts every payment unless
// the user cancelled it in the webview, which makes it usable for local runs
// and tests.
type Sandbox struct {
	mu          sync.Mutex
	payments    map[string]*sandboxPayment
	webviewBase string
	ttl         time.Duration
	now         func() time.Time
}

// NewSandbox returns a sandbox gateway. With a webviewBase every payment
// needs user interaction at webviewBase/<payment id>; ttl bounds the session.
func NewSandbox(webviewBase string, ttl time.Duration) *Sandbox {
	return &Sandbox{
		payments:    make(map[string]*sandboxPayment),
		webviewBase: strings.TrimSuffix(webviewBase, "/"),
		ttl:         ttl,
		now:         time.Now,
	}
}

func (s *Sandbox) Initialize(ctx context.Context, req models.PaymentInit) (*models.PaymentSession, error) {
	const op = "sandbox initialize"
	if !req.Amount.IsPositive() {
		return nil, apperror.Gateway(op, fmt.Errorf("invalid amount %s", req.Amount), false)
	}

	p := &sandboxPayment{id: uuid.New().String(), amount: req.Amount, currency: req.Currency, status: StatusInitialized}
	s.mu.Lock()
	s.payments[p.id] = p
	s.mu.Unlock()

	data, err := json.Marshal(sandboxSession{PaymentID: p.id, Status: p.status})
	if err != nil {
		return nil, apperror.Gateway(op, err, false)
	}
	session := &models.PaymentSession{Data: data}
	if s.webviewBase != "" {
		session.WebviewURL = s.webviewBase + "/" + p.id
	}
	if s.ttl > 0 {
		expire := s.now().Add(s.ttl).UTC()
		session.Expire = &expire
	}
	return session, nil
}

func (s *Sandbox) Reserve(ctx context.Context, session *models.PaymentSession) error {
	const op = "sandbox reserve"
	return s.advance(op, session, func(p *sandboxPayment) error {
		switch p.status {
		case StatusInitialized, StatusReserved:
			p.status = StatusReserved
			return nil
		case StatusUserCancelled:
			return apperror.UserCancelledGateway(op, errors.New("payment cancelled by user"))
		default:
			return apperror.Gateway(op, fmt.Errorf("payment is %s", p.status), false)
		}
	})
}

func (s *Sandbox) Finalize(ctx context.Context, session *models.PaymentSession, finalizationData string) (string, error) {
	const op = "sandbox finalize"
	var reference string
	err := s.advance(op, session, func(p *sandboxPayment) error {
		if p.status != StatusReserved {
			return apperror.Gateway(op, fmt.Errorf("payment is %s", p.status), false)
		}
		p.status = StatusCaptured
		p.reference = "SBX-" + strings.ToUpper(p.id[:8])
		reference = p.reference
		return nil
	})
	return reference, err
}

func (s *Sandbox) Cancel(ctx context.Context, session *models.PaymentSession, reference, reason string) error {
	const op = "sandbox cancel"
	return s.advance(op, session, func(p *sandboxPayment) error {
		switch p.status {
		case StatusCaptured:
			if reference != "" && reference != p.reference {
				return apperror.Gateway(op, fmt.Errorf("reference %s doesn't match", reference), false)
			}
			p.status = StatusRefunded
		case StatusInitialized, StatusReserved, StatusUserCancelled:
			p.status = StatusReleased
		default:
			return apperror.Gateway(op, fmt.Errorf("payment is %s", p.status), false)
		}
		p.reason = reason
		return nil
	})
}

// UserCancel simulates the payer aborting in the webview.
func (s *Sandbox) UserCancel(paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return errUnknownPayment
	}
	if p.status == StatusInitialized {
		p.status = StatusUserCancelled
	}
	return nil
}

// Status returns the status of a payment and whether it exists.
func (s *Sandbox) Status(paymentID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[paymentID]
	if !ok {
		return "", false
	}
	return p.status, true
}

// PaymentID extracts the sandbox payment id from session data.
func PaymentID(data json.RawMessage) (string, error) {
	var ss sandboxSession
	if err := json.Unmarshal(data, &ss); err != nil || ss.PaymentID == "" {
		return "", errBadSession
	}
	return ss.PaymentID, nil
}

// advance applies step to the payment behind session and writes the new
// status back into the session data.
func (s *Sandbox) advance(op string, session *models.PaymentSession, step func(*sandboxPayment) error) error {
	if session == nil {
		return apperror.Gateway(op, errBadSession, false)
	}
	id, err := PaymentID(session.Data)
	if err != nil {
		return apperror.Gateway(op, err, false)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return apperror.Gateway(op, errUnknownPayment, false)
	}
	if err := step(p); err != nil {
		return err
	}
	data, err := json.Marshal(sandboxSession{PaymentID: p.id, Status: p.status})
	if err != nil {
		return apperror.Gateway(op, err, true)
	}
	session.Data = data
	return nil
}

var _ interfaces.PaymentGateway = (*Sandbox)(nil)

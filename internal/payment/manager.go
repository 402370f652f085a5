// Package payment owns the transaction lifecycle: it creates pending
// payments, drives them through a gateway and applies status transitions.
// It is the only writer of transaction status.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"payment_broker/internal/domain"
	"payment_broker/internal/gateway"
	"payment_broker/internal/metrics"
	"payment_broker/internal/store"
)

// Store is the persistence the manager needs.
type Store interface {
	Create(ctx context.Context, t *domain.Transaction) (string, error)        // Insert a new record
	FindByID(ctx context.Context, id string) (*domain.Transaction, error)     // Lookup by primary key
	FindOne(ctx context.Context, f store.Filter) (*domain.Transaction, error) // Newest match for a filter
	Update(ctx context.Context, id string, m store.Mutation) (bool, error)    // Conditional atomic update
}

// Crediter credits the application wallet for a completed card payment.
type Crediter interface {
	CreditApplicationWallet(ctx context.Context, sourceID string) (*domain.Transaction, error)
}

// Config holds lifecycle settings.
type Config struct {
	Currency       string        // Ledger currency
	ReturnURL      string        // Success redirect handed to the provider
	FailureURL     string        // Failure redirect handed to the provider
	GatewayTimeout time.Duration // Bound on every outbound gateway call
}

// Manager is the transaction lifecycle manager.
type Manager struct {
	store    Store              // Transaction persistence
	gateways *gateway.Registry  // Registered providers
	crediter Crediter           // Wallet crediting, optional
	cfg      Config             // Lifecycle settings
	log      logrus.FieldLogger // Component logger
}

// NewManager wires a manager. crediter may be nil.
func NewManager(s Store, gateways *gateway.Registry, crediter Crediter, cfg Config) *Manager {
	if cfg.Currency == "" {
		cfg.Currency = "TND" // Default ledger currency
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 20 * time.Second // Default gateway bound
	}
	return &Manager{
		store:    s,
		gateways: gateways,
		crediter: crediter,
		cfg:      cfg,
		log:      logrus.WithField("component", "payment"),
	}
}

// SetCrediter attaches the wallet crediter after construction.
func (m *Manager) SetCrediter(c Crediter) {
	m.crediter = c
}

// InitiateInput is a request to open a payment.
type InitiateInput struct {
	UserID   *uint           // Paying user, optional
	Amount   decimal.Decimal // Amount in the ledger currency
	OrderID  string          // Caller's order identifier
	Provider string          // Registered gateway name
}

// InitiateResult is what the caller gets back from a successful initiation.
type InitiateResult struct {
	Transaction *domain.Transaction // Stored pending transaction
	PaymentURL  string              // Where the customer completes payment
}

// InitiatePayment creates a pending transaction, calls the provider and
// records the provider reference. The local record survives gateway failures:
// validation and gateway rejections mark it failed, transient and
// configuration failures leave it pending with the error attached.
func (m *Manager) InitiatePayment(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", domain.ErrValidation)
	}
	if strings.TrimSpace(in.OrderID) == "" {
		return nil, fmt.Errorf("%w: orderId is required", domain.ErrValidation)
	}
	gw, ok := m.gateways.Get(in.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrValidation, in.Provider)
	}
	if _, err := gateway.ToMinorUnits(in.Amount, m.cfg.Currency); err != nil {
		return nil, err // Finer than the currency's smallest unit
	}

	tx := &domain.Transaction{
		UserID:   in.UserID,
		Kind:     domain.KindPayment,
		Method:   gw.Method(),
		Provider: gw.Name(),
		OrderID:  in.OrderID,
		Amount:   in.Amount,
		Currency: m.cfg.Currency,
		Status:   domain.StatusPending,
	}
	if _, err := m.store.Create(ctx, tx); err != nil {
		return nil, err // Nothing was sent to the provider
	}
	log := m.log.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"order_id":       tx.OrderID,
		"provider":       tx.Provider,
		"amount":         tx.Amount.String(),
	})

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.GatewayTimeout)
	session, err := gw.Initiate(callCtx, gateway.InitiateRequest{
		Amount:         in.Amount,
		OrderReference: in.OrderID,
		ReturnURL:      withOrder(m.cfg.ReturnURL, in.OrderID),
		FailureURL:     withOrder(m.cfg.FailureURL, in.OrderID),
		Currency:       m.cfg.Currency,
	})
	cancel() // Release the timer before any store work
	if err != nil {
		m.recordInitiateFailure(ctx, tx, err)
		log.WithField("error", err.Error()).Error("Payment initiation failed")
		return nil, err
	}

	applied, err := m.store.Update(ctx, tx.ID, store.Mutation{
		ProviderReference: session.ProviderReference,
		Details:           map[string]any{domain.DetailPaymentURL: session.PaymentURL},
	})
	if err != nil {
		return nil, fmt.Errorf("record provider session: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("record provider session: transaction %s changed concurrently", tx.ID)
	}
	updated, err := m.store.FindByID(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	log.WithField("provider_reference", session.ProviderReference).Info("Payment initiated")
	return &InitiateResult{Transaction: updated, PaymentURL: session.PaymentURL}, nil
}

// recordInitiateFailure attaches the error and fails the transaction when
// retrying the same input cannot succeed.
func (m *Manager) recordInitiateFailure(ctx context.Context, tx *domain.Transaction, cause error) {
	mut := store.Mutation{Details: map[string]any{
		domain.DetailLastError: cause.Error(),
		domain.DetailErrorCode: string(gateway.CodeOf(cause)),
	}}
	if errors.Is(cause, domain.ErrValidation) || errors.Is(cause, domain.ErrGateway) {
		mut.ExpectStatus = domain.StatusPending // Only a pending row may fail
		mut.Status = domain.StatusFailed        // Retrying the same input cannot succeed
	}
	if _, err := m.store.Update(ctx, tx.ID, mut); err != nil {
		m.log.WithFields(logrus.Fields{"transaction_id": tx.ID, "error": err.Error()}).Error("Failed to record initiation error")
		return
	}
	if mut.Status != "" {
		metrics.Transitions.WithLabelValues(tx.Provider, string(mut.Status)).Inc()
	}
}

// Correlation identifies the transaction a provider signal belongs to.
// ProviderReference wins; OrderID is the fallback for providers that only echo it.
type Correlation struct {
	Provider          string // Gateway name
	ProviderReference string // Provider-issued reference
	OrderID           string // Caller's order identifier
}

// ApplyStatus moves a pending transaction to newStatus. Terminal
// transactions are returned unchanged, which makes duplicate webhooks and
// repeated polls harmless; when two signals race, the first transition wins.
func (m *Manager) ApplyStatus(ctx context.Context, c Correlation, newStatus domain.Status, rawPayload map[string]any) (*domain.Transaction, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, newStatus)
	}
	tx, err := m.lookup(ctx, c)
	if err != nil {
		return nil, err
	}
	log := m.log.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"provider":       tx.Provider,
		"status":         tx.Status,
		"incoming":       newStatus,
	})
	if tx.Status.IsTerminal() {
		log.Debug("Duplicate status signal ignored")
		return tx, nil // First terminal transition wins
	}
	if !domain.CanTransition(tx.Status, newStatus) {
		return tx, nil // still pending on the provider side
	}

	details := map[string]any{domain.DetailVerifiedAt: time.Now().UnixMilli()}
	if rawPayload != nil {
		details[domain.DetailProviderPayload] = rawPayload
	}
	mut := store.Mutation{
		ExpectStatus: domain.StatusPending, // Precondition in the same UPDATE
		Status:       newStatus,            // Target status
		Details:      details,              // Merged into existing details
	}
	if tx.Reference() == "" {
		mut.ProviderReference = c.ProviderReference // Adopt the reference when initiation never recorded one
	}
	applied, err := m.store.Update(ctx, tx.ID, mut)
	if err != nil {
		return nil, err
	}
	current, err := m.store.FindByID(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if !applied {
		log.WithField("winner", current.Status).Info("Concurrent status signal lost the race")
		return current, nil
	}
	metrics.Transitions.WithLabelValues(current.Provider, string(current.Status)).Inc()
	log.Info("Transaction status updated")

	if current.Status == domain.StatusCompleted && current.Method == domain.MethodCard && m.crediter != nil {
		if _, err := m.crediter.CreditApplicationWallet(ctx, current.ID); err != nil {
			log.WithField("error", err.Error()).Error("Wallet credit failed, left for the reconciliation sweep")
		}
	}
	return current, nil
}

// VerifyPayment resolves a transaction by id or order id and, while it is
// still pending, asks the provider for its status. Transient provider
// failures keep the transaction pending and are returned to the caller.
func (m *Manager) VerifyPayment(ctx context.Context, key string) (*domain.Transaction, error) {
	tx, err := m.store.FindByID(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		tx, err = m.store.FindOne(ctx, store.Filter{Kind: domain.KindPayment, OrderID: key})
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTransaction, key)
	}
	if err != nil {
		return nil, err
	}
	if tx.Status.IsTerminal() || tx.Reference() == "" {
		return tx, nil // Nothing to ask the provider about
	}
	gw, ok := m.gateways.Get(tx.Provider)
	if !ok {
		return tx, fmt.Errorf("%w: provider %q is not registered", domain.ErrConfiguration, tx.Provider)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.GatewayTimeout)
	v, err := gw.Verify(callCtx, tx.Reference())
	cancel()
	if err != nil {
		m.log.WithFields(logrus.Fields{"transaction_id": tx.ID, "error": err.Error()}).Warn("Payment verification failed")
		return tx, err
	}
	return m.ApplyStatus(ctx, Correlation{Provider: tx.Provider, ProviderReference: tx.Reference()}, v.Status, v.RawPayload)
}

// Get returns a transaction by id.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	tx, err := m.store.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTransaction, id)
	}
	return tx, err
}

// lookup resolves a signal to its transaction. The order id fallback only
// matches a row that carries no reference or the signal's own reference.
func (m *Manager) lookup(ctx context.Context, c Correlation) (*domain.Transaction, error) {
	var (
		tx  *domain.Transaction
		err = store.ErrNotFound
	)
	if c.ProviderReference != "" {
		tx, err = m.store.FindOne(ctx, store.Filter{Provider: c.Provider, ProviderReference: c.ProviderReference})
	}
	if errors.Is(err, store.ErrNotFound) && c.OrderID != "" {
		tx, err = m.store.FindOne(ctx, store.Filter{Kind: domain.KindPayment, Provider: c.Provider, OrderID: c.OrderID})
		if err == nil && c.ProviderReference != "" && tx.Reference() != "" && tx.Reference() != c.ProviderReference {
			err = store.ErrNotFound // Belongs to another provider session
		}
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: reference %q order %q", domain.ErrUnknownTransaction, c.ProviderReference, c.OrderID)
	}
	return tx, err
}

// withOrder appends the order id to a redirect URL.
func withOrder(raw, orderID string) string {
	if raw == "" {
		return "" // Provider falls back to its own default
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("orderId", orderID)
	u.RawQuery = q.Encode()
	return u.String()
}

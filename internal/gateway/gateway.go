// Package gateway defines the contract every external payment provider
// implements and the registry the lifecycle manager selects adapters from.
package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"payment_broker/internal/domain"
)

// InitiateRequest asks a provider to open a payment session.
type InitiateRequest struct {
	Amount         decimal.Decimal // Major units in Currency
	OrderReference string          // Caller order id
	ReturnURL      string          // Success redirect
	FailureURL     string          // Failure redirect
	Currency       string          // ISO 4217 code
}

// Session is what a provider hands back for a newly opened payment.
type Session struct {
	PaymentURL        string // Hosted payment page
	ProviderReference string // Provider-issued id
}

// Verification is a provider's view of a payment, normalised.
type Verification struct {
	Status     domain.Status  // Normalised status
	RawPayload map[string]any // Provider answer, secrets removed
}

// Event is a decoded, normalised webhook notification.
type Event struct {
	OrderRef          string          // Caller order id echoed back
	Status            domain.Status   // Normalised status
	ProviderReference string          // Provider-issued id
	Amount            decimal.Decimal // Major units
	Raw               map[string]any  // Decoded body
}

// Gateway is implemented once per external provider.
type Gateway interface {
	Name() string
	Method() domain.Method
	Initiate(ctx context.Context, req InitiateRequest) (*Session, error)
	Verify(ctx context.Context, providerReference string) (*Verification, error)
}

// WebhookDecoder is implemented by gateways that push asynchronous notifications.
type WebhookDecoder interface {
	DecodeWebhook(body []byte) (*Event, error)
}

// Registry holds the configured gateways keyed by provider name.
type Registry struct {
	gateways map[string]Gateway // Keyed by lowercase name
}

// NewRegistry registers the given gateways.
func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway)}
	for _, g := range gateways {
		r.Register(g)
	}
	return r
}

// Register adds or replaces a gateway.
func (r *Registry) Register(g Gateway) {
	r.gateways[strings.ToLower(g.Name())] = g
}

// Get looks a gateway up by provider name, case-insensitively.
func (r *Registry) Get(name string) (Gateway, bool) {
	g, ok := r.gateways[strings.ToLower(name)]
	return g, ok
}

// Names lists registered providers in a stable order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for n := range r.gateways {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NormalizeStatus maps provider status vocabularies into the transaction status domain.
// Anything not clearly terminal is treated as pending.
func NormalizeStatus(s string) domain.Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "succeeded", "successful", "completed", "complete", "paid", "approved", "deposited":
		return domain.StatusCompleted
	case "failed", "failure", "fail", "declined", "rejected", "canceled", "cancelled", "expired", "reversed", "error":
		return domain.StatusFailed
	default:
		return domain.StatusPending
	}
}

// currencyExponent holds the minor-unit exponent of supported currencies.
var currencyExponent = map[string]int32{
	"TND": 3,
	"EUR": 2,
	"USD": 2,
}

// ToMinorUnits converts an amount to the currency's smallest unit.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	exp, ok := currencyExponent[strings.ToUpper(currency)]
	if !ok {
		return 0, fmt.Errorf("%w: unsupported currency %q", domain.ErrValidation, currency)
	}
	minor := amount.Shift(exp)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %s is finer than the %s minor unit", domain.ErrValidation, amount, currency)
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts a smallest-unit amount back to a decimal amount.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	exp, ok := currencyExponent[strings.ToUpper(currency)]
	if !ok {
		exp = 0
	}
	return decimal.New(minor, -exp)
}

// validateInitiate checks the fields every provider needs.
func validateInitiate(provider string, req InitiateRequest) error {
	switch {
	case !req.Amount.IsPositive():
		return NewError(provider, domain.ErrValidation, CodeInvalidAmount, "", "amount must be greater than zero")
	case strings.TrimSpace(req.OrderReference) == "":
		return NewError(provider, domain.ErrValidation, CodeInvalidRequest, "", "order reference is required")
	case req.Currency == "":
		return NewError(provider, domain.ErrValidation, CodeInvalidRequest, "", "currency is required")
	}
	return nil
}

// Package gatewaytest provides a programmable in-memory payment gateway.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"payment_broker/internal/domain"
	"payment_broker/internal/gateway"
)

// Fake implements gateway.Gateway and gateway.WebhookDecoder.
// By default Initiate hands out sequential references whose provider-side
// status starts pending; SetStatus changes what Verify reports.
type Fake struct {
	ProviderName string
	PayMethod    domain.Method

	// Optional overrides
	InitiateFunc func(ctx context.Context, req gateway.InitiateRequest) (*gateway.Session, error)
	VerifyFunc   func(ctx context.Context, ref string) (*gateway.Verification, error)

	mu          sync.Mutex
	seq         int
	statuses    map[string]domain.Status
	initiated   []gateway.InitiateRequest
	verifyCalls int
}

// New creates a fake for the given provider name and method.
func New(name string, method domain.Method) *Fake {
	return &Fake{ProviderName: name, PayMethod: method, statuses: make(map[string]domain.Status)}
}

func (f *Fake) Name() string          { return f.ProviderName }
func (f *Fake) Method() domain.Method { return f.PayMethod }

// Initiate records the request and opens a session.
func (f *Fake) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.Session, error) {
	f.mu.Lock()
	f.initiated = append(f.initiated, req)
	f.mu.Unlock()
	if f.InitiateFunc != nil {
		return f.InitiateFunc(ctx, req)
	}
	if !req.Amount.IsPositive() {
		return nil, gateway.NewError(f.ProviderName, domain.ErrValidation, gateway.CodeInvalidAmount, "", "amount must be greater than zero")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	ref := fmt.Sprintf("%s-ref-%d", f.ProviderName, f.seq)
	f.statuses[ref] = domain.StatusPending
	return &gateway.Session{PaymentURL: "https://pay.example/" + ref, ProviderReference: ref}, nil
}

// Verify reports the status set through SetStatus.
func (f *Fake) Verify(ctx context.Context, ref string) (*gateway.Verification, error) {
	f.mu.Lock()
	f.verifyCalls++
	f.mu.Unlock()
	if f.VerifyFunc != nil {
		return f.VerifyFunc(ctx, ref)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[ref]
	if !ok {
		return nil, gateway.NewError(f.ProviderName, domain.ErrGateway, gateway.CodeOrderNotFound, "", "unknown reference")
	}
	return &gateway.Verification{Status: status, RawPayload: map[string]any{"ref": ref, "status": string(status)}}, nil
}

// SetStatus changes the provider-side status of a reference.
func (f *Fake) SetStatus(ref string, status domain.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[ref] = status
}

// Initiated returns the recorded initiation requests.
func (f *Fake) Initiated() []gateway.InitiateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.InitiateRequest(nil), f.initiated...)
}

// VerifyCalls returns how often Verify ran.
func (f *Fake) VerifyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls
}

type webhookBody struct {
	OrderID           string          `json:"orderId"`
	Status            string          `json:"status"`
	ProviderReference string          `json:"providerReference"`
	Amount            decimal.Decimal `json:"amount"`
}

// DecodeWebhook accepts {orderId, status, providerReference, amount}.
func (f *Fake) DecodeWebhook(body []byte) (*gateway.Event, error) {
	var in webhookBody
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("%w: malformed body", domain.ErrValidation)
	}
	raw := map[string]any{}
	_ = json.Unmarshal(body, &raw)
	return &gateway.Event{
		OrderRef:          in.OrderID,
		ProviderReference: in.ProviderReference,
		Status:            gateway.NormalizeStatus(in.Status),
		Amount:            in.Amount,
		Raw:               raw,
	}, nil
}

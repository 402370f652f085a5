package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"payment_broker/internal/domain"
)

// KonnectName is the provider key of the wallet gateway.
const KonnectName = "konnect"

// KonnectConfig holds the wallet gateway credentials.
type KonnectConfig struct {
	BaseURL    string        // API base
	APIKey     string        // x-api-key header
	ReceiverID string        // Merchant wallet id
	Timeout    time.Duration // Per-call bound
}

// Konnect talks to the Konnect wallet payments API.
type Konnect struct {
	cfg  KonnectConfig // Adapter settings
	http *httpClient   // Redacting JSON client
}

// NewKonnect builds the wallet adapter. client may be nil.
func NewKonnect(cfg KonnectConfig, client *http.Client) *Konnect {
	return &Konnect{
		cfg:  cfg,
		http: newHTTPClient(KonnectName, client, cfg.Timeout, cfg.APIKey),
	}
}

func (k *Konnect) Name() string          { return KonnectName }
func (k *Konnect) Method() domain.Method { return domain.MethodWallet }

type konnectInitRequest struct {
	ReceiverWalletID       string   `json:"receiverWalletId"`
	Token                  string   `json:"token"`
	Amount                 int64    `json:"amount"`
	Type                   string   `json:"type"`
	AcceptedPaymentMethods []string `json:"acceptedPaymentMethods"`
	OrderID                string   `json:"orderId"`
	SuccessURL             string   `json:"successUrl,omitempty"`
	FailURL                string   `json:"failUrl,omitempty"`
}

type konnectInitResponse struct {
	PayURL     string `json:"payUrl"`
	PaymentRef string `json:"paymentRef"`
}

type konnectErrorResponse struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

type konnectPaymentResponse struct {
	Payment *struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		OrderID string `json:"orderId"`
		Amount  int64  `json:"amount"`
		Token   string `json:"token"`
	} `json:"payment"`
}

func (k *Konnect) checkConfig() error {
	switch {
	case k.cfg.BaseURL == "":
		return notConfigured(KonnectName, "base URL")
	case k.cfg.APIKey == "":
		return notConfigured(KonnectName, "API key")
	case k.cfg.ReceiverID == "":
		return notConfigured(KonnectName, "receiver wallet id")
	}
	return nil
}

// Initiate opens a wallet payment and returns the hosted pay page.
func (k *Konnect) Initiate(ctx context.Context, req InitiateRequest) (*Session, error) {
	if err := k.checkConfig(); err != nil {
		return nil, err
	}
	if err := validateInitiate(KonnectName, req); err != nil {
		return nil, err
	}
	minor, err := ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, NewError(KonnectName, domain.ErrValidation, CodeInvalidAmount, "", err.Error())
	}
	payload, err := json.Marshal(konnectInitRequest{
		ReceiverWalletID:       k.cfg.ReceiverID,
		Token:                  strings.ToUpper(req.Currency),
		Amount:                 minor,
		Type:                   "immediate",
		AcceptedPaymentMethods: []string{"wallet"},
		OrderID:                req.OrderReference,
		SuccessURL:             req.ReturnURL,
		FailURL:                req.FailureURL,
	})
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequest(http.MethodPost, k.endpoint("/payments/init-payment"), bytes.NewReader(payload))
	if err != nil {
		return nil, notConfigured(KonnectName, "valid base URL")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", k.cfg.APIKey)

	status, body, err := k.http.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, k.mapError(status, body)
	}
	var out konnectInitResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, k.http.malformed("init-payment response is not JSON")
	}
	if out.PayURL == "" || out.PaymentRef == "" {
		return nil, k.http.malformed("init-payment response missing payUrl or paymentRef")
	}
	return &Session{PaymentURL: out.PayURL, ProviderReference: out.PaymentRef}, nil
}

// Verify fetches the payment by its reference.
func (k *Konnect) Verify(ctx context.Context, providerReference string) (*Verification, error) {
	if err := k.checkConfig(); err != nil {
		return nil, err
	}
	if providerReference == "" {
		return nil, NewError(KonnectName, domain.ErrValidation, CodeInvalidRequest, "", "provider reference is required")
	}
	httpReq, err := http.NewRequest(http.MethodGet, k.endpoint("/payments/"+url.PathEscape(providerReference)), nil)
	if err != nil {
		return nil, notConfigured(KonnectName, "valid base URL")
	}
	httpReq.Header.Set("x-api-key", k.cfg.APIKey)

	status, body, err := k.http.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, k.mapError(status, body)
	}
	var out konnectPaymentResponse
	if err := json.Unmarshal(body, &out); err != nil || out.Payment == nil {
		return nil, k.http.malformed("payment response missing payment object")
	}
	return &Verification{
		Status: NormalizeStatus(out.Payment.Status),
		RawPayload: map[string]any{
			"paymentRef": out.Payment.ID,
			"status":     out.Payment.Status,
			"orderId":    out.Payment.OrderID,
			"amount":     out.Payment.Amount,
		},
	}, nil
}

type konnectWebhook struct {
	PaymentRef string `json:"paymentRef"`
	OrderID    string `json:"orderId"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	Token      string `json:"token"`
}

// DecodeWebhook parses a Konnect notification.
func (k *Konnect) DecodeWebhook(body []byte) (*Event, error) {
	var in konnectWebhook
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("%w: malformed konnect notification", domain.ErrValidation)
	}
	if in.PaymentRef == "" && in.OrderID == "" {
		return nil, fmt.Errorf("%w: notification carries no reference", domain.ErrValidation)
	}
	raw := map[string]any{}
	_ = json.Unmarshal(body, &raw)
	currency := in.Token
	if currency == "" {
		currency = "TND"
	}
	return &Event{
		OrderRef:          in.OrderID,
		ProviderReference: in.PaymentRef,
		Status:            NormalizeStatus(in.Status),
		Amount:            FromMinorUnits(in.Amount, currency),
		Raw:               raw,
	}, nil
}

func (k *Konnect) endpoint(path string) string {
	return strings.TrimRight(k.cfg.BaseURL, "/") + path
}

// mapError maps 4xx responses and their error codes into the internal enum.
func (k *Konnect) mapError(status int, body []byte) *Error {
	var out konnectErrorResponse
	_ = json.Unmarshal(body, &out)
	providerCode := "http " + strconv.Itoa(status)
	message := ""
	if len(out.Errors) > 0 {
		providerCode = out.Errors[0].Code
		message = out.Errors[0].Message
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(KonnectName, domain.ErrGateway, CodeInvalidCredentials, providerCode, message)
	case status == http.StatusNotFound:
		return NewError(KonnectName, domain.ErrGateway, CodeOrderNotFound, providerCode, message)
	case status == http.StatusConflict:
		return NewError(KonnectName, domain.ErrGateway, CodeDuplicateOrder, providerCode, message)
	case status == http.StatusTooManyRequests:
		return NewError(KonnectName, domain.ErrTransientGateway, CodeUnavailable, providerCode, message)
	case strings.Contains(strings.ToLower(providerCode), "amount"):
		return NewError(KonnectName, domain.ErrGateway, CodeInvalidAmount, providerCode, message)
	default:
		return NewError(KonnectName, domain.ErrGateway, CodeInvalidRequest, providerCode, message)
	}
}

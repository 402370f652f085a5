package gateway

import (
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

// ClicToPayName is the provider key of the card gateway.
const ClicToPayName = "clictopay"

// ClicToPayConfig holds the merchant credentials of the card gateway.
type ClicToPayConfig struct {
	BaseURL  string        // REST API base
	Username string        // Merchant API user
	Password string        // Merchant API password
	Timeout  time.Duration // Per-call bound
}

// ClicToPay talks to the ClicToPay card acquiring REST API. Credentials
// travel as query parameters, so transport errors are redacted.
type ClicToPay struct {
	cfg  ClicToPayConfig // Adapter settings
	http *httpClient     // Redacting JSON client
}

// NewClicToPay builds the card adapter. client may be nil.
func NewClicToPay(cfg ClicToPayConfig, client *http.Client) *ClicToPay {
	return &ClicToPay{
		cfg:  cfg,
		http: newHTTPClient(ClicToPayName, client, cfg.Timeout, cfg.Password, cfg.Username),
	}
}

func (c *ClicToPay) Name() string          { return ClicToPayName }
func (c *ClicToPay) Method() domain.Method { return domain.MethodCard }

// numeric ISO 4217 codes expected by the acquirer
var clictopayCurrency = map[string]string{
	"TND": "788",
	"EUR": "978",
	"USD": "840",
}

type clictopayRegisterResponse struct {
	OrderID      string `json:"orderId"`
	FormURL      string `json:"formUrl"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type clictopayStatusResponse struct {
	OrderStatus  *int   `json:"OrderStatus"`
	ErrorCode    string `json:"ErrorCode"`
	ErrorMessage string `json:"ErrorMessage"`
	OrderNumber  string `json:"OrderNumber"`
	Amount       int64  `json:"Amount"`
	Pan          string `json:"Pan"`
	ApprovalCode string `json:"approvalCode"`
}

func (c *ClicToPay) checkConfig() error {
	switch {
	case c.cfg.BaseURL == "":
		return notConfigured(ClicToPayName, "base URL")
	case c.cfg.Username == "" || c.cfg.Password == "":
		return notConfigured(ClicToPayName, "merchant credentials")
	}
	return nil
}

// Initiate registers an order and returns the hosted card form.
func (c *ClicToPay) Initiate(ctx context.Context, req InitiateRequest) (*Session, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	if err := validateInitiate(ClicToPayName, req); err != nil {
		return nil, err
	}
	if req.ReturnURL == "" || req.FailureURL == "" {
		return nil, notConfigured(ClicToPayName, "return and failure URL")
	}
	currency, ok := clictopayCurrency[strings.ToUpper(req.Currency)]
	if !ok {
		return nil, NewError(ClicToPayName, domain.ErrValidation, CodeInvalidRequest, "", "unsupported currency "+req.Currency)
	}
	minor, err := ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, NewError(ClicToPayName, domain.ErrValidation, CodeInvalidAmount, "", err.Error())
	}

	q := c.credentials()
	q.Set("orderNumber", req.OrderReference)
	q.Set("amount", strconv.FormatInt(minor, 10))
	q.Set("currency", currency)
	q.Set("returnUrl", req.ReturnURL)
	q.Set("failUrl", req.FailureURL)

	var out clictopayRegisterResponse
	if err := c.get(ctx, "/register.do", q, &out); err != nil {
		return nil, err
	}
	if out.ErrorCode != "" && out.ErrorCode != "0" {
		return nil, c.mapError(out.ErrorCode, out.ErrorMessage)
	}
	if out.OrderID == "" || out.FormURL == "" {
		return nil, c.http.malformed("register response missing orderId or formUrl")
	}
	return &Session{PaymentURL: out.FormURL, ProviderReference: out.OrderID}, nil
}

// Verify queries the order status.
func (c *ClicToPay) Verify(ctx context.Context, providerReference string) (*Verification, error) {
	if err := c.checkConfig(); err != nil {
		return nil, err
	}
	if providerReference == "" {
		return nil, NewError(ClicToPayName, domain.ErrValidation, CodeInvalidRequest, "", "provider reference is required")
	}
	q := c.credentials()
	q.Set("orderId", providerReference)

	var out clictopayStatusResponse
	if err := c.get(ctx, "/getOrderStatus.do", q, &out); err != nil {
		return nil, err
	}
	if out.ErrorCode != "" && out.ErrorCode != "0" && out.OrderStatus == nil {
		return nil, c.mapError(out.ErrorCode, out.ErrorMessage)
	}
	if out.OrderStatus == nil {
		return nil, c.http.malformed("status response missing OrderStatus")
	}
	return &Verification{
		Status: clictopayOrderStatus(*out.OrderStatus),
		RawPayload: map[string]any{
			"orderStatus":  *out.OrderStatus,
			"errorCode":    out.ErrorCode,
			"orderNumber":  out.OrderNumber,
			"amount":       out.Amount,
			"approvalCode": out.ApprovalCode,
			"pan":          out.Pan,
		},
	}, nil
}

type clictopayWebhook struct {
	OrderNumber string `json:"orderNumber"`
	MdOrder     string `json:"mdOrder"`
	Status      string `json:"status"`
	Operation   string `json:"operation"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// DecodeWebhook parses the acquirer callback body.
func (c *ClicToPay) DecodeWebhook(body []byte) (*Event, error) {
	var in clictopayWebhook
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("%w: malformed clictopay callback", domain.ErrValidation)
	}
	if in.MdOrder == "" && in.OrderNumber == "" {
		return nil, fmt.Errorf("%w: callback carries no order reference", domain.ErrValidation)
	}
	status := NormalizeStatus(in.Status)
	if status == domain.StatusPending && in.Operation != "" {
		status = NormalizeStatus(in.Operation) // "deposited", "declined"
	}
	raw := map[string]any{}
	_ = json.Unmarshal(body, &raw)
	currency := in.Currency
	if currency == "" {
		currency = "TND"
	}
	return &Event{
		OrderRef:          in.OrderNumber,
		ProviderReference: in.MdOrder,
		Status:            status,
		Amount:            FromMinorUnits(in.Amount, currency),
		Raw:               raw,
	}, nil
}

func (c *ClicToPay) credentials() url.Values {
	q := url.Values{}
	q.Set("userName", c.cfg.Username)
	q.Set("password", c.cfg.Password)
	return q
}

func (c *ClicToPay) get(ctx context.Context, path string, q url.Values, out any) error {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path + "?" + q.Encode()
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return notConfigured(ClicToPayName, "valid base URL")
	}
	req.Header.Set("Accept", "application/json")
	status, body, err := c.http.do(ctx, req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return NewError(ClicToPayName, domain.ErrGateway, CodeUnknown, "http "+strconv.Itoa(status), "unexpected status")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return c.http.malformed("response is not JSON")
	}
	return nil
}

// mapError turns acquirer error codes into the internal enum.
func (c *ClicToPay) mapError(code, message string) *Error {
	switch code {
	case "1":
		return NewError(ClicToPayName, domain.ErrGateway, CodeDuplicateOrder, code, message)
	case "3":
		return NewError(ClicToPayName, domain.ErrGateway, CodeInvalidRequest, code, message)
	case "4":
		return NewError(ClicToPayName, domain.ErrGateway, CodeInvalidAmount, code, message)
	case "5":
		return NewError(ClicToPayName, domain.ErrGateway, CodeInvalidCredentials, code, message)
	case "6":
		return NewError(ClicToPayName, domain.ErrGateway, CodeOrderNotFound, code, message)
	case "7":
		return NewError(ClicToPayName, domain.ErrTransientGateway, CodeUnavailable, code, message)
	default:
		return NewError(ClicToPayName, domain.ErrGateway, CodeUnknown, code, message)
	}
}

// clictopayOrderStatus maps the acquirer OrderStatus field.
func clictopayOrderStatus(s int) domain.Status {
	switch s {
	case 2:
		return domain.StatusCompleted // deposited
	case 3, 4, 6:
		return domain.StatusFailed // reversed, refunded, declined
	default:
		return domain.StatusPending // registered or pre-authorised
	}
}

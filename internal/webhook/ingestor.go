package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"payment_broker/internal/domain"
	"payment_broker/internal/gateway"
	"payment_broker/internal/metrics"
	"payment_broker/internal/payment"
)

// ErrUnknownProvider is returned for a provider with no webhook configuration.
var ErrUnknownProvider = errors.New("unknown webhook provider")

// StatusApplier is the part of the lifecycle manager webhooks drive.
type StatusApplier interface {
	ApplyStatus(ctx context.Context, c payment.Correlation, status domain.Status, raw map[string]any) (*domain.Transaction, error)
}

// Ingestor authenticates, decodes and applies provider notifications.
type Ingestor struct {
	gateways  *gateway.Registry
	verifiers map[string]Verifier
	applier   StatusApplier
	log       logrus.FieldLogger
}

// NewIngestor wires an ingestor. verifiers is keyed by provider name.
func NewIngestor(gateways *gateway.Registry, verifiers map[string]Verifier, applier StatusApplier) *Ingestor {
	normalized := make(map[string]Verifier, len(verifiers))
	for name, v := range verifiers {
		normalized[strings.ToLower(name)] = v
	}
	return &Ingestor{
		gateways:  gateways,
		verifiers: normalized,
		applier:   applier,
		log:       logrus.WithField("component", "webhook"),
	}
}

// Ingest processes one delivery. Nothing is read from or written to the
// store until the signature has been verified.
func (i *Ingestor) Ingest(ctx context.Context, provider string, h http.Header, body []byte) (*domain.Transaction, error) {
	provider = strings.ToLower(provider)
	verifier, ok := i.verifiers[provider]
	gw, found := i.gateways.Get(provider)
	if !ok || !found {
		metrics.WebhookRejections.WithLabelValues(provider, "unknown_provider").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	decoder, ok := gw.(gateway.WebhookDecoder)
	if !ok {
		metrics.WebhookRejections.WithLabelValues(provider, "unknown_provider").Inc()
		return nil, fmt.Errorf("%w: %s does not push notifications", ErrUnknownProvider, provider)
	}

	if err := verifier.Verify(h, body); err != nil {
		metrics.WebhookRejections.WithLabelValues(provider, "signature").Inc()
		i.log.WithField("provider", provider).Warn("Webhook signature rejected")
		return nil, err
	}

	event, err := decoder.DecodeWebhook(body)
	if err != nil {
		metrics.WebhookRejections.WithLabelValues(provider, "malformed").Inc()
		return nil, err
	}
	if event.ProviderReference == "" && event.OrderRef == "" {
		metrics.WebhookRejections.WithLabelValues(provider, "malformed").Inc()
		return nil, fmt.Errorf("%w: notification carries no reference", domain.ErrValidation)
	}

	i.log.WithFields(logrus.Fields{
		"provider":           provider,
		"order_id":           event.OrderRef,
		"provider_reference": event.ProviderReference,
		"status":             event.Status,
	}).Info("Webhook received")

	return i.applier.ApplyStatus(ctx, payment.Correlation{
		Provider:          gw.Name(),
		ProviderReference: event.ProviderReference,
		OrderID:           event.OrderRef,
	}, event.Status, event.Raw)
}

package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes

	"payment_broker/internal/domain"  // Error taxonomy
	"payment_broker/internal/wallet"  // Wallet errors
	"payment_broker/internal/webhook" // Webhook errors
)

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest // Caller input
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusUnauthorized // Bad signature
	case errors.Is(err, domain.ErrUnknownTransaction), errors.Is(err, webhook.ErrUnknownProvider):
		return http.StatusNotFound // Unknown reference
	case errors.Is(err, wallet.ErrUnverifiedSource), errors.Is(err, domain.ErrIdempotencyViolation):
		return http.StatusConflict // Provider disagrees with local state
	case errors.Is(err, domain.ErrTransientGateway):
		return http.StatusBadGateway // Provider unreachable, retry later
	default:
		return http.StatusInternalServerError // Gateway, configuration or internal failure
	}
}

// publicMessage hides provider and infrastructure details from callers
func publicMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConfiguration):
		return err.Error() // Operator or caller fixable, safe to show
	case errors.Is(err, domain.ErrUnknownTransaction):
		return "Transaction not found" // No reference echo
	default:
		return fallback // Generic failure
	}
}

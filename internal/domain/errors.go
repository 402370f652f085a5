package domain

import "errors"

// Error taxonomy shared by the gateway adapters, the lifecycle manager,
// the webhook ingestor and the wallet service. Callers match with errors.Is.
var (
	ErrValidation           = errors.New("validation error")        // Bad caller input, not retryable
	ErrConfiguration        = errors.New("configuration error")     // Missing credentials or endpoints
	ErrGateway              = errors.New("gateway error")           // Provider rejected the request
	ErrTransientGateway     = errors.New("transient gateway error") // Network, timeout or 5xx; retryable
	ErrAuthentication       = errors.New("authentication error")    // Webhook signature invalid
	ErrUnknownTransaction   = errors.New("unknown transaction")     // Reference not found
	ErrIdempotencyViolation = errors.New("idempotency violation")   // Source credited more than once
)

// IsRetryable reports whether the caller may retry the same request unchanged
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientGateway)
}

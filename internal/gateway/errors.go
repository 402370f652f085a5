package gateway

import (
	"errors"
	"fmt"

	"payment_broker/internal/domain"
)

// Code is the stable internal error enum provider codes are mapped onto.
type Code string

const (
	CodeInvalidAmount      Code = "invalid_amount"
	CodeInvalidRequest     Code = "invalid_request"
	CodeDuplicateOrder     Code = "duplicate_order"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeDeclined           Code = "declined"
	CodeOrderNotFound      Code = "order_not_found"
	CodeMalformedResponse  Code = "malformed_response"
	CodeUnavailable        Code = "unavailable"
	CodeNotConfigured      Code = "not_configured"
	CodeUnknown            Code = "unknown"
)

// Error is returned by every adapter. Kind is one of the domain sentinels
// (ErrValidation, ErrConfiguration, ErrGateway, ErrTransientGateway).
// Messages never carry credentials.
type Error struct {
	Provider     string // Gateway name
	Kind         error  // Domain sentinel
	Code         Code   // Normalised code
	ProviderCode string // Raw provider code
	Message      string // Provider message, redacted
	Err          error  // Underlying transport error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v: %s", e.Provider, e.Kind, e.Code)
	if e.ProviderCode != "" {
		msg += " (provider code " + e.ProviderCode + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewError builds an adapter error.
func NewError(provider string, kind error, code Code, providerCode, msg string) *Error {
	return &Error{Provider: provider, Kind: kind, Code: code, ProviderCode: providerCode, Message: msg}
}

// CodeOf extracts the internal code from an adapter error, CodeUnknown otherwise.
func CodeOf(err error) Code {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Code
	}
	return CodeUnknown
}

// notConfigured reports missing credentials or endpoints.
func notConfigured(provider string, missing string) *Error {
	return NewError(provider, domain.ErrConfiguration, CodeNotConfigured, "", missing+" is not configured")
}

// Package webhook authenticates provider notifications and feeds them to
// the lifecycle manager.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"payment_broker/internal/domain"
)

// Signature headers per provider
const (
	HeaderClicToPay = "X-Clictopay-Signature"
	HeaderKonnect   = "X-Konnect-Signature"
)

// Verifier checks hex(HMAC-SHA256(body, Secret)) carried in Header.
type Verifier struct {
	Header string
	Secret string
}

// Sign returns the signature a provider would send for body.
func (v Verifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify returns domain.ErrAuthentication unless the header carries a valid signature.
func (v Verifier) Verify(h http.Header, body []byte) error {
	if v.Secret == "" || v.Header == "" {
		return domain.ErrAuthentication
	}
	got := strings.TrimPrefix(strings.TrimSpace(h.Get(v.Header)), "sha256=")
	sig, err := hex.DecodeString(got)
	if err != nil || len(sig) != sha256.Size {
		return domain.ErrAuthentication
	}
	mac := hmac.New(sha256.New, []byte(v.Secret))
	mac.Write(body)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return domain.ErrAuthentication
	}
	return nil
}

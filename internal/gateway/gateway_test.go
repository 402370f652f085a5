package gateway

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment_broker/internal/domain"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]domain.Status{
		"success":   domain.StatusCompleted,
		"COMPLETED": domain.StatusCompleted,
		"paid":      domain.StatusCompleted,
		"failed":    domain.StatusFailed,
		"expired":   domain.StatusFailed,
		"cancelled": domain.StatusFailed,
		"pending":   domain.StatusPending,
		"":          domain.StatusPending,
		"weird":     domain.StatusPending,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeStatus(in), in)
	}
}

func TestMinorUnits(t *testing.T) {
	minor, err := ToMinorUnits(decimal.RequireFromString("50.000"), "TND")
	require.NoError(t, err)
	assert.Equal(t, int64(50000), minor)

	_, err = ToMinorUnits(decimal.RequireFromString("1.2345"), "TND")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = ToMinorUnits(decimal.NewFromInt(1), "XXX")
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.True(t, FromMinorUnits(50500, "TND").Equal(decimal.RequireFromString("50.5")))
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	r := NewRegistry(NewKonnect(KonnectConfig{}, nil), NewClicToPay(ClicToPayConfig{}, nil))

	g, ok := r.Get("KONNECT")
	require.True(t, ok)
	assert.Equal(t, KonnectName, g.Name())
	assert.Equal(t, []string{ClicToPayName, KonnectName}, r.Names())

	_, ok = r.Get("paypal")
	assert.False(t, ok)
}

func TestErrorMatchesKindAndCode(t *testing.T) {
	err := error(NewError("p", domain.ErrGateway, CodeDeclined, "05", "do not honour"))

	assert.True(t, errors.Is(err, domain.ErrGateway))
	assert.False(t, errors.Is(err, domain.ErrTransientGateway))
	assert.Equal(t, CodeDeclined, CodeOf(err))
	assert.Contains(t, err.Error(), "provider code 05")
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("other")))
}

package webhook

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment_broker/internal/domain"
	"payment_broker/internal/gateway"
	"payment_broker/internal/gateway/gatewaytest"
	"payment_broker/internal/payment"
	"payment_broker/internal/store"
	"payment_broker/internal/testutil"
)

const secret = "whsec-test"

type setup struct {
	ingestor *Ingestor
	manager  *payment.Manager
	store    *store.TransactionStore
	verifier Verifier
}

func newSetup(t *testing.T) *setup {
	s := store.NewTransactionStore(testutil.NewDB(t))
	card := gatewaytest.New("clictopay", domain.MethodCard)
	reg := gateway.NewRegistry(card, gatewaytest.New("konnect", domain.MethodWallet))
	m := payment.NewManager(s, reg, nil, payment.Config{GatewayTimeout: time.Second})
	v := Verifier{Header: HeaderClicToPay, Secret: secret}
	return &setup{
		ingestor: NewIngestor(reg, map[string]Verifier{"clictopay": v}, m),
		manager:  m,
		store:    s,
		verifier: v,
	}
}

func signed(v Verifier, body []byte) http.Header {
	h := http.Header{}
	h.Set(v.Header, v.Sign(body))
	return h
}

func TestVerifierAcceptsValidSignature(t *testing.T) {
	v := Verifier{Header: HeaderKonnect, Secret: secret}
	body := []byte(`{"a":1}`)

	assert.NoError(t, v.Verify(signed(v, body), body))

	h := http.Header{}
	h.Set(HeaderKonnect, "sha256="+v.Sign(body))
	assert.NoError(t, v.Verify(h, body))
}

func TestVerifierRejects(t *testing.T) {
	v := Verifier{Header: HeaderKonnect, Secret: secret}
	body := []byte(`{"a":1}`)
	other := Verifier{Header: HeaderKonnect, Secret: "other"}

	cases := map[string]http.Header{
		"missing":      {},
		"not hex":      {HeaderKonnect: []string{"zz"}},
		"short":        {HeaderKonnect: []string{"abcd"}},
		"wrong secret": signed(other, body),
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, v.Verify(h, body), domain.ErrAuthentication)
		})
	}

	assert.ErrorIs(t, v.Verify(signed(v, body), []byte(`{"a":2}`)), domain.ErrAuthentication)
	empty := Verifier{Header: HeaderKonnect}
	assert.ErrorIs(t, empty.Verify(signed(empty, body), body), domain.ErrAuthentication)
}

func TestWebhookCompletesAndReplayIsHarmless(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()
	res, err := s.manager.InitiatePayment(ctx, payment.InitiateInput{
		Amount: testutil.Amount(t, "50.000"), OrderID: "ORD1", Provider: "clictopay",
	})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, res.Transaction.Status)

	body := []byte(`{"orderId":"ORD1","status":"success"}`)
	for i := 0; i < 2; i++ {
		tx, err := s.ingestor.Ingest(ctx, "clictopay", signed(s.verifier, body), body)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, tx.Status)
		assert.Equal(t, res.Transaction.ID, tx.ID)
	}

	txs, total, err := s.store.Find(ctx, store.Filter{OrderID: "ORD1"}, "", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.StatusCompleted, txs[0].Status)
}

func TestBadSignatureNeverMutates(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()
	res, err := s.manager.InitiatePayment(ctx, payment.InitiateInput{
		Amount: testutil.Amount(t, "10"), OrderID: "ORD2", Provider: "clictopay",
	})
	require.NoError(t, err)

	payloads := []string{
		`{"orderId":"ORD2","status":"success"}`,
		`{"orderId":"ORD2","status":"failed"}`,
		`{"providerReference":"` + res.Transaction.Reference() + `","status":"success"}`,
		`not json`,
	}
	forged := Verifier{Header: HeaderClicToPay, Secret: "guess"}
	for _, p := range payloads {
		body := []byte(p)
		_, err := s.ingestor.Ingest(ctx, "clictopay", signed(forged, body), body)
		assert.ErrorIs(t, err, domain.ErrAuthentication)
		_, err = s.ingestor.Ingest(ctx, "clictopay", http.Header{}, body)
		assert.ErrorIs(t, err, domain.ErrAuthentication)
	}

	tx, err := s.store.FindByID(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, tx.Status)
	assert.Equal(t, res.Transaction.UpdatedAt, tx.UpdatedAt)
}

func TestIngestUnknownProviderAndTransaction(t *testing.T) {
	s := newSetup(t)
	ctx := context.Background()
	body := []byte(`{"orderId":"NOPE","status":"success"}`)

	_, err := s.ingestor.Ingest(ctx, "paypal", signed(s.verifier, body), body)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	// registered gateway without a webhook secret
	_, err = s.ingestor.Ingest(ctx, "konnect", signed(s.verifier, body), body)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = s.ingestor.Ingest(ctx, "clictopay", signed(s.verifier, body), body)
	assert.ErrorIs(t, err, domain.ErrUnknownTransaction)
}

func TestIngestMalformedBody(t *testing.T) {
	s := newSetup(t)
	for _, p := range []string{`not json`, `{"status":"success"}`} {
		body := []byte(p)
		_, err := s.ingestor.Ingest(context.Background(), "ClicToPay", signed(s.verifier, body), body)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

package wallet

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment_broker/internal/domain"
	"payment_broker/internal/gateway"
	"payment_broker/internal/gateway/gatewaytest"
	"payment_broker/internal/store"
	"payment_broker/internal/testutil"
)

type env struct {
	svc   *Service
	store *store.TransactionStore
	card  *gatewaytest.Fake
	redis *miniredis.Miniredis
}

func newEnv(t *testing.T) *env {
	s := store.NewTransactionStore(testutil.NewDB(t))
	card := gatewaytest.New("clictopay", domain.MethodCard)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	svc := NewService(s, gateway.NewRegistry(card, gatewaytest.New("konnect", domain.MethodWallet)), rdb, Config{
		Currency:       "TND",
		GatewayTimeout: time.Second,
	})
	return &env{svc: svc, store: s, card: card, redis: mr}
}

// payment inserts a card payment the fake provider reports with status.
func (e *env) payment(t *testing.T, order, amount string, local, remote domain.Status) *domain.Transaction {
	t.Helper()
	ref := "ref-" + order
	tx := &domain.Transaction{
		Kind:              domain.KindPayment,
		Method:            domain.MethodCard,
		Provider:          "clictopay",
		OrderID:           order,
		ProviderReference: &ref,
		Amount:            testutil.Amount(t, amount),
		Currency:          "TND",
		Status:            local,
	}
	_, err := e.store.Create(context.Background(), tx)
	require.NoError(t, err)
	e.card.SetStatus(ref, remote)
	return tx
}

func TestCreditCreatesOneCompletedCredit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src := e.payment(t, "ORD1", "50.000", domain.StatusCompleted, domain.StatusCompleted)

	credit, err := e.svc.CreditApplicationWallet(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindWalletCredit, credit.Kind)
	assert.Equal(t, domain.StatusCompleted, credit.Status)
	assert.Equal(t, src.ID, credit.Source())
	assert.Equal(t, src.ID, credit.Detail(domain.DetailSourceID))
	assert.Nil(t, credit.UserID)
	assert.True(t, credit.Amount.Equal(src.Amount))

	again, err := e.svc.CreditApplicationWallet(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, credit.ID, again.ID)
}

func TestConcurrentCreditsProduceExactlyOne(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src := e.payment(t, "ORD1", "50.000", domain.StatusCompleted, domain.StatusCompleted)

	const n = 12
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			credit, err := e.svc.CreditApplicationWallet(ctx, src.ID)
			errs[i] = err
			if credit != nil {
				ids[i] = credit.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	count, err := e.store.Count(ctx, store.Filter{Kind: domain.KindWalletCredit, SourceTransactionID: src.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestCreditRejectsIneligibleSources(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	pending := e.payment(t, "P1", "10", domain.StatusPending, domain.StatusCompleted)
	_, err := e.svc.CreditApplicationWallet(ctx, pending.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	ref := "wallet-ref"
	walletPay := &domain.Transaction{
		Kind: domain.KindPayment, Method: domain.MethodWallet, Provider: "konnect",
		ProviderReference: &ref, Amount: testutil.Amount(t, "10"), Currency: "TND", Status: domain.StatusCompleted,
	}
	_, err = e.store.Create(ctx, walletPay)
	require.NoError(t, err)
	_, err = e.svc.CreditApplicationWallet(ctx, walletPay.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.svc.CreditApplicationWallet(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUnknownTransaction)
}

func TestCreditRequiresProviderConfirmation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	forged := e.payment(t, "F1", "99", domain.StatusCompleted, domain.StatusPending)

	_, err := e.svc.CreditApplicationWallet(ctx, forged.ID)
	assert.ErrorIs(t, err, ErrUnverifiedSource)

	count, err := e.store.Count(ctx, store.Filter{Kind: domain.KindWalletCredit})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreditDetectsDuplicateCredits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	src := e.payment(t, "D1", "5", domain.StatusCompleted, domain.StatusCompleted)

	// the unique index makes real duplicates impossible; a store reporting two stands in
	fake := &countingStore{Store: e.store, count: 2}
	svc := NewService(fake, e.svc.gateways, nil, Config{})

	_, err := svc.CreditApplicationWallet(ctx, src.ID)
	assert.ErrorIs(t, err, domain.ErrIdempotencyViolation)
}

type countingStore struct {
	Store
	count int64
}

func (c *countingStore) Count(ctx context.Context, f store.Filter) (int64, error) {
	if f.SourceTransactionID != "" {
		return c.count, nil
	}
	return c.Store.Count(ctx, f)
}

func TestBalanceAndStatistics(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	empty, err := e.svc.Statistics(ctx, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
	assert.True(t, empty.Average.IsZero())

	for i, amount := range []string{"10.000", "20.500", "5.000"} {
		src := e.payment(t, "S"+string(rune('A'+i)), amount, domain.StatusCompleted, domain.StatusCompleted)
		_, err := e.svc.CreditApplicationWallet(ctx, src.ID)
		require.NoError(t, err)
	}

	bal, err := e.svc.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(testutil.Amount(t, "35.5")), bal.Balance.String())
	assert.EqualValues(t, 3, bal.Credits)
	assert.Equal(t, "TND", bal.Currency)

	stats, err := e.svc.Statistics(ctx, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Count)
	assert.True(t, stats.Total.Equal(bal.Balance))
	assert.True(t, stats.Average.Equal(testutil.Amount(t, "11.833")), stats.Average.String())
	assert.True(t, stats.Smallest.Equal(testutil.Amount(t, "5")))
	assert.True(t, stats.Largest.Equal(testutil.Amount(t, "20.5")))

	future := time.Now().Add(time.Hour).UnixMilli()
	none, err := e.svc.Statistics(ctx, future, 0)
	require.NoError(t, err)
	assert.Zero(t, none.Count)

	_, err = e.svc.Statistics(ctx, 10, 5)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestHistoryIsCachedAndInvalidatedByCredit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	first := e.payment(t, "H1", "10", domain.StatusCompleted, domain.StatusCompleted)
	_, err := e.svc.CreditApplicationWallet(ctx, first.ID)
	require.NoError(t, err)

	page, err := e.svc.History(ctx, HistoryQuery{Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.NotEmpty(t, e.redis.Keys())

	second := e.payment(t, "H2", "20", domain.StatusCompleted, domain.StatusCompleted)
	_, err = e.svc.CreditApplicationWallet(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, e.redis.Keys())

	page, err = e.svc.History(ctx, HistoryQuery{Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)

	paged, err := e.svc.History(ctx, HistoryQuery{Limit: 1, Skip: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, paged.Total)
	assert.Len(t, paged.Items, 1)
}

func TestSweepCreditsMissingOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	done := e.payment(t, "W1", "10", domain.StatusCompleted, domain.StatusCompleted)
	_, err := e.svc.CreditApplicationWallet(ctx, done.ID)
	require.NoError(t, err)
	e.payment(t, "W2", "20", domain.StatusCompleted, domain.StatusCompleted)
	e.payment(t, "W3", "30", domain.StatusCompleted, domain.StatusFailed)
	e.payment(t, "W4", "40", domain.StatusPending, domain.StatusPending)

	res, err := e.svc.Sweep(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Scanned)
	assert.Equal(t, 1, res.Credited)
	assert.Equal(t, 1, res.Failed)

	bal, err := e.svc.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(testutil.Amount(t, "30")))

	limited, err := e.svc.Sweep(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, limited.Scanned)
}

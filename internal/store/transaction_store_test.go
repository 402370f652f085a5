package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment_broker/internal/domain"
	"payment_broker/internal/testutil"
)

func newStore(t *testing.T) *TransactionStore {
	return NewTransactionStore(testutil.NewDB(t))
}

func pendingPayment(t *testing.T, order string) *domain.Transaction {
	return &domain.Transaction{
		Kind:     domain.KindPayment,
		Method:   domain.MethodCard,
		Provider: "clictopay",
		OrderID:  order,
		Amount:   testutil.Amount(t, "50.000"),
		Currency: "TND",
		Status:   domain.StatusPending,
	}
}

func TestCreateAndFind(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, pendingPayment(t, "ORD1"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.True(t, got.Amount.Equal(testutil.Amount(t, "50")))
	assert.NotNil(t, got.Details)
	assert.NotZero(t, got.CreatedAt)

	byOrder, err := s.FindOne(ctx, Filter{OrderID: "ORD1"})
	require.NoError(t, err)
	assert.Equal(t, id, byOrder.ID)

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindOne(ctx, Filter{OrderID: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateWithStatusPrecondition(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, pendingPayment(t, "ORD1"))
	require.NoError(t, err)

	applied, err := s.Update(ctx, id, Mutation{
		ExpectStatus: domain.StatusPending,
		Status:       domain.StatusCompleted,
		Details:      map[string]any{"verified": true},
	})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.Update(ctx, id, Mutation{
		ExpectStatus: domain.StatusPending,
		Status:       domain.StatusFailed,
	})
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, true, got.Details["verified"])

	_, err = s.Update(ctx, "missing", Mutation{Status: domain.StatusFailed})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentTransitionsHaveOneWinner(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, pendingPayment(t, "ORD1"))
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := domain.StatusCompleted
			if i%2 == 1 {
				target = domain.StatusFailed
			}
			applied, err := s.Update(ctx, id, Mutation{ExpectStatus: domain.StatusPending, Status: target})
			assert.NoError(t, err)
			if applied {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestProviderReferenceIsSetOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id, err := s.Create(ctx, pendingPayment(t, "ORD1"))
	require.NoError(t, err)

	applied, err := s.Update(ctx, id, Mutation{ProviderReference: "md-1", Details: map[string]any{domain.DetailPaymentURL: "https://pay"}})
	require.NoError(t, err)
	assert.True(t, applied)

	_, err = s.Update(ctx, id, Mutation{ProviderReference: "md-2"})
	assert.ErrorIs(t, err, ErrReferenceMismatch)

	got, err := s.FindOne(ctx, Filter{ProviderReference: "md-1"})
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "https://pay", got.Detail(domain.DetailPaymentURL))
}

func TestCreateIfAbsentHonoursSourceUniqueness(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	source := "src-1"

	credit := func() *domain.Transaction {
		return &domain.Transaction{
			Kind:                domain.KindWalletCredit,
			SourceTransactionID: &source,
			Amount:              testutil.Amount(t, "10"),
			Currency:            "TND",
			Status:              domain.StatusCompleted,
		}
	}

	created, err := s.CreateIfAbsent(ctx, credit())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateIfAbsent(ctx, credit())
	require.NoError(t, err)
	assert.False(t, created)

	n, err := s.Count(ctx, Filter{SourceTransactionID: source})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestFindPaginatesAndAggregates(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, amount := range []string{"10", "20.5", "5"} {
		tx := pendingPayment(t, "ORD")
		tx.Kind = domain.KindWalletCredit
		tx.Status = domain.StatusCompleted
		tx.Amount = testutil.Amount(t, amount)
		_, err := s.Create(ctx, tx)
		require.NoError(t, err)
	}
	_, err := s.Create(ctx, pendingPayment(t, "OTHER"))
	require.NoError(t, err)

	filter := Filter{Kind: domain.KindWalletCredit, Status: domain.StatusCompleted}
	page, total, err := s.Find(ctx, filter, "amount desc", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.True(t, page[0].Amount.Equal(testutil.Amount(t, "20.5")))

	page, _, err = s.Find(ctx, filter, "amount desc", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.True(t, page[0].Amount.Equal(testutil.Amount(t, "5")))

	agg, err := s.Aggregate(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(3), agg.Count)
	assert.True(t, agg.Total.Equal(testutil.Amount(t, "35.5")), agg.Total.String())
	assert.True(t, agg.Smallest.Equal(testutil.Amount(t, "5")))
	assert.True(t, agg.Largest.Equal(testutil.Amount(t, "20.5")))

	empty, err := s.Aggregate(ctx, Filter{Kind: domain.KindTransfer})
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
	assert.True(t, empty.Total.IsZero())
}

// Package wallet credits the application wallet from completed card payments
// and answers balance, history and statistics queries by re-aggregating
// the transaction store.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"payment_broker/internal/domain"
	"payment_broker/internal/gateway"
	"payment_broker/internal/metrics"
	"payment_broker/internal/store"
	"payment_broker/internal/utils"
)

// ErrUnverifiedSource is returned when the provider does not confirm the
// source payment as completed.
var ErrUnverifiedSource = errors.New("source payment not confirmed by provider")

const historyKeyPrefix = "wallet:history:"

// Store is the persistence the wallet service reads and writes.
type Store interface {
	FindByID(ctx context.Context, id string) (*domain.Transaction, error)
	FindOne(ctx context.Context, f store.Filter) (*domain.Transaction, error)
	Find(ctx context.Context, f store.Filter, sort string, limit, skip int) ([]domain.Transaction, int64, error)
	CreateIfAbsent(ctx context.Context, t *domain.Transaction) (bool, error)
	Aggregate(ctx context.Context, f store.Filter) (store.Aggregate, error)
	Count(ctx context.Context, f store.Filter) (int64, error)
}

// Config holds wallet settings.
type Config struct {
	Currency       string        // Ledger currency
	GatewayTimeout time.Duration // Bound on source re-verification
	HistoryTTL     time.Duration // History page cache lifetime
}

// Service is the wallet reconciliation service.
type Service struct {
	store    Store              // Transaction persistence
	gateways *gateway.Registry  // Providers used to re-verify sources
	rdb      *redis.Client      // History cache, optional
	cfg      Config             // Wallet settings
	log      logrus.FieldLogger // Component logger
}

// NewService wires the service. rdb may be nil, which disables history caching.
func NewService(s Store, gateways *gateway.Registry, rdb *redis.Client, cfg Config) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "TND"
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 20 * time.Second
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = time.Minute
	}
	return &Service{
		store:    s,
		gateways: gateways,
		rdb:      rdb,
		cfg:      cfg,
		log:      logrus.WithField("component", "wallet"),
	}
}

// CreditApplicationWallet records exactly one completed wallet credit for a
// completed card payment. Repeated and concurrent calls for the same source
// return the same credit.
func (s *Service) CreditApplicationWallet(ctx context.Context, sourceID string) (*domain.Transaction, error) {
	src, err := s.store.FindByID(ctx, sourceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownTransaction, sourceID)
	}
	if err != nil {
		return nil, err
	}
	if src.Kind != domain.KindPayment || src.Method != domain.MethodCard || src.Status != domain.StatusCompleted {
		return nil, fmt.Errorf("%w: transaction %s is not a completed card payment", domain.ErrValidation, src.ID)
	}
	log := s.log.WithFields(logrus.Fields{"source_transaction_id": src.ID, "amount": src.Amount.String()})

	if err := s.verifySource(ctx, src); err != nil {
		log.WithField("error", err.Error()).Warn("Wallet credit refused")
		return nil, err
	}

	if existing, err := s.existingCredit(ctx, src.ID); err != nil || existing != nil {
		return existing, err
	}

	sourceRef := src.ID
	credit := &domain.Transaction{
		Kind:                domain.KindWalletCredit,                       // Application wallet entry
		Method:              domain.MethodCard,                             // Funded by a card payment
		Provider:            src.Provider,                                  // Same acquirer as the source
		OrderID:             src.OrderID,                                   // Same order
		SourceTransactionID: &sourceRef,                                    // Unique, one credit per source
		Amount:              src.Amount,                                    // Full source amount
		Currency:            src.Currency,                                  // Ledger currency
		Status:              domain.StatusCompleted,                        // Credits are born completed
		Details:             map[string]any{domain.DetailSourceID: src.ID}, // Mirrored for reporting
	}
	created, err := s.store.CreateIfAbsent(ctx, credit)
	if err != nil {
		return nil, err
	}
	if !created {
		// another caller won the insert
		existing, err := s.existingCredit(ctx, src.ID)
		if err == nil && existing == nil {
			err = fmt.Errorf("credit for %s vanished after a duplicate insert", src.ID)
		}
		return existing, err
	}

	metrics.WalletCredits.Inc()
	if err := utils.DeleteCacheByPattern(ctx, s.rdb, historyKeyPrefix+"*"); err != nil {
		log.WithField("error", err.Error()).Warn("Failed to invalidate wallet history cache")
	}
	log.WithField("credit_id", credit.ID).Info("Application wallet credited")
	return credit, nil
}

// verifySource asks the provider to confirm the source payment once more.
func (s *Service) verifySource(ctx context.Context, src *domain.Transaction) error {
	gw, ok := s.gateways.Get(src.Provider)
	if !ok {
		return fmt.Errorf("%w: provider %q is not registered", domain.ErrConfiguration, src.Provider)
	}
	if src.Reference() == "" {
		return fmt.Errorf("%w: %s has no provider reference", ErrUnverifiedSource, src.ID)
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	v, err := gw.Verify(callCtx, src.Reference())
	if err != nil {
		return err
	}
	if v.Status != domain.StatusCompleted {
		return fmt.Errorf("%w: provider reports %s", ErrUnverifiedSource, v.Status)
	}
	return nil
}

// existingCredit returns the credit for sourceID, nil when there is none.
func (s *Service) existingCredit(ctx context.Context, sourceID string) (*domain.Transaction, error) {
	f := store.Filter{Kind: domain.KindWalletCredit, SourceTransactionID: sourceID}
	n, err := s.store.Count(ctx, f)
	if err != nil {
		return nil, err
	}
	switch {
	case n == 0:
		return nil, nil
	case n > 1:
		s.log.WithField("source_transaction_id", sourceID).Error("Source credited more than once")
		return nil, fmt.Errorf("%w: %d credits for %s", domain.ErrIdempotencyViolation, n, sourceID)
	}
	return s.store.FindOne(ctx, f)
}

func creditFilter(from, to int64) store.Filter {
	return store.Filter{Kind: domain.KindWalletCredit, Status: domain.StatusCompleted, From: from, To: to}
}

// Balance sums every completed wallet credit.
func (s *Service) Balance(ctx context.Context) (*domain.WalletBalance, error) {
	agg, err := s.store.Aggregate(ctx, creditFilter(0, 0))
	if err != nil {
		return nil, err
	}
	return &domain.WalletBalance{Balance: agg.Total, Credits: agg.Count, Currency: s.cfg.Currency}, nil
}

// HistoryQuery pages through wallet credits. From/To are unix millis.
type HistoryQuery struct {
	Limit int   // Page size, 1..100
	Skip  int   // Offset
	From  int64 // Period start (unix millis)
	To    int64 // Period end (unix millis)
}

// HistoryPage is one page of wallet credits.
type HistoryPage struct {
	Items []domain.Transaction `json:"items"` // Credits, newest first
	Total int64                `json:"total"` // Credits matching the query
	Limit int                  `json:"limit"` // Page size used
	Skip  int                  `json:"skip"`  // Offset used
}

// History lists wallet credits newest first. Pages are cached until the next credit.
func (s *Service) History(ctx context.Context, q HistoryQuery) (*HistoryPage, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	key := fmt.Sprintf("%slimit:%d:skip:%d:from:%d:to:%d", historyKeyPrefix, q.Limit, q.Skip, q.From, q.To)

	var page HistoryPage
	if found, err := utils.GetCache(ctx, s.rdb, key, &page); err == nil && found {
		return &page, nil
	} else if err != nil {
		s.log.WithField("error", err.Error()).Warn("Wallet history cache read failed")
	}

	items, total, err := s.store.Find(ctx, creditFilter(q.From, q.To), "created_at desc", q.Limit, q.Skip)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Transaction{}
	}
	page = HistoryPage{Items: items, Total: total, Limit: q.Limit, Skip: q.Skip}
	if err := utils.SetCache(ctx, s.rdb, key, page, s.cfg.HistoryTTL); err != nil {
		s.log.WithField("error", err.Error()).Warn("Wallet history cache write failed")
	}
	return &page, nil
}

// Statistics summarises wallet credits created between from and to (0 = open).
func (s *Service) Statistics(ctx context.Context, from, to int64) (*domain.WalletStatistics, error) {
	if from > 0 && to > 0 && from > to {
		return nil, fmt.Errorf("%w: from is after to", domain.ErrValidation)
	}
	agg, err := s.store.Aggregate(ctx, creditFilter(from, to))
	if err != nil {
		return nil, err
	}
	stats := &domain.WalletStatistics{
		Count:    agg.Count,
		Total:    agg.Total,
		Average:  decimal.Zero,
		Smallest: agg.Smallest,
		Largest:  agg.Largest,
		From:     from,
		To:       to,
		Currency: s.cfg.Currency,
	}
	if agg.Count > 0 {
		stats.Average = agg.Total.DivRound(decimal.NewFromInt(agg.Count), 3)
	}
	return stats, nil
}

// SweepResult reports what a sweep did.
type SweepResult struct {
	Scanned  int `json:"scanned"`  // Completed card payments examined
	Credited int `json:"credited"` // New wallet credits created
	Failed   int `json:"failed"`   // Payments that could not be credited
}

// Sweep credits completed card payments that have no wallet credit yet,
// scanning at most limit payments (0 scans all).
func (s *Service) Sweep(ctx context.Context, limit int) (*SweepResult, error) {
	const batch = 100
	res := &SweepResult{}
	f := store.Filter{Kind: domain.KindPayment, Method: domain.MethodCard, Status: domain.StatusCompleted}
	for skip := 0; ; skip += batch {
		size := batch
		if limit > 0 && limit-res.Scanned < size {
			size = limit - res.Scanned
		}
		if size <= 0 {
			break
		}
		payments, _, err := s.store.Find(ctx, f, "created_at asc", size, skip)
		if err != nil {
			return res, err
		}
		for _, p := range payments {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Scanned++
			n, err := s.store.Count(ctx, store.Filter{Kind: domain.KindWalletCredit, SourceTransactionID: p.ID})
			if err != nil {
				return res, err
			}
			if n > 0 {
				continue
			}
			if _, err := s.CreditApplicationWallet(ctx, p.ID); err != nil {
				res.Failed++
				s.log.WithFields(logrus.Fields{"source_transaction_id": p.ID, "error": err.Error()}).Warn("Sweep could not credit payment")
				continue
			}
			res.Credited++
		}
		if len(payments) < size {
			break
		}
	}
	s.log.WithFields(logrus.Fields{"scanned": res.Scanned, "credited": res.Credited, "failed": res.Failed}).Info("Wallet sweep finished")
	return res, nil
}

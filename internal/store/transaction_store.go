package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"payment_broker/internal/domain"
)

// ErrNotFound is returned when no transaction matches.
var ErrNotFound = errors.New("transaction not found")

// ErrReferenceMismatch is returned when a different provider reference is already set.
var ErrReferenceMismatch = errors.New("provider reference already set")

// Filter selects transactions. Zero values are ignored; From/To are unix millis, inclusive.
type Filter struct {
	Kind                domain.Kind   // Transaction kind
	Status              domain.Status // Lifecycle status
	Method              domain.Method // Payment method
	Provider            string        // Gateway name
	UserID              *uint         // Paying user
	OrderID             string        // Caller order id
	ProviderReference   string        // Provider-issued id
	SourceTransactionID string        // Payment a credit came from
	From                int64         // Created at or after
	To                  int64         // Created at or before
}

// Mutation describes a single atomic update. ExpectStatus, when set, is a
// precondition evaluated in the same UPDATE statement.
type Mutation struct {
	ExpectStatus      domain.Status  // Precondition, empty for none
	Status            domain.Status  // New status
	ProviderReference string         // Set once
	Details           map[string]any // Merged into existing details
}

// Aggregate is the result of re-aggregating amounts.
type Aggregate struct {
	Count    int64           // Matching rows
	Total    decimal.Decimal // Sum of amounts
	Smallest decimal.Decimal // Minimum amount
	Largest  decimal.Decimal // Maximum amount
}

// TransactionStore persists transactions through GORM. It holds no business rules.
type TransactionStore struct {
	db *gorm.DB // GORM handle
}

// NewTransactionStore wraps a GORM handle.
func NewTransactionStore(db *gorm.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Create inserts t and returns its generated id.
func (s *TransactionStore) Create(ctx context.Context, t *domain.Transaction) (string, error) {
	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}
	return t.ID, nil
}

// CreateIfAbsent inserts t unless a unique key (such as the wallet credit
// source id) already exists, in which case created is false.
func (s *TransactionStore) CreateIfAbsent(ctx context.Context, t *domain.Transaction) (bool, error) {
	err := s.db.WithContext(ctx).Create(t).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create transaction: %w", err)
	}
	return true, nil
}

// FindByID loads a transaction by its internal id.
func (s *TransactionStore) FindByID(ctx context.Context, id string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &t, nil
}

// FindOne returns the most recent transaction matching f.
func (s *TransactionStore) FindOne(ctx context.Context, f Filter) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.db.WithContext(ctx).Scopes(f.scope).Order("created_at desc").First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &t, nil
}

// Find lists transactions matching f with a total count for pagination.
// sort is "created_at desc" unless "created_at asc", "amount asc" or "amount desc" is given.
func (s *TransactionStore) Find(ctx context.Context, f Filter, sort string, limit, skip int) ([]domain.Transaction, int64, error) {
	q := s.db.WithContext(ctx).Model(&domain.Transaction{}).Scopes(f.scope)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	if limit <= 0 {
		limit = 20
	}
	if skip < 0 {
		skip = 0
	}
	var txs []domain.Transaction
	err := s.db.WithContext(ctx).Scopes(f.scope).
		Order(orderClause(sort)).
		Offset(skip).
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return txs, total, nil
}

// Update applies m atomically. applied is false when the status precondition
// did not hold, so two concurrent updates can never both move a transaction
// out of the expected status.
func (s *TransactionStore) Update(ctx context.Context, id string, m Mutation) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur domain.Transaction
		if err := tx.Where("id = ?", id).First(&cur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		updates := map[string]any{}
		q := tx.Model(&domain.Transaction{}).Where("id = ?", id)
		if m.ExpectStatus != "" {
			q = q.Where("status = ?", m.ExpectStatus) // Checked by the UPDATE itself
		}
		if m.Status != "" {
			updates["status"] = m.Status
		}
		if m.ProviderReference != "" {
			if ref := cur.Reference(); ref != "" && ref != m.ProviderReference {
				return ErrReferenceMismatch
			}
			updates["provider_reference"] = m.ProviderReference
			q = q.Where("(provider_reference IS NULL OR provider_reference = ?)", m.ProviderReference)
		}
		if len(m.Details) > 0 {
			merged := datatypes.JSONMap{}
			for k, v := range cur.Details {
				merged[k] = v
			}
			for k, v := range m.Details {
				merged[k] = v
			}
			updates["details"] = merged
		}
		if len(updates) == 0 {
			applied = m.ExpectStatus == "" || cur.Status == m.ExpectStatus
			return nil
		}

		res := q.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected == 1 // Zero when a concurrent writer got there first
		return nil
	})
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrReferenceMismatch) {
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("update transaction: %w", err)
	}
	return applied, nil
}

// Aggregate re-computes count, sum, min and max of amounts matching f.
func (s *TransactionStore) Aggregate(ctx context.Context, f Filter) (Aggregate, error) {
	var agg Aggregate
	var total, smallest, largest decimal.NullDecimal
	row := s.db.WithContext(ctx).Model(&domain.Transaction{}).Scopes(f.scope).
		Select("COUNT(*), SUM(amount), MIN(amount), MAX(amount)").
		Row()
	if err := row.Scan(&agg.Count, &total, &smallest, &largest); err != nil {
		return Aggregate{}, fmt.Errorf("aggregate transactions: %w", err)
	}
	agg.Total = total.Decimal
	agg.Smallest = smallest.Decimal
	agg.Largest = largest.Decimal
	return agg, nil
}

// Count returns how many transactions match f.
func (s *TransactionStore) Count(ctx context.Context, f Filter) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&domain.Transaction{}).Scopes(f.scope).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (f Filter) scope(db *gorm.DB) *gorm.DB {
	if f.Kind != "" {
		db = db.Where("kind = ?", f.Kind)
	}
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.Method != "" {
		db = db.Where("method = ?", f.Method)
	}
	if f.Provider != "" {
		db = db.Where("provider = ?", f.Provider)
	}
	if f.UserID != nil {
		db = db.Where("user_id = ?", *f.UserID)
	}
	if f.OrderID != "" {
		db = db.Where("order_id = ?", f.OrderID)
	}
	if f.ProviderReference != "" {
		db = db.Where("provider_reference = ?", f.ProviderReference)
	}
	if f.SourceTransactionID != "" {
		db = db.Where("source_transaction_id = ?", f.SourceTransactionID)
	}
	if f.From > 0 {
		db = db.Where("created_at >= ?", f.From)
	}
	if f.To > 0 {
		db = db.Where("created_at <= ?", f.To)
	}
	return db
}

func orderClause(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "created_at asc", "amount asc", "amount desc":
		return strings.ToLower(strings.TrimSpace(sort))
	default:
		return "created_at desc"
	}
}

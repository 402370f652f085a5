package domain

import (
	"github.com/google/uuid"        // Transaction identifiers
	"github.com/shopspring/decimal" // Exact money amounts
	"gorm.io/datatypes"             // JSON details column
	"gorm.io/gorm"                  // GORM hooks
)

// Kind classifies a money movement
type Kind string

const (
	KindTransfer     Kind = "transfer"      // Movement between users
	KindPayment      Kind = "payment"       // Payment collected through a gateway
	KindWalletCredit Kind = "wallet_credit" // Credit of the application wallet
)

// Method is the payment instrument reported by the gateway adapter
type Method string

const (
	MethodCard   Method = "card"   // Card-based gateway
	MethodWallet Method = "wallet" // Wallet-based gateway
)

// Status is the lifecycle state of a Transaction
type Status string

const (
	StatusPending   Status = "pending"   // Created, awaiting the provider outcome
	StatusCompleted Status = "completed" // Terminal success
	StatusFailed    Status = "failed"    // Terminal failure
)

// IsTerminal reports whether the status can no longer change
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s belongs to the status domain
func (s Status) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// CanTransition reports whether from -> to is an allowed state change.
// Only pending may move, and only to a terminal status.
func CanTransition(from, to Status) bool {
	return from == StatusPending && to.IsTerminal()
}

// Keys used inside Transaction.Details
const (
	DetailPaymentURL      = "paymentUrl"          // Hosted payment page
	DetailLastError       = "lastError"           // Last initiation/verification error
	DetailErrorCode       = "errorCode"           // Stable internal gateway error code
	DetailProviderPayload = "providerPayload"     // Raw webhook or verification payload
	DetailVerifiedAt      = "verifiedAt"          // Last provider verification (unix millis)
	DetailSourceID        = "sourceTransactionId" // Credited payment of a wallet credit
)

// Transaction Model
type Transaction struct {
	ID                  string            `gorm:"primaryKey;type:varchar(36)" json:"id"`                                          // UUID primary key
	UserID              *uint             `gorm:"index" json:"user_id"`                                                           // Owning user, nil for application-level
	Kind                Kind              `gorm:"type:varchar(20);not null;index" json:"kind"`                                    // transfer, payment, wallet_credit
	Method              Method            `gorm:"type:varchar(20)" json:"method,omitempty"`                                       // card or wallet
	Provider            string            `gorm:"type:varchar(32);uniqueIndex:idx_provider_reference" json:"provider,omitempty"`  // Gateway name
	OrderID             string            `gorm:"type:varchar(64);index" json:"order_id,omitempty"`                               // External order correlation id
	ProviderReference   *string           `gorm:"type:varchar(128);uniqueIndex:idx_provider_reference" json:"provider_reference"` // Set once by the gateway
	SourceTransactionID *string           `gorm:"type:varchar(36);uniqueIndex" json:"source_transaction_id,omitempty"`            // wallet_credit idempotency key
	Amount              decimal.Decimal   `gorm:"type:decimal(20,3);not null" json:"amount"`                                      // Positive amount
	Currency            string            `gorm:"type:varchar(3);not null" json:"currency"`                                       // ISO currency code
	Status              Status            `gorm:"type:varchar(16);not null;index" json:"status"`                                  // pending, completed, failed
	Details             datatypes.JSONMap `json:"details"`                                                                        // Provider-specific metadata
	CreatedAt           int64             `gorm:"autoCreateTime:milli;index" json:"created_at"`                                   // Creation time in milliseconds
	UpdatedAt           int64             `gorm:"autoUpdateTime:milli" json:"updated_at"`                                         // Last update in milliseconds
}

// BeforeCreate assigns the internal identifier
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString() // Internally generated id
	}
	if t.Details == nil {
		t.Details = datatypes.JSONMap{} // Never store NULL details
	}
	return nil
}

// Reference returns the provider reference or "" when unset
func (t *Transaction) Reference() string {
	if t.ProviderReference == nil {
		return ""
	}
	return *t.ProviderReference
}

// Source returns the source transaction id of a wallet credit or ""
func (t *Transaction) Source() string {
	if t.SourceTransactionID == nil {
		return ""
	}
	return *t.SourceTransactionID
}

// Detail returns a details value as a string
func (t *Transaction) Detail(key string) string {
	if v, ok := t.Details[key].(string); ok {
		return v
	}
	return ""
}

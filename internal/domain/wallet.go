package domain

import "github.com/shopspring/decimal" // Exact money amounts

// WalletBalance is the derived application wallet balance, never stored
type WalletBalance struct {
	Balance  decimal.Decimal `json:"balance"`  // Sum of completed wallet credits
	Credits  int64           `json:"credits"`  // Number of completed wallet credits
	Currency string          `json:"currency"` // Ledger currency
}

// WalletStatistics summarises wallet credits over a period
type WalletStatistics struct {
	Count    int64           `json:"count"`          // Number of credits
	Total    decimal.Decimal `json:"total"`          // Sum of credits
	Average  decimal.Decimal `json:"average"`        // Mean credit
	Smallest decimal.Decimal `json:"smallest"`       // Smallest credit
	Largest  decimal.Decimal `json:"largest"`        // Largest credit
	From     int64           `json:"from,omitempty"` // Period start (unix millis)
	To       int64           `json:"to,omitempty"`   // Period end (unix millis)
	Currency string          `json:"currency"`       // Ledger currency
}

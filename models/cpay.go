package models

import "time"

type Meta map[string]interface{}

// Transaction represents a wallet movement between two accounts
type Transaction struct {
	ID             string    `bson:"_id,omitempty" json:"id"`
	UserID         string    `bson:"userid,omitempty" json:"userid,omitempty"`
	ParentTxn      string    `bson:"parent_txn,omitempty" json:"parent_txn,omitempty"`
	Type           string    `bson:"type" json:"type"` // topup, transfer, refund
	Amount         float64   `bson:"amount" json:"amount"`
	FromAccount    string    `bson:"from_account,omitempty" json:"from_account,omitempty"`
	ToAccount      string    `bson:"to_account,omitempty" json:"to_account,omitempty"`
	Status         string    `bson:"state" json:"state"` // initiated, success, failed, reversed
	Currency       string    `bson:"currency" json:"currency"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
	IdempotencyKey string    `bson:"external_ref,omitempty" json:"external_ref,omitempty"`
	Meta           Meta      `bson:"meta,omitempty" json:"meta,omitempty"`
}

const (
	TxnInitiated = "initiated"
	TxnSuccess   = "success"
	TxnFailed    = "failed"
	TxnReversed  = "reversed"
)

// JournalEntry represents a ledger double-entry record
type JournalEntry struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	TxnID         string    `bson:"txn_id" json:"txn_id"`
	DebitAccount  string    `bson:"debit_account" json:"debit_account"`
	CreditAccount string    `bson:"credit_account" json:"credit_account"`
	Amount        float64   `bson:"amount" json:"amount"`
	Currency      string    `bson:"currency" json:"currency"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	Meta          Meta      `bson:"meta,omitempty" json:"meta,omitempty"`
}

// Account is a wallet. Owner accounts are keyed by user id, escrow accounts
// by "escrow:<jobid>".
type Account struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	UserID        string    `bson:"userid" json:"userid"`
	Currency      string    `bson:"currency" json:"currency"`
	Status        string    `bson:"status" json:"status"` // active, inactive
	CachedBalance float64   `bson:"cached_balance" json:"cached_balance"`
	Version       int       `bson:"version" json:"version"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// IdempotencyRecord stores the first response for a client Idempotency-Key.
// Done is false while the first request is still running.
type IdempotencyRecord struct {
	Key         string    `bson:"key" json:"key"`
	Method      string    `bson:"method" json:"method"`
	Path        string    `bson:"path" json:"path"`
	UserID      string    `bson:"userid" json:"userid"`
	RequestHash string    `bson:"request_hash" json:"request_hash"`
	Done        bool      `bson:"done" json:"done"`
	Status      int       `bson:"status,omitempty" json:"status,omitempty"`
	Body        []byte    `bson:"body,omitempty" json:"-"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt   time.Time `bson:"expires_at" json:"expires_at"`
}

// Package ledger moves money between wallet accounts. Job escrow lives in an
// account named after the job; see EscrowAccount.
package ledger

import (
	"context"
	"fmt"
	"math"

	"gigflow/apperr"
	"gigflow/models"
)

const (
	Currency    = "INR"
	ExternalAcc = "external:bank"
)

var (
	ErrInsufficientFunds = apperr.New(apperr.CodePrecondition, "insufficient funds")
	ErrTxnNotFound       = apperr.New(apperr.CodeNotFound, "transaction not found")
	ErrNotRefundable     = apperr.New(apperr.CodePrecondition, "transaction cannot be refunded")
	ErrBusy              = apperr.New(apperr.CodeTransient, "wallet busy, please retry")
)

type Ledger interface {
	Balance(ctx context.Context, owner string) (float64, error)
	TopUp(ctx context.Context, owner string, amount float64, ref string) (models.Transaction, error)
	// Transfer debits from and credits to. A ref that was already used
	// returns the original transaction without moving money again.
	Transfer(ctx context.Context, from, to string, amount float64, ref string) (models.Transaction, error)
	// Refund reverses a successful transfer.
	Refund(ctx context.Context, txnID, ref string) (models.Transaction, error)
	History(ctx context.Context, owner string, limit, skip int64) ([]models.Transaction, error)
	// Lookup finds the transaction recorded under ref.
	Lookup(ctx context.Context, ref string) (models.Transaction, bool, error)
}

func EscrowAccount(jobID string) string { return "escrow:" + jobID }

// StartRef keys the escrow debit of a start attempt. The roster only grows
// while a job is open, so its size tells attempts on different rosters apart.
func StartRef(jobID string, rosterSize int) string {
	return fmt.Sprintf("job-start:%s:%d", jobID, rosterSize)
}

func RefundRef(ref string) string { return "refund:" + ref }

func PayoutRef(jobID, userID string) string { return "job-payout:" + jobID + ":" + userID }

func validAmount(amount float64) error {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return apperr.New(apperr.CodeInvalid, "amount must be positive")
	}
	return nil
}

func validTransfer(from, to string, amount float64, ref string) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if from == "" || to == "" || from == to {
		return apperr.New(apperr.CodeInvalid, "invalid transfer accounts")
	}
	if ref == "" {
		return apperr.New(apperr.CodeInvalid, "transfer reference required")
	}
	return nil
}

// replay decides what a previously recorded transaction under the same ref
// means for the caller.
func replay(txn models.Transaction) (models.Transaction, error) {
	switch txn.Status {
	case models.TxnSuccess, models.TxnReversed:
		return txn, nil
	default:
		return txn, apperr.New(apperr.CodePartial,
			fmt.Sprintf("transaction %s is %s and needs reconciliation", txn.ID, txn.Status))
	}
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gigflow/apperr"
	"gigflow/db"
	"gigflow/models"
	"gigflow/rdx"
	"gigflow/utils"
)

const lockTTL = 5 * time.Second

// Wallet is the Mongo-backed ledger. Balances are cached on the account
// document and every movement leaves a transaction and a journal row. Writes
// on an account are serialised by a Redis lock.
type Wallet struct {
	accounts *mongo.Collection
	txns     *mongo.Collection
	journal  *mongo.Collection
	locks    *rdx.Locker
}

func NewWallet(accounts, txns, journal *mongo.Collection, locks *rdx.Locker) *Wallet {
	return &Wallet{accounts: accounts, txns: txns, journal: journal, locks: locks}
}

func lockKey(accID string) string { return "wallet_lock:" + accID }

func (w *Wallet) lock(ctx context.Context, accIDs ...string) (func(), error) {
	keys := make([]string, len(accIDs))
	for i, id := range accIDs {
		keys[i] = lockKey(id)
	}
	release, err := w.locks.Acquire(ctx, keys...)
	if errors.Is(err, rdx.ErrLocked) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, "wallet lock", err)
	}
	return release, nil
}

func (w *Wallet) getOrCreateAccount(ctx context.Context, owner string) (models.Account, error) {
	var acc models.Account
	err := w.accounts.FindOne(ctx, bson.M{"userid": owner}).Decode(&acc)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return acc, err
	}

	now := time.Now()
	acc = models.Account{
		ID:        utils.GetUUID(),
		UserID:    owner,
		Currency:  Currency,
		Status:    "active",
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := w.accounts.InsertOne(ctx, acc); err != nil {
		// concurrent create
		if db.IsDuplicateKey(err) {
			err = w.accounts.FindOne(ctx, bson.M{"userid": owner}).Decode(&acc)
		}
		return acc, err
	}
	return acc, nil
}

func (w *Wallet) byRef(ctx context.Context, ref string) (models.Transaction, bool, error) {
	var txn models.Transaction
	err := w.txns.FindOne(ctx, bson.M{"external_ref": ref}).Decode(&txn)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return txn, false, nil
	}
	return txn, err == nil, err
}

func (w *Wallet) Lookup(ctx context.Context, ref string) (models.Transaction, bool, error) {
	txn, found, err := w.byRef(ctx, ref)
	if err != nil {
		return txn, false, apperr.Wrap(apperr.CodeTransient, "look up transaction", err)
	}
	return txn, found, nil
}

func (w *Wallet) Balance(ctx context.Context, owner string) (float64, error) {
	var acc models.Account
	err := w.accounts.FindOne(ctx, bson.M{"userid": owner}).Decode(&acc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeTransient, "read balance", err)
	}
	return acc.CachedBalance, nil
}

func (w *Wallet) setStatus(ctx context.Context, txnID, status string) {
	if _, err := w.txns.UpdateOne(ctx, bson.M{"_id": txnID}, bson.M{"$set": bson.M{"state": status, "updated_at": time.Now()}}); err != nil {
		log.Error().Err(err).Str("txn", txnID).Str("state", status).Msg("transaction status update failed")
	}
}

func (w *Wallet) adjust(ctx context.Context, accID string, delta float64) error {
	_, err := w.accounts.UpdateOne(ctx, bson.M{"_id": accID}, bson.M{
		"$inc": bson.M{"cached_balance": delta, "version": 1},
		"$set": bson.M{"updated_at": time.Now()},
	})
	return err
}

// move records txn, writes its journal row and applies both balance changes.
// A failure after the debit cannot be rolled back on a standalone Mongo; the
// transaction is marked failed for reconciliation against the journal.
func (w *Wallet) move(ctx context.Context, txn models.Transaction, fromAcc, toAcc string, debit bool) (models.Transaction, error) {
	if _, err := w.txns.InsertOne(ctx, txn); err != nil {
		if db.IsDuplicateKey(err) {
			if prior, ok, ferr := w.byRef(ctx, txn.IdempotencyKey); ferr == nil && ok {
				return replay(prior)
			}
		}
		return txn, apperr.Wrap(apperr.CodeTransient, "record transaction", err)
	}

	j := models.JournalEntry{
		ID:            utils.GetUUID(),
		TxnID:         txn.ID,
		DebitAccount:  fromAcc,
		CreditAccount: toAcc,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		CreatedAt:     time.Now(),
		Meta:          txn.Meta,
	}
	if _, err := w.journal.InsertOne(ctx, j); err != nil {
		w.setStatus(ctx, txn.ID, models.TxnFailed)
		return txn, apperr.Wrap(apperr.CodeInternal, "journal write", err)
	}
	if debit {
		if err := w.adjust(ctx, fromAcc, -txn.Amount); err != nil {
			w.setStatus(ctx, txn.ID, models.TxnFailed)
			return txn, apperr.Wrap(apperr.CodeInternal, "debit", err)
		}
	}
	if err := w.adjust(ctx, toAcc, txn.Amount); err != nil {
		w.setStatus(ctx, txn.ID, models.TxnFailed)
		return txn, apperr.Wrap(apperr.CodePartial, "credit after debit", err)
	}

	txn.Status = models.TxnSuccess
	txn.UpdatedAt = time.Now()
	w.setStatus(ctx, txn.ID, models.TxnSuccess)
	return txn, nil
}

func (w *Wallet) TopUp(ctx context.Context, owner string, amount float64, ref string) (models.Transaction, error) {
	if err := validAmount(amount); err != nil {
		return models.Transaction{}, err
	}
	if ref != "" {
		if prior, ok, err := w.byRef(ctx, ref); err != nil {
			return prior, apperr.Wrap(apperr.CodeTransient, "lookup reference", err)
		} else if ok {
			return replay(prior)
		}
	}

	acc, err := w.getOrCreateAccount(ctx, owner)
	if err != nil {
		return models.Transaction{}, apperr.Wrap(apperr.CodeTransient, "account", err)
	}
	release, err := w.lock(ctx, acc.ID)
	if err != nil {
		return models.Transaction{}, err
	}
	defer release()

	now := time.Now()
	txn := models.Transaction{
		ID:             utils.GetUUID(),
		UserID:         owner,
		Type:           "topup",
		Amount:         amount,
		FromAccount:    ExternalAcc,
		ToAccount:      acc.ID,
		Status:         models.TxnInitiated,
		Currency:       Currency,
		CreatedAt:      now,
		UpdatedAt:      now,
		IdempotencyKey: ref,
		Meta:           models.Meta{"note": "topup"},
	}
	return w.move(ctx, txn, ExternalAcc, acc.ID, false)
}

func (w *Wallet) Transfer(ctx context.Context, from, to string, amount float64, ref string) (models.Transaction, error) {
	if err := validTransfer(from, to, amount, ref); err != nil {
		return models.Transaction{}, err
	}
	if prior, ok, err := w.byRef(ctx, ref); err != nil {
		return prior, apperr.Wrap(apperr.CodeTransient, "lookup reference", err)
	} else if ok {
		return replay(prior)
	}

	fromAcc, err := w.getOrCreateAccount(ctx, from)
	if err != nil {
		return models.Transaction{}, apperr.Wrap(apperr.CodeTransient, "sender account", err)
	}
	toAcc, err := w.getOrCreateAccount(ctx, to)
	if err != nil {
		return models.Transaction{}, apperr.Wrap(apperr.CodeTransient, "recipient account", err)
	}

	release, err := w.lock(ctx, fromAcc.ID, toAcc.ID)
	if err != nil {
		return models.Transaction{}, err
	}
	defer release()

	// Re-read under the lock; the cached balance may have moved.
	if err := w.accounts.FindOne(ctx, bson.M{"_id": fromAcc.ID}).Decode(&fromAcc); err != nil {
		return models.Transaction{}, apperr.Wrap(apperr.CodeTransient, "read balance", err)
	}
	if fromAcc.CachedBalance < amount {
		return models.Transaction{}, ErrInsufficientFunds
	}

	now := time.Now()
	txn := models.Transaction{
		ID:             utils.GetUUID(),
		UserID:         from,
		Type:           "transfer",
		Amount:         amount,
		FromAccount:    fromAcc.ID,
		ToAccount:      toAcc.ID,
		Status:         models.TxnInitiated,
		Currency:       Currency,
		CreatedAt:      now,
		UpdatedAt:      now,
		IdempotencyKey: ref,
		Meta:           models.Meta{"from": from, "to": to},
	}
	return w.move(ctx, txn, fromAcc.ID, toAcc.ID, true)
}

func (w *Wallet) Refund(ctx context.Context, txnID, ref string) (models.Transaction, error) {
	if ref == "" {
		return models.Transaction{}, apperr.New(apperr.CodeInvalid, "refund reference required")
	}
	if prior, ok, err := w.byRef(ctx, ref); err != nil {
		return prior, apperr.Wrap(apperr.CodeTransient, "lookup reference", err)
	} else if ok {
		return replay(prior)
	}

	var orig models.Transaction
	if err := w.txns.FindOne(ctx, bson.M{"_id": txnID}).Decode(&orig); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return orig, ErrTxnNotFound
		}
		return orig, apperr.Wrap(apperr.CodeTransient, "read transaction", err)
	}
	if orig.Status != models.TxnSuccess || orig.Type != "transfer" {
		return orig, ErrNotRefundable
	}

	// money flows back from the original recipient to the original payer
	fromAcc, toAcc := orig.ToAccount, orig.FromAccount
	release, err := w.lock(ctx, fromAcc, toAcc)
	if err != nil {
		return models.Transaction{}, err
	}
	defer release()

	var payer models.Account
	if err := w.accounts.FindOne(ctx, bson.M{"_id": fromAcc}).Decode(&payer); err != nil {
		return models.Transaction{}, apperr.Wrap(apperr.CodeTransient, "read balance", err)
	}
	if payer.CachedBalance < orig.Amount {
		return models.Transaction{}, ErrInsufficientFunds
	}

	now := time.Now()
	txn := models.Transaction{
		ID:             utils.GetUUID(),
		UserID:         orig.UserID,
		ParentTxn:      orig.ID,
		Type:           "refund",
		Amount:         orig.Amount,
		FromAccount:    fromAcc,
		ToAccount:      toAcc,
		Status:         models.TxnInitiated,
		Currency:       orig.Currency,
		CreatedAt:      now,
		UpdatedAt:      now,
		IdempotencyKey: ref,
		Meta:           models.Meta{"original_txn": orig.ID},
	}
	txn, err = w.move(ctx, txn, fromAcc, toAcc, true)
	if err != nil {
		return txn, err
	}
	w.setStatus(ctx, orig.ID, models.TxnReversed)
	return txn, nil
}

func (w *Wallet) History(ctx context.Context, owner string, limit, skip int64) ([]models.Transaction, error) {
	var acc models.Account
	if err := w.accounts.FindOne(ctx, bson.M{"userid": owner}).Decode(&acc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []models.Transaction{}, nil
		}
		return nil, apperr.Wrap(apperr.CodeTransient, "read account", err)
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit).SetSkip(skip)
	filter := bson.M{"$or": []bson.M{{"from_account": acc.ID}, {"to_account": acc.ID}}}
	txns, err := utils.FindAndDecode[models.Transaction](ctx, w.txns, filter, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, fmt.Sprintf("history for %s", owner), err)
	}
	return txns, nil
}

package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gigflow/models"
)

// Memory is an in-process Ledger with the same rules as Wallet. Accounts are
// keyed directly by owner.
type Memory struct {
	mu       sync.Mutex
	seq      int
	balances map[string]float64
	txns     []models.Transaction
	byRef    map[string]int
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[string]float64), byRef: make(map[string]int)}
}

func (m *Memory) record(txn models.Transaction) models.Transaction {
	m.seq++
	now := time.Now()
	txn.ID = fmt.Sprintf("txn-%d", m.seq)
	txn.Currency = Currency
	txn.Status = models.TxnSuccess
	txn.CreatedAt = now
	txn.UpdatedAt = now
	m.txns = append(m.txns, txn)
	if txn.IdempotencyKey != "" {
		m.byRef[txn.IdempotencyKey] = len(m.txns) - 1
	}
	return txn
}

func (m *Memory) Lookup(_ context.Context, ref string) (models.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byRef[ref]
	if !ok || ref == "" {
		return models.Transaction{}, false, nil
	}
	return m.txns[i], true, nil
}

func (m *Memory) Balance(_ context.Context, owner string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[owner], nil
}

func (m *Memory) TopUp(_ context.Context, owner string, amount float64, ref string) (models.Transaction, error) {
	if err := validAmount(amount); err != nil {
		return models.Transaction{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byRef[ref]; ok && ref != "" {
		return replay(m.txns[i])
	}
	m.balances[owner] += amount
	return m.record(models.Transaction{
		UserID: owner, Type: "topup", Amount: amount,
		FromAccount: ExternalAcc, ToAccount: owner, IdempotencyKey: ref,
	}), nil
}

func (m *Memory) Transfer(_ context.Context, from, to string, amount float64, ref string) (models.Transaction, error) {
	if err := validTransfer(from, to, amount, ref); err != nil {
		return models.Transaction{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byRef[ref]; ok {
		return replay(m.txns[i])
	}
	if m.balances[from] < amount {
		return models.Transaction{}, ErrInsufficientFunds
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return m.record(models.Transaction{
		UserID: from, Type: "transfer", Amount: amount,
		FromAccount: from, ToAccount: to, IdempotencyKey: ref,
	}), nil
}

func (m *Memory) Refund(_ context.Context, txnID, ref string) (models.Transaction, error) {
	if ref == "" {
		return models.Transaction{}, ErrNotRefundable
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byRef[ref]; ok {
		return replay(m.txns[i])
	}
	idx := -1
	for i, t := range m.txns {
		if t.ID == txnID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Transaction{}, ErrTxnNotFound
	}
	orig := m.txns[idx]
	if orig.Status != models.TxnSuccess || orig.Type != "transfer" {
		return orig, ErrNotRefundable
	}
	if m.balances[orig.ToAccount] < orig.Amount {
		return models.Transaction{}, ErrInsufficientFunds
	}
	m.balances[orig.ToAccount] -= orig.Amount
	m.balances[orig.FromAccount] += orig.Amount
	m.txns[idx].Status = models.TxnReversed
	return m.record(models.Transaction{
		UserID: orig.UserID, ParentTxn: orig.ID, Type: "refund", Amount: orig.Amount,
		FromAccount: orig.ToAccount, ToAccount: orig.FromAccount, IdempotencyKey: ref,
		Meta: models.Meta{"original_txn": orig.ID},
	}), nil
}

func (m *Memory) History(_ context.Context, owner string, limit, skip int64) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Transaction{}
	for _, t := range m.txns {
		if t.FromAccount == owner || t.ToAccount == owner {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	if skip >= int64(len(out)) {
		return []models.Transaction{}, nil
	}
	out = out[skip:]
	if limit > 0 && limit < int64(len(out)) {
		out = out[:limit]
	}
	return out, nil
}

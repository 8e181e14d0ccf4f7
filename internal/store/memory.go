package store

import (
	"context"
	"sync"

	"tonrush/internal/models"
)

// Memory is the in-process Store. It backs tests and single-node runs
// without a database, with the same version semantics as Postgres.
type Memory struct {
	mu          sync.RWMutex
	accounts    map[string]AccountRecord
	withdrawals map[string]WithdrawalRecord
	gifts       map[string]GiftRecord
	rounds      []models.ArchivedRound
	processed   map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		accounts:    make(map[string]AccountRecord),
		withdrawals: make(map[string]WithdrawalRecord),
		gifts:       make(map[string]GiftRecord),
		processed:   make(map[string]bool),
	}
}

func (m *Memory) LoadAccounts(ctx context.Context) ([]AccountRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]AccountRecord, 0, len(m.accounts))
	for _, rec := range m.accounts {
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) GetAccount(ctx context.Context, id string) (AccountRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.accounts[id]
	if !ok {
		return AccountRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) SaveAccount(ctx context.Context, acc models.Account, version int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.accounts[acc.ID]
	if exists && cur.Version != version {
		return 0, ErrVersionConflict
	}
	if !exists && version != 0 {
		return 0, ErrVersionConflict
	}

	next := version + 1
	m.accounts[acc.ID] = AccountRecord{Account: acc, Version: next}
	return next, nil
}

func (m *Memory) LoadWithdrawals(ctx context.Context) ([]WithdrawalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]WithdrawalRecord, 0, len(m.withdrawals))
	for _, rec := range m.withdrawals {
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) SaveWithdrawal(ctx context.Context, req models.WithdrawalRequest, version int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.withdrawals[req.ID]
	if exists && cur.Version != version {
		return 0, ErrVersionConflict
	}
	if !exists && version != 0 {
		return 0, ErrVersionConflict
	}

	next := version + 1
	m.withdrawals[req.ID] = WithdrawalRecord{Request: req, Version: next}
	return next, nil
}

func (m *Memory) LoadGiftRequests(ctx context.Context) ([]GiftRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]GiftRecord, 0, len(m.gifts))
	for _, rec := range m.gifts {
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) SaveGiftRequest(ctx context.Context, req models.GiftDepositRequest, version int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.gifts[req.ID]
	if exists && cur.Version != version {
		return 0, ErrVersionConflict
	}
	if !exists && version != 0 {
		return 0, ErrVersionConflict
	}

	next := version + 1
	m.gifts[req.ID] = GiftRecord{Request: req, Version: next}
	return next, nil
}

func (m *Memory) ArchiveRound(ctx context.Context, round models.ArchivedRound) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rounds = append(m.rounds, round)
	return nil
}

func (m *Memory) RecentRounds(ctx context.Context, limit int) ([]models.ArchivedRound, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.rounds) {
		limit = len(m.rounds)
	}

	// Newest first.
	out := make([]models.ArchivedRound, 0, limit)
	for i := len(m.rounds) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.rounds[i])
	}
	return out, nil
}

func (m *Memory) LoadProcessedTransfers(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.processed))
	for key := range m.processed {
		out = append(out, key)
	}
	return out, nil
}

func (m *Memory) MarkTransferProcessed(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processed[key] = true
	return nil
}

func (m *Memory) Close() error { return nil }

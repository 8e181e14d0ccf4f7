// Package ledger owns account balances. No other component mutates a
// balance directly; every change is a ledger call so the invariants
// (never negative, every debit recorded with its cause) are checked in
// one place.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"tonrush/internal/models"
	"tonrush/internal/store"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeAmount      = errors.New("amount must not be negative")
	ErrAccountNotFound     = errors.New("account not found")
)

const (
	persistQueue    = 256
	persistAttempts = 3
	persistBackoff  = 100 * time.Millisecond
	persistTimeout  = 5 * time.Second
)

// Ledger keeps accounts authoritative in memory and writes them
// behind to the store. A slow or failing store delays persistence but
// never blocks a bet or a tick.
type Ledger struct {
	mu       sync.Mutex
	store    store.Store
	accounts map[string]*models.Account
	versions map[string]int64

	persistCh chan models.Account
	done      chan struct{}

	now func() time.Time
}

func New(st store.Store) *Ledger {
	l := &Ledger{
		store:     st,
		accounts:  make(map[string]*models.Account),
		versions:  make(map[string]int64),
		persistCh: make(chan models.Account, persistQueue),
		done:      make(chan struct{}),
		now:       time.Now,
	}
	go l.persister()
	return l
}

// Load pulls all accounts from the store. Call once at boot, before
// the engine starts ticking.
func (l *Ledger) Load(ctx context.Context) error {
	recs, err := l.store.LoadAccounts(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range recs {
		acc := rec.Account
		l.accounts[acc.ID] = &acc
		l.versions[acc.ID] = rec.Version
	}
	return nil
}

// Close stops the persister after draining queued writes.
func (l *Ledger) Close() {
	close(l.persistCh)
	<-l.done
}

// GetOrCreate returns the account, creating it on first contact.
func (l *Ledger) GetOrCreate(id, name string) models.Account {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		acc = &models.Account{
			ID:        id,
			Name:      name,
			CreatedAt: l.now(),
		}
		l.accounts[id] = acc
		l.enqueue(acc)
	} else if name != "" && acc.Name != name {
		acc.Name = name
		l.enqueue(acc)
	}
	return cloneAccount(acc)
}

// Account returns a copy; callers never see live ledger state.
func (l *Ledger) Account(id string) (models.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		return models.Account{}, ErrAccountNotFound
	}
	return cloneAccount(acc), nil
}

func (l *Ledger) Balance(id string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return acc.Balance, nil
}

// Debit reduces the balance and records the cause. Fails without any
// effect if the balance does not cover the amount.
func (l *Ledger) Debit(id string, amount float64, txType, ref string) (float64, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	amount = models.Round2(amount)

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		return 0, ErrAccountNotFound
	}
	if acc.Balance < amount {
		return acc.Balance, ErrInsufficientBalance
	}

	acc.Balance = models.Round2(acc.Balance - amount)
	l.appendTransaction(acc, models.Transaction{
		Type:         txType,
		Amount:       amount,
		BalanceAfter: acc.Balance,
		Ref:          ref,
		CreatedAt:    l.now(),
	})
	l.enqueue(acc)
	return acc.Balance, nil
}

// Credit increases the balance and records the cause.
func (l *Ledger) Credit(id string, amount float64, txType, ref string) (float64, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	amount = models.Round2(amount)

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		return 0, ErrAccountNotFound
	}

	acc.Balance = models.Round2(acc.Balance + amount)
	l.appendTransaction(acc, models.Transaction{
		Type:         txType,
		Amount:       amount,
		BalanceAfter: acc.Balance,
		Ref:          ref,
		CreatedAt:    l.now(),
	})
	l.enqueue(acc)
	return acc.Balance, nil
}

// SetBalance replaces the balance unconditionally. Administrative only;
// still goes through the ledger so the change is logged like any other.
func (l *Ledger) SetBalance(id string, amount float64) (float64, error) {
	if amount < 0 {
		return 0, ErrNegativeAmount
	}
	amount = models.Round2(amount)

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		return 0, ErrAccountNotFound
	}

	acc.Balance = amount
	l.appendTransaction(acc, models.Transaction{
		Type:         "admin_set",
		Amount:       amount,
		BalanceAfter: acc.Balance,
		CreatedAt:    l.now(),
	})
	l.enqueue(acc)
	return acc.Balance, nil
}

// RecordTransaction appends to the bounded transaction log.
func (l *Ledger) RecordTransaction(id string, tx models.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	l.appendTransaction(acc, tx)
	l.enqueue(acc)
	return nil
}

// RecordBetHistory appends to the bounded bet history log.
func (l *Ledger) RecordBetHistory(id string, rec models.BetRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	l.appendBetRecord(acc, rec)
	l.enqueue(acc)
	return nil
}

// AddWager bumps the lifetime wagered total when a bet is accepted.
func (l *Ledger) AddWager(id string, amount float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	acc.Stats.TotalWagered = models.Round2(acc.Stats.TotalWagered + amount)
	l.enqueue(acc)
	return nil
}

// ApplyRoundResult records one settled bet: history entry plus the
// games/wins/losses/biggest-win counters. The engine calls this
// exactly once per account per round, at settlement.
func (l *Ledger) ApplyRoundResult(id string, rec models.BetRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, ok := l.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}

	acc.Stats.GamesPlayed++
	if rec.Result == "win" {
		acc.Stats.Wins++
		if rec.Profit > acc.Stats.BiggestWin {
			acc.Stats.BiggestWin = rec.Profit
		}
	} else {
		acc.Stats.Losses++
	}
	l.appendBetRecord(acc, rec)
	l.enqueue(acc)
	return nil
}

// Aggregate returns the admin dashboard totals.
func (l *Ledger) Aggregate() (users int, totalBalance, totalWagered float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, acc := range l.accounts {
		users++
		totalBalance += acc.Balance
		totalWagered += acc.Stats.TotalWagered
	}
	return users, models.Round2(totalBalance), models.Round2(totalWagered)
}

func (l *Ledger) appendTransaction(acc *models.Account, tx models.Transaction) {
	acc.Transactions = append([]models.Transaction{tx}, acc.Transactions...)
	if len(acc.Transactions) > models.TransactionLogLimit {
		acc.Transactions = acc.Transactions[:models.TransactionLogLimit]
	}
}

func (l *Ledger) appendBetRecord(acc *models.Account, rec models.BetRecord) {
	acc.BetHistory = append([]models.BetRecord{rec}, acc.BetHistory...)
	if len(acc.BetHistory) > models.BetHistoryLimit {
		acc.BetHistory = acc.BetHistory[:models.BetHistoryLimit]
	}
}

// enqueue snapshots the account for the persister. Caller holds the
// ledger lock. A full queue drops the write; the next mutation (or the
// next sweep of the same account) re-enqueues the full state, since
// snapshots are whole-aggregate, not deltas.
func (l *Ledger) enqueue(acc *models.Account) {
	select {
	case l.persistCh <- cloneAccount(acc):
	default:
		log.WithField("account", acc.ID).Warn("ledger: persist queue full, dropping snapshot")
	}
}

// persister writes snapshots behind the ledger with bounded retry.
// The in-memory state is authoritative: on a version conflict it
// refreshes the stored version and reapplies, logging loudly since a
// conflict means a second writer is misconfigured against the store.
func (l *Ledger) persister() {
	defer close(l.done)

	for acc := range l.persistCh {
		l.mu.Lock()
		version := l.versions[acc.ID]
		l.mu.Unlock()

		for attempt := 1; attempt <= persistAttempts; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			next, err := l.store.SaveAccount(ctx, acc, version)
			cancel()

			if err == nil {
				l.mu.Lock()
				l.versions[acc.ID] = next
				l.mu.Unlock()
				break
			}

			if errors.Is(err, store.ErrVersionConflict) {
				log.WithField("account", acc.ID).Warn("ledger: store version moved under us, refreshing")
				refreshCtx, refreshCancel := context.WithTimeout(context.Background(), persistTimeout)
				rec, getErr := l.store.GetAccount(refreshCtx, acc.ID)
				refreshCancel()
				if getErr == nil {
					version = rec.Version
				} else if errors.Is(getErr, store.ErrNotFound) {
					version = 0
				}
				continue
			}

			log.WithError(err).WithFields(log.Fields{
				"account": acc.ID,
				"attempt": attempt,
			}).Error("ledger: account persist failed")
			time.Sleep(persistBackoff * time.Duration(attempt))
		}
	}
}

func cloneAccount(acc *models.Account) models.Account {
	out := *acc
	out.Transactions = append([]models.Transaction(nil), acc.Transactions...)
	out.BetHistory = append([]models.BetRecord(nil), acc.BetHistory...)
	return out
}

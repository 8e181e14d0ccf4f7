// Package withdrawal implements the escrow-and-approve payout flow.
// The stake is debited the moment a request is created; approval is a
// bookkeeping step (the actual transfer happens off-process) and only
// a rejection ever puts the money back, exactly once.
package withdrawal

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"tonrush/internal/ledger"
	"tonrush/internal/models"
	"tonrush/internal/store"
)

var (
	ErrBelowMinimum     = errors.New("amount below withdrawal minimum")
	ErrNotFound         = errors.New("withdrawal request not found")
	ErrAlreadyProcessed = errors.New("withdrawal request already processed")
	ErrInvalidAddress   = errors.New("invalid destination address")
)

const persistTimeout = 5 * time.Second

type Desk struct {
	mu       sync.Mutex
	ledger   *ledger.Ledger
	store    store.Store
	requests map[string]*models.WithdrawalRequest
	versions map[string]int64

	min float64
	now func() time.Time
}

func NewDesk(l *ledger.Ledger, st store.Store, minWithdraw float64) *Desk {
	return &Desk{
		ledger:   l,
		store:    st,
		requests: make(map[string]*models.WithdrawalRequest),
		versions: make(map[string]int64),
		min:      minWithdraw,
		now:      time.Now,
	}
}

// Load pulls outstanding requests from the store at boot.
func (d *Desk) Load(ctx context.Context) error {
	recs, err := d.store.LoadWithdrawals(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rec := range recs {
		req := rec.Request
		d.requests[req.ID] = &req
		d.versions[req.ID] = rec.Version
	}
	return nil
}

// Request escrows the amount and files a pending request. The debit
// happens first; if it fails nothing is recorded.
func (d *Desk) Request(accountID string, amount float64, address string) (models.WithdrawalRequest, error) {
	if amount < d.min {
		return models.WithdrawalRequest{}, ErrBelowMinimum
	}
	if !validAddress(address) {
		return models.WithdrawalRequest{}, ErrInvalidAddress
	}
	amount = models.Round2(amount)

	id := uuid.New().String()

	d.mu.Lock()
	if _, err := d.ledger.Debit(accountID, amount, "withdraw", id); err != nil {
		d.mu.Unlock()
		return models.WithdrawalRequest{}, err
	}

	req := &models.WithdrawalRequest{
		ID:        id,
		AccountID: accountID,
		Amount:    amount,
		Address:   address,
		Status:    models.WithdrawalPending,
		CreatedAt: d.now(),
	}
	d.requests[id] = req
	out := *req
	d.mu.Unlock()

	d.persist(out)
	return out, nil
}

// Process settles a pending request. Rejection restores the escrowed
// amount; approval only flips the status. A request that has already
// left Pending is never touched again, which makes a double refund
// structurally impossible.
func (d *Desk) Process(id string, approve bool) (models.WithdrawalRequest, error) {
	d.mu.Lock()
	req, ok := d.requests[id]
	if !ok {
		d.mu.Unlock()
		return models.WithdrawalRequest{}, ErrNotFound
	}
	if req.Status != models.WithdrawalPending {
		d.mu.Unlock()
		return models.WithdrawalRequest{}, ErrAlreadyProcessed
	}

	if approve {
		req.Status = models.WithdrawalApproved
	} else {
		req.Status = models.WithdrawalRejected
		if _, err := d.ledger.Credit(req.AccountID, req.Amount, "withdraw_refund", req.ID); err != nil {
			log.WithError(err).WithField("request", req.ID).Error("withdrawal: refund credit failed")
		}
	}
	req.ProcessedAt = d.now()
	out := *req
	d.mu.Unlock()

	d.persist(out)
	return out, nil
}

// Pending lists unprocessed requests, oldest first.
func (d *Desk) Pending() []models.WithdrawalRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []models.WithdrawalRequest
	for _, req := range d.requests {
		if req.Status == models.WithdrawalPending {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ForAccount lists an account's requests, newest first.
func (d *Desk) ForAccount(accountID string) []models.WithdrawalRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []models.WithdrawalRequest
	for _, req := range d.requests {
		if req.AccountID == accountID {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// persist writes the request outside the desk lock. In-memory state is
// authoritative; a failed write is logged and the next status change
// rewrites the whole record.
func (d *Desk) persist(req models.WithdrawalRequest) {
	d.mu.Lock()
	version := d.versions[req.ID]
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	next, err := d.store.SaveWithdrawal(ctx, req, version)
	if err != nil {
		log.WithError(err).WithField("request", req.ID).Error("withdrawal: persist failed")
		return
	}

	d.mu.Lock()
	d.versions[req.ID] = next
	d.mu.Unlock()
}

// validAddress accepts user-friendly TON addresses: 48 characters of
// base64url with the standard bounceable or non-bounceable prefix.
func validAddress(addr string) bool {
	if len(addr) != 48 {
		return false
	}
	if !strings.HasPrefix(addr, "EQ") && !strings.HasPrefix(addr, "UQ") {
		return false
	}
	for _, c := range addr {
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

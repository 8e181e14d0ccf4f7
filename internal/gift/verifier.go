// Package gift credits accounts for NFT gifts sent to the collection
// wallet. A player files a deposit request, puts its ID in the
// transfer memo, and sends the gift; the verifier matches the memo
// against pending requests and credits the priced amount at most once
// per on-chain transfer.
package gift

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"tonrush/internal/ledger"
	"tonrush/internal/models"
	"tonrush/internal/store"
	"tonrush/pkg/crypto"
)

var ErrNoPendingRequest = errors.New("no pending gift deposit request")

const (
	memoPrefix     = "GD_"
	feedLimit      = 50
	persistTimeout = 5 * time.Second
)

// PriceTable maps a transfer to its credit value: exact item first,
// then collection, then the configured default.
type PriceTable struct {
	Items       map[string]float64
	Collections map[string]float64
	Default     float64
}

func (p PriceTable) Price(itemID, collection string) float64 {
	if v, ok := p.Items[itemID]; ok {
		return v
	}
	if v, ok := p.Collections[collection]; ok {
		return v
	}
	return p.Default
}

type Verifier struct {
	mu        sync.Mutex
	ledger    *ledger.Ledger
	store     store.Store
	feed      Feed
	wallet    string
	prices    PriceTable
	requests  map[string]*models.GiftDepositRequest
	versions  map[string]int64
	processed map[string]bool

	now func() time.Time
}

func NewVerifier(l *ledger.Ledger, st store.Store, feed Feed, wallet string, prices PriceTable) *Verifier {
	return &Verifier{
		ledger:    l,
		store:     st,
		feed:      feed,
		wallet:    wallet,
		prices:    prices,
		requests:  make(map[string]*models.GiftDepositRequest),
		versions:  make(map[string]int64),
		processed: make(map[string]bool),
		now:       time.Now,
	}
}

// Load pulls requests and the processed-transfer set at boot. The set
// must be loaded before any verify runs or a replayed transfer could
// credit twice.
func (v *Verifier) Load(ctx context.Context) error {
	recs, err := v.store.LoadGiftRequests(ctx)
	if err != nil {
		return err
	}
	keys, err := v.store.LoadProcessedTransfers(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, rec := range recs {
		req := rec.Request
		v.requests[req.ID] = &req
		v.versions[req.ID] = rec.Version
	}
	for _, key := range keys {
		v.processed[key] = true
	}
	return nil
}

// CreateRequest files a pending deposit request and returns the memo
// the player must put on the transfer. An account with a request
// already pending gets that one back instead of a second memo.
func (v *Verifier) CreateRequest(accountID string) (models.GiftDepositRequest, error) {
	v.mu.Lock()
	for _, req := range v.requests {
		if req.AccountID == accountID && req.Status == models.GiftDepositPending {
			out := *req
			v.mu.Unlock()
			return out, nil
		}
	}
	v.mu.Unlock()

	token, err := crypto.SecureToken(4)
	if err != nil {
		return models.GiftDepositRequest{}, err
	}

	req := &models.GiftDepositRequest{
		ID:        memoPrefix + token,
		AccountID: accountID,
		Status:    models.GiftDepositPending,
		CreatedAt: v.now(),
	}

	v.mu.Lock()
	v.requests[req.ID] = req
	out := *req
	v.mu.Unlock()

	v.persist(out)
	return out, nil
}

// Verify checks the feed for a transfer carrying the account's pending
// memo. On a match it credits the priced amount, confirms the request
// and records the transfer key, all before releasing the lock; the
// feed fetch itself happens with the lock released and the pending
// state is rechecked afterwards. Returns the request and whether a
// credit happened on this call.
func (v *Verifier) Verify(ctx context.Context, accountID string) (models.GiftDepositRequest, bool, error) {
	v.mu.Lock()
	req := v.pendingForLocked(accountID)
	if req == nil {
		v.mu.Unlock()
		return models.GiftDepositRequest{}, false, ErrNoPendingRequest
	}
	memo := req.ID
	v.mu.Unlock()

	transfers, err := v.feed.Recent(ctx, v.wallet, feedLimit)
	if err != nil {
		return models.GiftDepositRequest{}, false, err
	}

	v.mu.Lock()
	req = v.pendingForLocked(accountID)
	if req == nil || req.ID != memo {
		// Confirmed by a concurrent verify while we were fetching.
		v.mu.Unlock()
		return models.GiftDepositRequest{}, false, ErrNoPendingRequest
	}

	var match *Transfer
	for i := range transfers {
		t := transfers[i]
		if t.Memo == memo && !v.processed[t.Key()] {
			match = &t
			break
		}
	}
	if match == nil {
		out := *req
		v.mu.Unlock()
		return out, false, nil
	}

	amount := models.Round2(v.prices.Price(match.ItemID, match.Collection))
	if _, err := v.ledger.Credit(accountID, amount, "gift_deposit", req.ID); err != nil {
		v.mu.Unlock()
		return models.GiftDepositRequest{}, false, err
	}

	req.Status = models.GiftDepositConfirmed
	req.Credited = amount
	req.ConfirmedAt = v.now()
	v.processed[match.Key()] = true
	out := *req
	key := match.Key()
	v.mu.Unlock()

	v.persist(out)
	v.markProcessed(key)

	log.WithFields(log.Fields{
		"account": accountID,
		"request": out.ID,
		"amount":  amount,
	}).Info("gift: deposit confirmed")
	return out, true, nil
}

// Sweep runs Verify for every account with a pending request, so a
// player who sent the gift but never pressed the verify button still
// gets credited. Called from the scheduler.
func (v *Verifier) Sweep(ctx context.Context) {
	v.mu.Lock()
	var accounts []string
	seen := make(map[string]bool)
	for _, req := range v.requests {
		if req.Status == models.GiftDepositPending && !seen[req.AccountID] {
			seen[req.AccountID] = true
			accounts = append(accounts, req.AccountID)
		}
	}
	v.mu.Unlock()

	for _, accountID := range accounts {
		if _, _, err := v.Verify(ctx, accountID); err != nil && !errors.Is(err, ErrNoPendingRequest) {
			log.WithError(err).WithField("account", accountID).Warn("gift: sweep verify failed")
		}
	}
}

// Expire retires pending requests older than maxAge. A memo that old
// has scrolled off the feed window anyway; the player just files a new
// request. The expired status is written through to the store so a
// restart does not resurrect the request as pending.
func (v *Verifier) Expire(maxAge time.Duration) int {
	cutoff := v.now().Add(-maxAge)

	v.mu.Lock()
	var expired []models.GiftDepositRequest
	for _, req := range v.requests {
		if req.Status == models.GiftDepositPending && req.CreatedAt.Before(cutoff) {
			req.Status = models.GiftDepositExpired
			expired = append(expired, *req)
		}
	}
	v.mu.Unlock()

	for _, req := range expired {
		v.persist(req)
	}
	if len(expired) > 0 {
		log.WithField("count", len(expired)).Info("gift: expired stale deposit requests")
	}
	return len(expired)
}

// Request returns an account's most recent request, pending or not.
func (v *Verifier) Request(accountID string) (models.GiftDepositRequest, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var latest *models.GiftDepositRequest
	for _, req := range v.requests {
		if req.AccountID != accountID {
			continue
		}
		if latest == nil || req.CreatedAt.After(latest.CreatedAt) {
			latest = req
		}
	}
	if latest == nil {
		return models.GiftDepositRequest{}, false
	}
	return *latest, true
}

func (v *Verifier) pendingForLocked(accountID string) *models.GiftDepositRequest {
	for _, req := range v.requests {
		if req.AccountID == accountID && req.Status == models.GiftDepositPending {
			return req
		}
	}
	return nil
}

func (v *Verifier) persist(req models.GiftDepositRequest) {
	v.mu.Lock()
	version := v.versions[req.ID]
	v.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	next, err := v.store.SaveGiftRequest(ctx, req, version)
	if err != nil {
		log.WithError(err).WithField("request", req.ID).Error("gift: persist failed")
		return
	}

	v.mu.Lock()
	v.versions[req.ID] = next
	v.mu.Unlock()
}

func (v *Verifier) markProcessed(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := v.store.MarkTransferProcessed(ctx, key); err != nil {
		log.WithError(err).WithField("key", key).Error("gift: processed-transfer persist failed")
	}
}

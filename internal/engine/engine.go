// Package engine runs the crash round loop: a betting window, a rising
// multiplier, a crash, a short cooldown, then the next round. One
// goroutine drives the loop; every externally visible operation takes
// the same mutex, so phase checks and balance moves are atomic with
// respect to ticks.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"tonrush/internal/game"
	"tonrush/internal/ledger"
	"tonrush/internal/models"
	"tonrush/internal/store"
)

var (
	ErrBettingClosed    = errors.New("betting phase is over")
	ErrDuplicateBet     = errors.New("bet already placed this round")
	ErrInvalidBetAmount = errors.New("bet amount out of range")
	ErrGameNotRunning   = errors.New("round is not running")
	ErrNoActiveBet      = errors.New("no active bet to cash out")
	ErrRoundNotRunning  = errors.New("no running round")
)

const historyLimit = 20

// Notifier receives round events. Calls are made outside the engine
// lock and must not block; the websocket hub satisfies this with
// buffered per-client queues.
type Notifier interface {
	GameState(s models.RoundSnapshot)
	Tick(s models.RoundSnapshot)
	BetPlaced(roundID string, bet models.Bet)
	CashedOut(roundID string, bet models.Bet)
	Crashed(roundID string, crashPoint float64)
}

// NopNotifier is used when no hub is attached, mainly in tests.
type NopNotifier struct{}

func (NopNotifier) GameState(models.RoundSnapshot) {}
func (NopNotifier) Tick(models.RoundSnapshot)      {}
func (NopNotifier) BetPlaced(string, models.Bet)   {}
func (NopNotifier) CashedOut(string, models.Bet)   {}
func (NopNotifier) Crashed(string, float64)        {}

type Config struct {
	HouseEdge     float64
	MinBet        float64
	MaxBet        float64
	MaxMultiplier float64
	BettingTime   time.Duration
	CrashDelay    time.Duration
	TickRate      time.Duration
}

type Engine struct {
	cfg      Config
	ledger   *ledger.Ledger
	store    store.Store
	notifier Notifier

	mu       sync.Mutex
	round    *models.Round
	betIndex map[string]*models.Bet
	history  []models.ArchivedRound
	rounds   int64

	// Injected for deterministic tests.
	now  func() time.Time
	draw func() (float64, error)
}

func New(cfg Config, l *ledger.Ledger, st store.Store, n Notifier) *Engine {
	if n == nil {
		n = NopNotifier{}
	}
	e := &Engine{
		cfg:      cfg,
		ledger:   l,
		store:    st,
		notifier: n,
		betIndex: make(map[string]*models.Bet),
		now:      time.Now,
	}
	e.draw = func() (float64, error) {
		return game.Draw(cfg.HouseEdge, cfg.MaxMultiplier)
	}
	return e
}

// Start opens the first betting round. Call once, before Run.
func (e *Engine) Start() {
	e.mu.Lock()
	e.startRoundLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notifier.GameState(snap)
}

// Run drives the loop until the context is cancelled. A panic in a
// tick is logged and the loop keeps going; losing one tick is cheaper
// than losing the game.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.safeTick()
		}
	}
}

func (e *Engine) safeTick() {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("engine: tick panicked")
		}
	}()
	e.tick()
}

// tick advances the state machine by one step. All transitions happen
// here; PlaceBet and CashOut only act within the current phase.
func (e *Engine) tick() {
	e.mu.Lock()
	now := e.now()
	round := e.round
	if round == nil {
		e.mu.Unlock()
		return
	}

	switch round.Phase {
	case models.PhaseBetting:
		if now.Before(round.BettingEndsAt) {
			e.mu.Unlock()
			return
		}
		round.Phase = models.PhaseRunning
		round.StartedAt = now
		round.Multiplier = 1.0
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.notifier.GameState(snap)

	case models.PhaseRunning:
		elapsed := now.Sub(round.StartedAt).Seconds()
		m := game.NextMultiplier(round.Multiplier, elapsed)
		if m < round.Multiplier {
			m = round.Multiplier
		}
		if m > round.CrashPoint {
			m = round.CrashPoint
		}
		round.Multiplier = m

		cashouts := e.sweepAutoCashoutsLocked(round)

		roundID, crashPoint := round.ID, round.CrashPoint
		if m >= crashPoint {
			e.crashLocked(now)
			snap := e.snapshotLocked()
			e.mu.Unlock()
			for _, b := range cashouts {
				e.notifier.CashedOut(roundID, b)
			}
			e.notifier.Crashed(roundID, crashPoint)
			e.notifier.GameState(snap)
			return
		}

		snap := e.snapshotLocked()
		e.mu.Unlock()
		for _, b := range cashouts {
			e.notifier.CashedOut(roundID, b)
		}
		e.notifier.Tick(snap)

	case models.PhaseCrashed:
		if now.Before(round.EndedAt.Add(e.cfg.CrashDelay)) {
			e.mu.Unlock()
			return
		}
		e.startRoundLocked()
		snap := e.snapshotLocked()
		e.mu.Unlock()
		e.notifier.GameState(snap)

	default:
		e.mu.Unlock()
	}
}

// sweepAutoCashoutsLocked resolves every armed auto-cashout whose
// threshold the multiplier has reached. The bet pays at its threshold,
// not at the tick value that crossed it, so a coarse tick never
// changes the payout. Runs before the crash check: a threshold equal
// to the crash point still wins.
func (e *Engine) sweepAutoCashoutsLocked(round *models.Round) []models.Bet {
	var resolved []models.Bet
	for _, bet := range round.Bets {
		if bet.CashedOut || bet.AutoCashout == nil || *bet.AutoCashout > round.Multiplier {
			continue
		}
		at := *bet.AutoCashout
		e.resolveWinLocked(round, bet, at)
		resolved = append(resolved, *bet)
	}
	return resolved
}

// resolveWinLocked credits a winning bet at the given multiplier and
// marks it resolved. Caller holds the engine lock.
func (e *Engine) resolveWinLocked(round *models.Round, bet *models.Bet, at float64) {
	payout := models.Round2(bet.Amount * at)
	profit := models.Round2(bet.Amount * (at - 1))

	bet.CashedOut = true
	bet.Multiplier = &at
	bet.Profit = &profit

	if _, err := e.ledger.Credit(bet.AccountID, payout, "cashout", round.ID); err != nil {
		log.WithError(err).WithField("account", bet.AccountID).Error("engine: cashout credit failed")
	}
}

// crashLocked ends the running round: every unresolved bet loses, all
// results land in the ledger, and the round is archived. Caller holds
// the engine lock.
func (e *Engine) crashLocked(now time.Time) {
	round := e.round
	round.Phase = models.PhaseCrashed
	round.Multiplier = round.CrashPoint
	round.EndedAt = now

	for _, bet := range round.Bets {
		if !bet.CashedOut {
			loss := -bet.Amount
			bet.Profit = &loss
		}
		rec := models.BetRecord{
			RoundID:   round.ID,
			Amount:    bet.Amount,
			Profit:    *bet.Profit,
			CreatedAt: now,
		}
		if bet.CashedOut {
			rec.Result = "win"
			rec.Multiplier = *bet.Multiplier
		} else {
			rec.Result = "loss"
			rec.Multiplier = round.CrashPoint
		}
		if err := e.ledger.ApplyRoundResult(bet.AccountID, rec); err != nil {
			log.WithError(err).WithField("account", bet.AccountID).Error("engine: result record failed")
		}
	}

	archived := models.ArchivedRound{
		ID:         round.ID,
		Hash:       round.Hash,
		CrashPoint: round.CrashPoint,
		StartedAt:  round.StartedAt,
		EndedAt:    round.EndedAt,
		Bets:       copyBets(round.Bets),
	}

	e.history = append([]models.ArchivedRound{archived}, e.history...)
	if len(e.history) > historyLimit {
		e.history = e.history[:historyLimit]
	}

	// Archival is best effort and never under the lock.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.store.ArchiveRound(ctx, archived); err != nil {
			log.WithError(err).WithField("round", archived.ID).Error("engine: round archive failed")
		}
	}()
}

// startRoundLocked draws the next crash point and opens betting.
// Caller holds the engine lock.
func (e *Engine) startRoundLocked() {
	crashPoint, err := e.draw()
	if err != nil {
		// Entropy failure. The house-safe floor keeps the game alive.
		log.WithError(err).Error("engine: crash draw failed, using floor")
		crashPoint = 1.0
	}

	id := uuid.New().String()
	e.rounds++
	e.round = &models.Round{
		ID:            id,
		Hash:          game.RoundHash(id, crashPoint),
		Phase:         models.PhaseBetting,
		CrashPoint:    crashPoint,
		Multiplier:    1.0,
		BettingEndsAt: e.now().Add(e.cfg.BettingTime),
	}
	e.betIndex = make(map[string]*models.Bet)
}

// PlaceBet debits the stake and joins the current round. One bet per
// account per round; the debit happens only after every check passes,
// so a rejected bet never moves money.
func (e *Engine) PlaceBet(accountID, name string, amount float64, autoCashout *float64) (models.Bet, error) {
	if amount < e.cfg.MinBet || amount > e.cfg.MaxBet {
		return models.Bet{}, ErrInvalidBetAmount
	}
	if autoCashout != nil && *autoCashout <= 1.0 {
		return models.Bet{}, ErrInvalidBetAmount
	}

	e.mu.Lock()
	round := e.round
	if round == nil || round.Phase != models.PhaseBetting || !e.now().Before(round.BettingEndsAt) {
		e.mu.Unlock()
		return models.Bet{}, ErrBettingClosed
	}
	if _, exists := e.betIndex[accountID]; exists {
		e.mu.Unlock()
		return models.Bet{}, ErrDuplicateBet
	}

	if _, err := e.ledger.Debit(accountID, amount, "bet", round.ID); err != nil {
		e.mu.Unlock()
		return models.Bet{}, err
	}

	bet := &models.Bet{
		AccountID:   accountID,
		Name:        name,
		Amount:      amount,
		AutoCashout: autoCashout,
	}
	round.Bets = append(round.Bets, bet)
	e.betIndex[accountID] = bet

	if err := e.ledger.AddWager(accountID, amount); err != nil {
		log.WithError(err).WithField("account", accountID).Error("engine: wager stat failed")
	}

	placed := *bet
	roundID := round.ID
	e.mu.Unlock()

	e.notifier.BetPlaced(roundID, placed)
	return placed, nil
}

// CashOut resolves the caller's bet at the current multiplier.
func (e *Engine) CashOut(accountID string) (models.Bet, error) {
	e.mu.Lock()
	round := e.round
	if round == nil || round.Phase != models.PhaseRunning {
		e.mu.Unlock()
		return models.Bet{}, ErrGameNotRunning
	}

	bet, ok := e.betIndex[accountID]
	if !ok || bet.CashedOut {
		e.mu.Unlock()
		return models.Bet{}, ErrNoActiveBet
	}

	e.resolveWinLocked(round, bet, round.Multiplier)
	resolved := *bet
	roundID := round.ID
	e.mu.Unlock()

	e.notifier.CashedOut(roundID, resolved)
	return resolved, nil
}

// ForceCrash ends the running round at the given multiplier, as if the
// draw had been that value. A non-positive value crashes at the
// current multiplier. Administrative only.
func (e *Engine) ForceCrash(at float64) error {
	e.mu.Lock()
	round := e.round
	if round == nil || round.Phase != models.PhaseRunning {
		e.mu.Unlock()
		return ErrRoundNotRunning
	}

	if at < round.Multiplier {
		at = round.Multiplier
	}
	round.CrashPoint = at
	round.Multiplier = at
	cashouts := e.sweepAutoCashoutsLocked(round)
	e.crashLocked(e.now())
	snap := e.snapshotLocked()
	roundID := round.ID
	crashPoint := round.CrashPoint
	e.mu.Unlock()

	for _, b := range cashouts {
		e.notifier.CashedOut(roundID, b)
	}
	e.notifier.Crashed(roundID, crashPoint)
	e.notifier.GameState(snap)
	return nil
}

// ForceNewRound abandons the current round and opens a fresh betting
// window. Bets in an unfinished betting window are refunded in full; a
// running round is settled as crashed at its current multiplier first.
// Administrative only.
func (e *Engine) ForceNewRound() error {
	e.mu.Lock()
	round := e.round

	var refunded []models.Bet
	if round != nil {
		switch round.Phase {
		case models.PhaseBetting:
			for _, bet := range round.Bets {
				if _, err := e.ledger.Credit(bet.AccountID, bet.Amount, "bet_refund", round.ID); err != nil {
					log.WithError(err).WithField("account", bet.AccountID).Error("engine: refund failed")
				}
				refunded = append(refunded, *bet)
			}
		case models.PhaseRunning:
			round.CrashPoint = round.Multiplier
			e.crashLocked(e.now())
		}
	}

	e.startRoundLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if len(refunded) > 0 {
		log.WithField("bets", len(refunded)).Info("engine: betting round replaced, stakes refunded")
	}
	e.notifier.GameState(snap)
	return nil
}

// Snapshot returns a consistent view of the current round.
func (e *Engine) Snapshot() models.RoundSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() models.RoundSnapshot {
	round := e.round
	if round == nil {
		return models.RoundSnapshot{}
	}

	snap := models.RoundSnapshot{
		RoundID:       round.ID,
		Hash:          round.Hash,
		Phase:         round.Phase,
		Multiplier:    round.Multiplier,
		BettingEndsAt: round.BettingEndsAt,
		Bets:          copyBets(round.Bets),
	}
	if round.Phase == models.PhaseCrashed {
		cp := round.CrashPoint
		snap.CrashPoint = &cp
	}
	return snap
}

// RoundHistory returns the most recent finished rounds, newest first.
func (e *Engine) RoundHistory(limit int) []models.ArchivedRound {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit <= 0 || limit > len(e.history) {
		limit = len(e.history)
	}
	return append([]models.ArchivedRound(nil), e.history[:limit]...)
}

// RoundsPlayed returns the number of rounds opened since boot.
func (e *Engine) RoundsPlayed() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rounds
}

func copyBets(bets []*models.Bet) []models.Bet {
	out := make([]models.Bet, 0, len(bets))
	for _, b := range bets {
		out = append(out, *b)
	}
	return out
}

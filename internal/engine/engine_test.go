package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"tonrush/internal/ledger"
	"tonrush/internal/models"
	"tonrush/internal/store"
)

type testRig struct {
	engine *Engine
	ledger *ledger.Ledger
	now    time.Time
	crash  float64
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()

	st := store.NewMemory()
	l := ledger.New(st)
	t.Cleanup(l.Close)

	rig := &testRig{
		ledger: l,
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		crash:  3.0,
	}

	e := New(Config{
		HouseEdge:     0.03,
		MinBet:        0.1,
		MaxBet:        100,
		MaxMultiplier: 1000,
		BettingTime:   10 * time.Second,
		CrashDelay:    3 * time.Second,
		TickRate:      100 * time.Millisecond,
	}, l, st, nil)
	e.now = func() time.Time { return rig.now }
	e.draw = func() (float64, error) { return rig.crash, nil }

	rig.engine = e
	e.Start()
	return rig
}

func (r *testRig) fund(t *testing.T, id string, amount float64) {
	t.Helper()
	r.ledger.GetOrCreate(id, id)
	if _, err := r.ledger.Credit(id, amount, "gift_deposit", "test"); err != nil {
		t.Fatalf("funding %s failed: %v", id, err)
	}
}

// advance moves the clock and runs one tick.
func (r *testRig) advance(d time.Duration) {
	r.now = r.now.Add(d)
	r.engine.tick()
}

func (r *testRig) startRunning(t *testing.T) {
	t.Helper()
	r.advance(10 * time.Second)
	if got := r.engine.Snapshot().Phase; got != models.PhaseRunning {
		t.Fatalf("phase %v after betting window, want running", got)
	}
}

func ptr(v float64) *float64 { return &v }

func TestRoundOpensInBetting(t *testing.T) {
	rig := newTestRig(t)

	snap := rig.engine.Snapshot()
	if snap.Phase != models.PhaseBetting {
		t.Fatalf("phase %v, want betting", snap.Phase)
	}
	if snap.Multiplier != 1.0 {
		t.Errorf("multiplier %v, want 1.0", snap.Multiplier)
	}
	if snap.Hash == "" {
		t.Errorf("round published without a hash commitment")
	}
	if snap.CrashPoint != nil {
		t.Errorf("crash point leaked before settlement")
	}

	// Mid-window ticks must not advance the phase.
	rig.advance(5 * time.Second)
	if got := rig.engine.Snapshot().Phase; got != models.PhaseBetting {
		t.Errorf("phase %v mid-window, want betting", got)
	}
}

func TestPlaceBetValidation(t *testing.T) {
	rig := newTestRig(t)
	rig.fund(t, "u1", 10)

	if _, err := rig.engine.PlaceBet("u1", "u1", 0.05, nil); !errors.Is(err, ErrInvalidBetAmount) {
		t.Errorf("below min: got %v, want ErrInvalidBetAmount", err)
	}
	if _, err := rig.engine.PlaceBet("u1", "u1", 101, nil); !errors.Is(err, ErrInvalidBetAmount) {
		t.Errorf("above max: got %v, want ErrInvalidBetAmount", err)
	}
	if _, err := rig.engine.PlaceBet("u1", "u1", 1, ptr(1.0)); !errors.Is(err, ErrInvalidBetAmount) {
		t.Errorf("auto-cashout at 1.0: got %v, want ErrInvalidBetAmount", err)
	}
	if _, err := rig.engine.PlaceBet("u1", "u1", 50, nil); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("overdraft: got %v, want ErrInsufficientBalance", err)
	}
	if b, _ := rig.ledger.Balance("u1"); b != 10 {
		t.Errorf("rejected bets moved money: balance %v", b)
	}

	if _, err := rig.engine.PlaceBet("u1", "u1", 1, nil); err != nil {
		t.Fatalf("valid bet failed: %v", err)
	}
	if _, err := rig.engine.PlaceBet("u1", "u1", 1, nil); !errors.Is(err, ErrDuplicateBet) {
		t.Errorf("second bet: got %v, want ErrDuplicateBet", err)
	}

	rig.startRunning(t)
	if _, err := rig.engine.PlaceBet("u2", "u2", 1, nil); !errors.Is(err, ErrBettingClosed) {
		t.Errorf("bet while running: got %v, want ErrBettingClosed", err)
	}
}

func TestManualCashOut(t *testing.T) {
	rig := newTestRig(t)
	rig.crash = 10.0
	rig.engine.ForceNewRound() // re-draw with the test crash point
	rig.fund(t, "u1", 10)

	if _, err := rig.engine.CashOut("u1"); !errors.Is(err, ErrGameNotRunning) {
		t.Errorf("cashout in betting: got %v, want ErrGameNotRunning", err)
	}

	if _, err := rig.engine.PlaceBet("u1", "u1", 2, nil); err != nil {
		t.Fatalf("bet failed: %v", err)
	}
	rig.startRunning(t)

	rig.advance(3 * time.Second) // multiplier 1.43
	bet, err := rig.engine.CashOut("u1")
	if err != nil {
		t.Fatalf("cashout failed: %v", err)
	}
	if *bet.Multiplier != 1.43 {
		t.Errorf("cashout multiplier %v, want 1.43", *bet.Multiplier)
	}
	if *bet.Profit != 0.86 {
		t.Errorf("profit %v, want 0.86", *bet.Profit)
	}
	if b, _ := rig.ledger.Balance("u1"); b != 10.86 {
		t.Errorf("balance %v, want 10.86", b)
	}

	if _, err := rig.engine.CashOut("u1"); !errors.Is(err, ErrNoActiveBet) {
		t.Errorf("double cashout: got %v, want ErrNoActiveBet", err)
	}
}

func TestAutoCashoutLocksThreshold(t *testing.T) {
	rig := newTestRig(t)
	rig.fund(t, "u1", 10)

	if _, err := rig.engine.PlaceBet("u1", "u1", 2, ptr(2.0)); err != nil {
		t.Fatalf("bet failed: %v", err)
	}
	rig.startRunning(t)

	// One coarse tick jumps the multiplier to 2.05, past the 2.00
	// threshold. The payout must still be at 2.00.
	rig.advance(6 * time.Second)

	snap := rig.engine.Snapshot()
	if snap.Multiplier != 2.05 {
		t.Fatalf("multiplier %v, want 2.05", snap.Multiplier)
	}
	bet := snap.Bets[0]
	if !bet.CashedOut {
		t.Fatal("auto-cashout did not fire")
	}
	if *bet.Multiplier != 2.0 {
		t.Errorf("resolved at %v, want the 2.0 threshold", *bet.Multiplier)
	}
	if b, _ := rig.ledger.Balance("u1"); b != 12 {
		t.Errorf("balance %v, want 12", b)
	}
}

func TestAutoCashoutAtCrashPointStillWins(t *testing.T) {
	rig := newTestRig(t)
	rig.crash = 2.0
	rig.engine.ForceNewRound()
	rig.fund(t, "u1", 10)

	if _, err := rig.engine.PlaceBet("u1", "u1", 2, ptr(2.0)); err != nil {
		t.Fatalf("bet failed: %v", err)
	}
	rig.startRunning(t)
	rig.advance(6 * time.Second) // curve passes 2.0, capped at the crash point

	snap := rig.engine.Snapshot()
	if snap.Phase != models.PhaseCrashed {
		t.Fatalf("phase %v, want crashed", snap.Phase)
	}
	if b, _ := rig.ledger.Balance("u1"); b != 12 {
		t.Errorf("balance %v, want 12 (threshold equal to crash point wins)", b)
	}

	acc, _ := rig.ledger.Account("u1")
	if acc.BetHistory[0].Result != "win" {
		t.Errorf("result %q, want win", acc.BetHistory[0].Result)
	}
}

func TestCrashSettlement(t *testing.T) {
	rig := newTestRig(t)
	rig.crash = 2.0
	rig.engine.ForceNewRound()
	rig.fund(t, "u1", 10)

	if _, err := rig.engine.PlaceBet("u1", "u1", 2, nil); err != nil {
		t.Fatalf("bet failed: %v", err)
	}
	rig.startRunning(t)
	rig.advance(6 * time.Second) // curve reaches the crash point

	snap := rig.engine.Snapshot()
	if snap.Phase != models.PhaseCrashed {
		t.Fatalf("phase %v, want crashed", snap.Phase)
	}
	if snap.CrashPoint == nil || *snap.CrashPoint != 2.0 {
		t.Errorf("crash point not revealed at settlement: %v", snap.CrashPoint)
	}

	// The crash wins any cashout race.
	if _, err := rig.engine.CashOut("u1"); !errors.Is(err, ErrGameNotRunning) {
		t.Errorf("cashout after crash: got %v, want ErrGameNotRunning", err)
	}

	acc, _ := rig.ledger.Account("u1")
	if acc.Stats.GamesPlayed != 1 || acc.Stats.Losses != 1 {
		t.Errorf("stats %+v, want one game, one loss", acc.Stats)
	}
	if acc.BetHistory[0].Profit != -2 {
		t.Errorf("loss profit %v, want -2", acc.BetHistory[0].Profit)
	}
	if b, _ := rig.ledger.Balance("u1"); b != 8 {
		t.Errorf("balance %v, want 8", b)
	}

	// Cooldown ticks must not settle twice.
	rig.advance(1 * time.Second)
	acc, _ = rig.ledger.Account("u1")
	if acc.Stats.GamesPlayed != 1 {
		t.Errorf("gamesPlayed %d after cooldown tick, want 1", acc.Stats.GamesPlayed)
	}

	// After the cooldown a fresh betting round opens.
	oldID := snap.RoundID
	rig.advance(3 * time.Second)
	next := rig.engine.Snapshot()
	if next.Phase != models.PhaseBetting {
		t.Errorf("phase %v after cooldown, want betting", next.Phase)
	}
	if next.RoundID == oldID {
		t.Errorf("round id not rotated after crash")
	}
}

func TestRoundHistory(t *testing.T) {
	rig := newTestRig(t)
	rig.crash = 2.0
	rig.engine.ForceNewRound()
	rig.startRunning(t)
	rig.advance(6 * time.Second)

	history := rig.engine.RoundHistory(10)
	if len(history) != 1 {
		t.Fatalf("history length %d, want 1", len(history))
	}
	if history[0].CrashPoint != 2.0 {
		t.Errorf("archived crash point %v, want 2.0", history[0].CrashPoint)
	}
}

func TestForceCrash(t *testing.T) {
	rig := newTestRig(t)
	rig.fund(t, "u1", 10)

	if err := rig.engine.ForceCrash(0); !errors.Is(err, ErrRoundNotRunning) {
		t.Errorf("force crash in betting: got %v, want ErrRoundNotRunning", err)
	}

	if _, err := rig.engine.PlaceBet("u1", "u1", 2, ptr(1.5)); err != nil {
		t.Fatalf("bet failed: %v", err)
	}
	rig.startRunning(t)

	if err := rig.engine.ForceCrash(1.5); err != nil {
		t.Fatalf("force crash failed: %v", err)
	}

	snap := rig.engine.Snapshot()
	if snap.Phase != models.PhaseCrashed {
		t.Errorf("phase %v, want crashed", snap.Phase)
	}
	// The armed auto-cashout at the forced value still pays.
	if b, _ := rig.ledger.Balance("u1"); b != 11 {
		t.Errorf("balance %v, want 11", b)
	}
}

func TestForceNewRoundRefundsBettingStakes(t *testing.T) {
	rig := newTestRig(t)
	rig.fund(t, "u1", 10)

	if _, err := rig.engine.PlaceBet("u1", "u1", 5, nil); err != nil {
		t.Fatalf("bet failed: %v", err)
	}
	if b, _ := rig.ledger.Balance("u1"); b != 5 {
		t.Fatalf("balance %v after bet, want 5", b)
	}

	oldID := rig.engine.Snapshot().RoundID
	if err := rig.engine.ForceNewRound(); err != nil {
		t.Fatalf("force new round failed: %v", err)
	}

	if b, _ := rig.ledger.Balance("u1"); b != 10 {
		t.Errorf("balance %v after refund, want 10", b)
	}
	acc, _ := rig.ledger.Account("u1")
	if acc.Transactions[0].Type != "bet_refund" {
		t.Errorf("head transaction %q, want bet_refund", acc.Transactions[0].Type)
	}

	snap := rig.engine.Snapshot()
	if snap.RoundID == oldID {
		t.Errorf("round id not rotated")
	}
	if snap.Phase != models.PhaseBetting || len(snap.Bets) != 0 {
		t.Errorf("new round not a clean betting round: %+v", snap)
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	ticks []models.RoundSnapshot
}

func (n *recordingNotifier) GameState(models.RoundSnapshot) {}
func (n *recordingNotifier) BetPlaced(string, models.Bet)   {}
func (n *recordingNotifier) CashedOut(string, models.Bet)   {}
func (n *recordingNotifier) Crashed(string, float64)        {}

func (n *recordingNotifier) Tick(s models.RoundSnapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ticks = append(n.ticks, s)
}

func (n *recordingNotifier) lastTick() (models.RoundSnapshot, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.ticks) == 0 {
		return models.RoundSnapshot{}, false
	}
	return n.ticks[len(n.ticks)-1], true
}

func TestTickPushesFullSnapshot(t *testing.T) {
	rig := newTestRig(t)
	rec := &recordingNotifier{}
	rig.engine.notifier = rec
	rig.fund(t, "u1", 10)

	if _, err := rig.engine.PlaceBet("u1", "u1", 2, nil); err != nil {
		t.Fatalf("bet failed: %v", err)
	}
	rig.startRunning(t)
	rig.advance(3 * time.Second)

	snap, ok := rec.lastTick()
	if !ok {
		t.Fatal("running tick pushed nothing")
	}
	if snap.Phase != models.PhaseRunning {
		t.Errorf("tick phase %v, want running", snap.Phase)
	}
	if snap.Multiplier != 1.43 {
		t.Errorf("tick multiplier %v, want 1.43", snap.Multiplier)
	}
	if len(snap.Bets) != 1 || snap.Bets[0].AccountID != "u1" {
		t.Errorf("tick bets wrong: %+v", snap.Bets)
	}
	if snap.CrashPoint != nil {
		t.Error("tick leaked the crash point mid-round")
	}
}

func TestMultiplierMonotonicAcrossTicks(t *testing.T) {
	rig := newTestRig(t)
	rig.crash = 50.0
	rig.engine.ForceNewRound()
	rig.startRunning(t)

	prev := 1.0
	for i := 0; i < 100; i++ {
		rig.advance(100 * time.Millisecond)
		snap := rig.engine.Snapshot()
		if snap.Phase != models.PhaseRunning {
			break
		}
		if snap.Multiplier < prev {
			t.Fatalf("multiplier decreased: %v -> %v", prev, snap.Multiplier)
		}
		prev = snap.Multiplier
	}
}

package models

import "time"

type Phase string

const (
	PhaseBetting Phase = "betting"
	PhaseRunning Phase = "running"
	PhaseCrashed Phase = "crashed"
)

// Round is one betting -> running -> crashed cycle. The crash point is
// drawn once at creation and never transmitted to clients until the
// round has crashed; only its hash commitment is published.
type Round struct {
	ID            string    `json:"id"`
	Hash          string    `json:"hash"`
	Phase         Phase     `json:"phase"`
	CrashPoint    float64   `json:"-"`
	Multiplier    float64   `json:"multiplier"`
	BettingEndsAt time.Time `json:"bettingEndsAt"`
	StartedAt     time.Time `json:"startedAt,omitempty"`
	EndedAt       time.Time `json:"endedAt,omitempty"`
	Bets          []*Bet    `json:"bets"`
}

// Bet belongs to one round and one account; at most one per account
// per round, insertion order preserved. Multiplier and Profit are set
// at most once, when the bet resolves.
type Bet struct {
	AccountID   string   `json:"accountId"`
	Name        string   `json:"name,omitempty"`
	Amount      float64  `json:"amount"`
	AutoCashout *float64 `json:"autoCashout,omitempty"`
	CashedOut   bool     `json:"cashedOut"`
	Multiplier  *float64 `json:"multiplier,omitempty"`
	Profit      *float64 `json:"profit,omitempty"`
}

// RoundSnapshot is a consistent point-in-time view of the current
// round for outward notification. CrashPoint is nil until the round
// has crashed.
type RoundSnapshot struct {
	RoundID       string    `json:"roundId"`
	Hash          string    `json:"hash"`
	Phase         Phase     `json:"phase"`
	Multiplier    float64   `json:"multiplier"`
	CrashPoint    *float64  `json:"crashPoint,omitempty"`
	BettingEndsAt time.Time `json:"bettingEndsAt"`
	Bets          []Bet     `json:"bets"`
}

// ArchivedRound is a finished round as kept in round history. The
// crash point is public once the round is over.
type ArchivedRound struct {
	ID         string    `json:"id"`
	Hash       string    `json:"hash"`
	CrashPoint float64   `json:"crashPoint"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt"`
	Bets       []Bet     `json:"bets"`
}

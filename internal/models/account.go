package models

import "time"

const (
	// TransactionLogLimit bounds the per-account transaction log.
	TransactionLogLimit = 50
	// BetHistoryLimit bounds the per-account bet history log.
	BetHistoryLimit = 50
)

// Account is one player. Created on first contact, never deleted.
// Balance is mutated only through ledger operations.
type Account struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Balance      float64       `json:"balance"`
	Stats        AccountStats  `json:"stats"`
	Transactions []Transaction `json:"transactions"`
	BetHistory   []BetRecord   `json:"betHistory"`
	CreatedAt    time.Time     `json:"createdAt"`
}

type AccountStats struct {
	GamesPlayed  int     `json:"gamesPlayed"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	TotalWagered float64 `json:"totalWagered"`
	BiggestWin   float64 `json:"biggestWin"`
}

// Transaction is one balance movement. Amount is always positive;
// Type carries the direction and cause (bet, cashout, gift_deposit,
// withdrawal, withdrawal_refund, bet_refund, admin_set).
type Transaction struct {
	Type         string    `json:"type"`
	Amount       float64   `json:"amount"`
	BalanceAfter float64   `json:"balanceAfter"`
	Ref          string    `json:"ref,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// BetRecord is one resolved bet as it appears in an account's history.
type BetRecord struct {
	RoundID    string    `json:"roundId"`
	Amount     float64   `json:"amount"`
	Multiplier float64   `json:"multiplier"`
	Profit     float64   `json:"profit"`
	Result     string    `json:"result"` // "win" | "loss"
	CreatedAt  time.Time `json:"createdAt"`
}

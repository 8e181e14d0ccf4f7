package models

import "time"

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

// WithdrawalRequest escrows its amount at creation: the balance is
// debited before approval, and only a rejection restores it.
type WithdrawalRequest struct {
	ID          string           `json:"id"`
	AccountID   string           `json:"accountId"`
	Amount      float64          `json:"amount"`
	Address     string           `json:"address"`
	Status      WithdrawalStatus `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	ProcessedAt time.Time        `json:"processedAt,omitempty"`
}

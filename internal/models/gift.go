package models

import "time"

type GiftDepositStatus string

const (
	GiftDepositPending   GiftDepositStatus = "pending"
	GiftDepositConfirmed GiftDepositStatus = "confirmed"
	GiftDepositExpired   GiftDepositStatus = "expired"
)

// GiftDepositRequest correlates an on-chain gift transfer to an
// account: the player embeds the request ID in the transfer memo and
// the verifier credits the account when a matching transfer shows up
// on the collection wallet. Credited is set once, on confirmation.
type GiftDepositRequest struct {
	ID          string            `json:"id"`
	AccountID   string            `json:"accountId"`
	Status      GiftDepositStatus `json:"status"`
	Credited    float64           `json:"credited,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	ConfirmedAt time.Time         `json:"confirmedAt,omitempty"`
}

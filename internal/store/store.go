// Package store is the persistence collaborator for the round engine.
// Every mutable aggregate (account, withdrawal, gift request) carries
// an optimistic version token: a save succeeds only if the stored
// version still matches the one the caller read, which closes the
// lost-update race a plain read-modify-write cycle would have.
package store

import (
	"context"
	"errors"

	"tonrush/internal/models"
)

var (
	// ErrVersionConflict means the aggregate changed since it was read.
	ErrVersionConflict = errors.New("store: version conflict")
	// ErrNotFound means no record exists for the given key.
	ErrNotFound = errors.New("store: not found")
)

type AccountRecord struct {
	Account models.Account
	Version int64
}

type WithdrawalRecord struct {
	Request models.WithdrawalRequest
	Version int64
}

type GiftRecord struct {
	Request models.GiftDepositRequest
	Version int64
}

// Store persists engine state. Saves with version 0 create the record
// and fail with ErrVersionConflict if it already exists; saves with
// version n succeed only against stored version n and return n+1.
type Store interface {
	LoadAccounts(ctx context.Context) ([]AccountRecord, error)
	GetAccount(ctx context.Context, id string) (AccountRecord, error)
	SaveAccount(ctx context.Context, acc models.Account, version int64) (int64, error)

	LoadWithdrawals(ctx context.Context) ([]WithdrawalRecord, error)
	SaveWithdrawal(ctx context.Context, req models.WithdrawalRequest, version int64) (int64, error)

	LoadGiftRequests(ctx context.Context) ([]GiftRecord, error)
	SaveGiftRequest(ctx context.Context, req models.GiftDepositRequest, version int64) (int64, error)

	ArchiveRound(ctx context.Context, round models.ArchivedRound) error
	RecentRounds(ctx context.Context, limit int) ([]models.ArchivedRound, error)

	LoadProcessedTransfers(ctx context.Context) ([]string, error)
	MarkTransferProcessed(ctx context.Context, key string) error

	Close() error
}

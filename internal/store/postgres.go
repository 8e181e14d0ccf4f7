package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"tonrush/internal/models"
)

// Postgres keeps each aggregate as a JSONB document with a version
// column. Writes are compare-and-swap on the version, so a stale
// writer gets ErrVersionConflict instead of silently clobbering.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(connStr string) (*Postgres, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	p := &Postgres{db: db}
	if err := p.migrate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id      TEXT PRIMARY KEY,
			data    JSONB NOT NULL,
			version BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS withdrawals (
			id      TEXT PRIMARY KEY,
			data    JSONB NOT NULL,
			version BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS gift_requests (
			id      TEXT PRIMARY KEY,
			data    JSONB NOT NULL,
			version BIGINT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS rounds (
			id       TEXT PRIMARY KEY,
			data     JSONB NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS processed_transfers (
			key TEXT PRIMARY KEY
		);
	`)
	return err
}

// saveVersioned does the CAS write shared by all mutable aggregates.
func (p *Postgres) saveVersioned(ctx context.Context, table, id string, doc interface{}, version int64) (int64, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}

	next := version + 1
	var res sql.Result
	if version == 0 {
		res, err = p.db.ExecContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, data, version)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING`, table),
			id, data, next)
	} else {
		res, err = p.db.ExecContext(ctx, fmt.Sprintf(`
			UPDATE %s SET data = $2, version = $3
			WHERE id = $1 AND version = $4`, table),
			id, data, next, version)
	}
	if err != nil {
		return 0, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return 0, ErrVersionConflict
	}
	return next, nil
}

func (p *Postgres) LoadAccounts(ctx context.Context) ([]AccountRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT data, version FROM accounts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountRecord
	for rows.Next() {
		var (
			data []byte
			rec  AccountRecord
		)
		if err := rows.Scan(&data, &rec.Version); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &rec.Account); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) GetAccount(ctx context.Context, id string) (AccountRecord, error) {
	var (
		data []byte
		rec  AccountRecord
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT data, version FROM accounts WHERE id = $1`, id).
		Scan(&data, &rec.Version)
	if err == sql.ErrNoRows {
		return AccountRecord{}, ErrNotFound
	}
	if err != nil {
		return AccountRecord{}, err
	}
	if err := json.Unmarshal(data, &rec.Account); err != nil {
		return AccountRecord{}, err
	}
	return rec, nil
}

func (p *Postgres) SaveAccount(ctx context.Context, acc models.Account, version int64) (int64, error) {
	return p.saveVersioned(ctx, "accounts", acc.ID, acc, version)
}

func (p *Postgres) LoadWithdrawals(ctx context.Context) ([]WithdrawalRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT data, version FROM withdrawals`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WithdrawalRecord
	for rows.Next() {
		var (
			data []byte
			rec  WithdrawalRecord
		)
		if err := rows.Scan(&data, &rec.Version); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &rec.Request); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveWithdrawal(ctx context.Context, req models.WithdrawalRequest, version int64) (int64, error) {
	return p.saveVersioned(ctx, "withdrawals", req.ID, req, version)
}

func (p *Postgres) LoadGiftRequests(ctx context.Context) ([]GiftRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT data, version FROM gift_requests`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GiftRecord
	for rows.Next() {
		var (
			data []byte
			rec  GiftRecord
		)
		if err := rows.Scan(&data, &rec.Version); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &rec.Request); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveGiftRequest(ctx context.Context, req models.GiftDepositRequest, version int64) (int64, error) {
	return p.saveVersioned(ctx, "gift_requests", req.ID, req, version)
}

func (p *Postgres) ArchiveRound(ctx context.Context, round models.ArchivedRound) error {
	data, err := json.Marshal(round)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO rounds (id, data, ended_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		round.ID, data, round.EndedAt)
	return err
}

func (p *Postgres) RecentRounds(ctx context.Context, limit int) ([]models.ArchivedRound, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT data FROM rounds
		ORDER BY ended_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ArchivedRound
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var round models.ArchivedRound
		if err := json.Unmarshal(data, &round); err != nil {
			return nil, err
		}
		out = append(out, round)
	}
	return out, rows.Err()
}

func (p *Postgres) LoadProcessedTransfers(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key FROM processed_transfers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkTransferProcessed(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO processed_transfers (key)
		VALUES ($1)
		ON CONFLICT (key) DO NOTHING`, key)
	return err
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

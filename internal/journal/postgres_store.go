package journal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists entries in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS stage_outcomes (
    id BIGSERIAL PRIMARY KEY,
    run_id TEXT NOT NULL,
    stage TEXT NOT NULL,
    app_id BIGINT NOT NULL,
    sender TEXT NOT NULL,
    tx_ids TEXT[] NOT NULL,
    confirmations JSONB NOT NULL,
    return_value JSONB,
    error TEXT NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL
);
`

const createIndexSQL = `CREATE INDEX IF NOT EXISTS stage_outcomes_run_id_idx ON stage_outcomes (run_id)`

// NewPostgresStore connects to Postgres using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	for _, stmt := range []string{createTableSQL, createIndexSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Ping reports whether the database is reachable.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Append(ctx context.Context, entry Entry) error {
	confirmations, err := json.Marshal(entry.Confirmations)
	if err != nil {
		return err
	}
	var returnValue any
	if len(entry.ReturnValue) > 0 {
		returnValue = []byte(entry.ReturnValue)
	}
	txIDs := entry.TxIDs
	if txIDs == nil {
		txIDs = []string{}
	}

	_, err = p.pool.Exec(ctx, `
INSERT INTO stage_outcomes (run_id, stage, app_id, sender, tx_ids, confirmations, return_value, error, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, entry.RunID, entry.Stage, int64(entry.AppID), entry.Sender, txIDs, confirmations, returnValue, entry.Error, entry.At)
	return err
}

func (p *PostgresStore) List(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := p.pool.Query(ctx, `
SELECT stage, app_id, sender, tx_ids, confirmations, return_value, error, recorded_at
FROM stage_outcomes
WHERE run_id = $1
ORDER BY id
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e             = Entry{RunID: runID}
			appID         int64
			confirmations []byte
			returnValue   []byte
		)
		if err := rows.Scan(&e.Stage, &appID, &e.Sender, &e.TxIDs, &confirmations, &returnValue, &e.Error, &e.At); err != nil {
			return nil, err
		}
		e.AppID = uint64(appID)
		if err := json.Unmarshal(confirmations, &e.Confirmations); err != nil {
			return nil, err
		}
		if len(returnValue) > 0 {
			e.ReturnValue = returnValue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

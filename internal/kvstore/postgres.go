package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores keys in the kv_store table created by cmd/migrate.
type Postgres struct {
	dbpool    *pgxpool.Pool
	namespace string
}

func NewPostgres(ctx context.Context, databaseDSN, namespace string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &Postgres{dbpool: pool, namespace: namespace}, nil
}

func (p *Postgres) key(k string) string {
	if p.namespace == "" {
		return k
	}
	return p.namespace + ":" + k
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.dbpool.Ping(ctx)
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := p.dbpool.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, p.key(key)).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return v, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	_, err := p.dbpool.Exec(ctx, upsertSQL, p.key(key), value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (p *Postgres) Scan(ctx context.Context, prefix string) ([]string, error) {
	full := p.key(prefix)
	strip := len(p.key(""))

	rows, err := p.dbpool.Query(ctx, `SELECT key FROM kv_store WHERE starts_with(key, $1) ORDER BY key`, full)
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", prefix, err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", prefix, err)
	}
	for i, k := range keys {
		keys[i] = k[strip:]
	}
	return keys, nil
}

// Update serializes writers of one key with a transaction-scoped advisory
// lock, which also covers keys that do not exist yet.
func (p *Postgres) Update(ctx context.Context, key string, fn UpdateFunc) error {
	k := p.key(key)

	return pgx.BeginFunc(ctx, p.dbpool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, k); err != nil {
			return fmt.Errorf("lock %q: %w", key, err)
		}

		var cur string
		found := true
		err := tx.QueryRow(ctx, `SELECT value FROM kv_store WHERE key = $1`, k).Scan(&cur)
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
		} else if err != nil {
			return fmt.Errorf("read %q: %w", key, err)
		}

		next, err := fn(cur, found)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, upsertSQL, k, next); err != nil {
			return fmt.Errorf("write %q: %w", key, err)
		}
		return nil
	})
}

func (p *Postgres) Close() error {
	p.dbpool.Close()
	return nil
}

const upsertSQL = `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

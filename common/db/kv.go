package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trustmesh/go-signals/models"
)

//go:embed schema.sql
var schemaSql string

var _ models.KeyValueRepository = &KvDatabase{}

type KvDbOpts struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

func (o KvDbOpts) ConnUrl() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", o.User, o.Password, o.Host, o.Port, o.Name)
}

// KvDatabase stores values in a single Postgres table, bootstrapping the schema on startup.
type KvDatabase struct {
	pool *pgxpool.Pool
}

func NewKvDb(ctx context.Context, connUrl string) (*KvDatabase, error) {
	dbCtx, dbCancel := context.WithTimeout(ctx, models.DefaultHttpWaitTime)
	defer dbCancel()

	pool, err := pgxpool.New(dbCtx, connUrl)
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}
	if err = pool.Ping(dbCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	if _, err = pool.Exec(dbCtx, schemaSql); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: apply schema: %w", err)
	}
	return &KvDatabase{pool}, nil
}

func (kdb *KvDatabase) Get(ctx context.Context, key string) (string, bool, error) {
	dbCtx, dbCancel := context.WithTimeout(ctx, models.DefaultHttpWaitTime)
	defer dbCancel()

	var value string
	err := kdb.pool.QueryRow(dbCtx, "SELECT value FROM signal_kv WHERE key = $1", key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("db: get %s: %w", key, err)
	}
	return value, true, nil
}

func (kdb *KvDatabase) Set(ctx context.Context, key, value string) error {
	dbCtx, dbCancel := context.WithTimeout(ctx, models.DefaultHttpWaitTime)
	defer dbCancel()

	if _, err := kdb.pool.Exec(
		dbCtx,
		`INSERT INTO signal_kv (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key,
		value,
	); err != nil {
		return fmt.Errorf("db: set %s: %w", key, err)
	}
	return nil
}

func (kdb *KvDatabase) Delete(ctx context.Context, key string) error {
	dbCtx, dbCancel := context.WithTimeout(ctx, models.DefaultHttpWaitTime)
	defer dbCancel()

	if _, err := kdb.pool.Exec(dbCtx, "DELETE FROM signal_kv WHERE key = $1", key); err != nil {
		return fmt.Errorf("db: delete %s: %w", key, err)
	}
	return nil
}

func (kdb *KvDatabase) Keys(ctx context.Context, prefix string) ([]string, error) {
	dbCtx, dbCancel := context.WithTimeout(ctx, models.DefaultHttpWaitTime)
	defer dbCancel()

	rows, err := kdb.pool.Query(
		dbCtx,
		"SELECT key FROM signal_kv WHERE left(key, length($1)) = $1 ORDER BY key",
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("db: keys %s: %w", prefix, err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("db: keys %s: %w", prefix, err)
	}
	return keys, nil
}

func (kdb *KvDatabase) Ping(ctx context.Context) error {
	return kdb.pool.Ping(ctx)
}

func (kdb *KvDatabase) Close() {
	kdb.pool.Close()
}

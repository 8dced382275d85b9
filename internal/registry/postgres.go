package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig describes how the repository initialises its Postgres
// connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ApplicationName string
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

const createTableStatement = `
CREATE TABLE IF NOT EXISTS upload_records (
    id            TEXT PRIMARY KEY,
    field_name    TEXT NOT NULL,
    original_name TEXT NOT NULL,
    category      TEXT NOT NULL,
    content_type  TEXT NOT NULL,
    bucket        TEXT NOT NULL,
    object_key    TEXT NOT NULL,
    size_bytes    BIGINT NOT NULL,
    location      TEXT NOT NULL,
    etag          TEXT NOT NULL DEFAULT '',
    segmented     BOOLEAN NOT NULL DEFAULT FALSE,
    stored_at     TIMESTAMPTZ NOT NULL
)`

// NewPostgresRepository opens a Postgres-backed repository and ensures its
// schema exists.
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (Repository, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if name := strings.TrimSpace(cfg.ApplicationName); name != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = name
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableStatement); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure upload_records table: %w", err)
	}
	return &postgresRepository{pool: pool}, nil
}

func (r *postgresRepository) Create(ctx context.Context, record Record) (Record, error) {
	if strings.TrimSpace(record.ID) == "" {
		id, err := generateID()
		if err != nil {
			return Record{}, err
		}
		record.ID = id
	}
	if record.StoredAt.IsZero() {
		record.StoredAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO upload_records (id, field_name, original_name, category, content_type, bucket, object_key, size_bytes, location, etag, segmented, stored_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		record.ID, record.FieldName, record.OriginalName, record.Category,
		record.ContentType, record.Bucket, record.Key, record.Size,
		record.Location, record.ETag, record.Segmented, record.StoredAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("insert upload record: %w", err)
	}
	return record, nil
}

func (r *postgresRepository) Get(ctx context.Context, id string) (Record, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, field_name, original_name, category, content_type, bucket, object_key, size_bytes, location, etag, segmented, stored_at
FROM upload_records WHERE id = $1`, id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("load upload record: %w", err)
	}
	return record, nil
}

func (r *postgresRepository) List(ctx context.Context, category string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
SELECT id, field_name, original_name, category, content_type, bucket, object_key, size_bytes, location, etag, segmented, stored_at
FROM upload_records`
	args := []any{}
	if category != "" {
		query += " WHERE category = $1 ORDER BY stored_at DESC LIMIT $2"
		args = append(args, category, limit)
	} else {
		query += " ORDER BY stored_at DESC LIMIT $1"
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list upload records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate upload records: %w", err)
	}
	return records, nil
}

func (r *postgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM upload_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete upload record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) Close(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		r.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var record Record
	err := row.Scan(
		&record.ID, &record.FieldName, &record.OriginalName, &record.Category,
		&record.ContentType, &record.Bucket, &record.Key, &record.Size,
		&record.Location, &record.ETag, &record.Segmented, &record.StoredAt,
	)
	return record, err
}

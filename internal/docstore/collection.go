package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const pgUniqueViolation = "23505"

// Collection is a partition-keyed document collection stored as one
// jsonb table. Bootstrap runs lazily on first use and is memoized,
// including its failure: a collection that failed to initialize keeps
// returning that error rather than retrying.
type Collection[T any] struct {
	pool  *pgxpool.Pool
	table string
	keyOf func(*T) Key
	log   *zap.Logger

	initOnce sync.Once
	initErr  error
}

func NewCollection[T any](s *Store, table string, keyOf func(*T) Key) *Collection[T] {
	return &Collection[T]{
		pool:  s.Pool,
		table: table,
		keyOf: keyOf,
		log:   s.log.With(zap.String("collection", table)),
	}
}

func (c *Collection[T]) ensureInit(ctx context.Context) error {
	c.initOnce.Do(func() {
		_, err := c.pool.Exec(ctx, fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s (
				id text NOT NULL,
				partition_key text NOT NULL,
				data jsonb NOT NULL,
				PRIMARY KEY (id, partition_key)
			)`, c.table))
		if err != nil {
			c.initErr = fmt.Errorf("failed to initialize collection %s: %w", c.table, err)
		}
	})
	return c.initErr
}

// Get loads the document at key, or ErrNotFound.
func (c *Collection[T]) Get(ctx context.Context, key Key) (*T, error) {
	if err := c.ensureInit(ctx); err != nil {
		return nil, err
	}
	var raw []byte
	err := c.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT data FROM %s WHERE id = $1 AND partition_key = $2", c.table),
		key.ID, key.PartitionKey,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s/%s: %w", key.PartitionKey, key.ID, err)
	}
	return c.decode(raw)
}

// Add inserts a new document. A document already present at the same
// key yields ErrConflict.
func (c *Collection[T]) Add(ctx context.Context, doc *T) error {
	if err := c.ensureInit(ctx); err != nil {
		return err
	}
	key := c.keyOf(doc)
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	_, err = c.pool.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (id, partition_key, data) VALUES ($1, $2, $3)", c.table),
		key.ID, key.PartitionKey, raw,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to add document %s/%s: %w", key.PartitionKey, key.ID, err)
	}
	return nil
}

// Upsert writes the document unconditionally, last writer wins.
func (c *Collection[T]) Upsert(ctx context.Context, doc *T) error {
	if err := c.ensureInit(ctx); err != nil {
		return err
	}
	key := c.keyOf(doc)
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	_, err = c.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, partition_key, data) VALUES ($1, $2, $3)
			ON CONFLICT (id, partition_key) DO UPDATE SET data = EXCLUDED.data`, c.table),
		key.ID, key.PartitionKey, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document %s/%s: %w", key.PartitionKey, key.ID, err)
	}
	return nil
}

// Delete removes the document at key. Deleting a missing document is
// not an error.
func (c *Collection[T]) Delete(ctx context.Context, key Key) error {
	if err := c.ensureInit(ctx); err != nil {
		return err
	}
	tag, err := c.pool.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = $1 AND partition_key = $2", c.table),
		key.ID, key.PartitionKey,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document %s/%s: %w", key.PartitionKey, key.ID, err)
	}
	if tag.RowsAffected() == 0 {
		c.log.Debug("delete of absent document", zap.String("id", key.ID), zap.String("partitionKey", key.PartitionKey))
	}
	return nil
}

// Query runs a filtered scan and drains every matching row. The where
// clause addresses the jsonb payload as "data"; an empty clause scans
// the whole collection.
func (c *Collection[T]) Query(ctx context.Context, where string, args ...any) ([]T, error) {
	if err := c.ensureInit(ctx); err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT data FROM %s", c.table)
	if where != "" {
		q += " WHERE " + where
	}
	rows, err := c.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", c.table, err)
	}
	defer rows.Close()

	docs := make([]T, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := c.decode(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (c *Collection[T]) decode(raw []byte) (*T, error) {
	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &doc, nil
}

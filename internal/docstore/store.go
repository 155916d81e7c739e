package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when no document exists for a key.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrConflict is returned on a duplicate Add or a lost versioned update.
	ErrConflict = errors.New("docstore: document conflict")
)

// Key addresses a single document: its id plus the partition it lives in.
type Key struct {
	ID           string
	PartitionKey string
}

// Store owns the connection pool shared by all collections.
type Store struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

func New(databaseURL string, log *zap.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{Pool: pool, log: log}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

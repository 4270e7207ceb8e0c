// Package postgres persists nodes, connections and generation jobs via pgx.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meikuraledutech/vidgraph"
)

// PGStore implements vidgraph.NodePersistence, ConnectionPersistence and
// JobStore on top of PostgreSQL.
type PGStore struct {
	db *pgxpool.Pool
}

// New creates a PGStore backed by the given pgx connection pool.
func New(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

var (
	_ vidgraph.NodePersistence       = (*PGStore)(nil)
	_ vidgraph.ConnectionPersistence = (*PGStore)(nil)
	_ vidgraph.JobStore              = (*PGStore)(nil)
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

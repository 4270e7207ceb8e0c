package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/meikuraledutech/vidgraph"
)

// CreateConnection inserts a connection into a project. If conn.ID is empty,
// a UUID is auto-generated. Self-loops are rejected; a duplicate
// (source, target) pair returns ErrDuplicateConnection; a missing endpoint
// node returns ErrNodeNotFound.
func (s *PGStore) CreateConnection(ctx context.Context, projectID string, conn *vidgraph.Connection) (*vidgraph.Connection, error) {
	if conn.SourceNodeID == conn.TargetNodeID {
		return nil, vidgraph.ErrSelfLoop
	}
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO connections (id, project_id, source_node_id, target_node_id, source_handle, target_handle)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		conn.ID, projectID, conn.SourceNodeID, conn.TargetNodeID, conn.SourceHandle, conn.TargetHandle,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505": // unique_violation on (source, target)
				return nil, vidgraph.ErrDuplicateConnection
			case "23503": // foreign_key_violation
				return nil, vidgraph.ErrNodeNotFound
			}
		}
		return nil, fmt.Errorf("vidgraph: insert connection: %w", err)
	}
	return conn, nil
}

// ListConnections returns all connections for a project, ordered by creation
// time. The resolver's most-recently-created-wins rule relies on this
// ordering. Returns an empty slice (not nil) if none found.
func (s *PGStore) ListConnections(ctx context.Context, projectID string) ([]vidgraph.Connection, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, source_node_id, target_node_id, source_handle, target_handle
		 FROM connections WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("vidgraph: list connections: %w", err)
	}
	defer rows.Close()

	conns := []vidgraph.Connection{}
	for rows.Next() {
		var c vidgraph.Connection
		if err := rows.Scan(&c.ID, &c.SourceNodeID, &c.TargetNodeID, &c.SourceHandle, &c.TargetHandle); err != nil {
			return nil, fmt.Errorf("vidgraph: scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vidgraph: rows connections: %w", err)
	}
	return conns, nil
}

// DeleteConnection deletes a connection by its ID. No error if it doesn't
// exist.
func (s *PGStore) DeleteConnection(ctx context.Context, projectID, connectionID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM connections WHERE id = $1 AND project_id = $2`, connectionID, projectID)
	if err != nil {
		return fmt.Errorf("vidgraph: delete connection: %w", err)
	}
	return nil
}

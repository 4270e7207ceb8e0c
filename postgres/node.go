package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/meikuraledutech/vidgraph"
)

// CreateNode inserts a node into a project. If node.ID is empty, a UUID is
// auto-generated. Returns the node with its ID filled in.
func (s *PGStore) CreateNode(ctx context.Context, projectID string, node *vidgraph.Node) (*vidgraph.Node, error) {
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	if node.Status == "" {
		node.Status = vidgraph.StatusIdle
	}
	data, err := json.Marshal(node.Data)
	if err != nil {
		return nil, fmt.Errorf("vidgraph: marshal node data: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO nodes (id, project_id, type, position_x, position_y, data, status, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''))`,
		node.ID, projectID, node.Type, node.Position.X, node.Position.Y, data, node.Status, node.ErrorMessage,
	)
	if err != nil {
		return nil, fmt.Errorf("vidgraph: insert node: %w", err)
	}
	return node, nil
}

// GetNode fetches a single node by its ID. Returns nil, nil if not found.
func (s *PGStore) GetNode(ctx context.Context, nodeID string) (*vidgraph.Node, error) {
	var (
		n    vidgraph.Node
		data []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, type, position_x, position_y, data, status, COALESCE(error_message, '')
		 FROM nodes WHERE id = $1`, nodeID,
	).Scan(&n.ID, &n.Type, &n.Position.X, &n.Position.Y, &data, &n.Status, &n.ErrorMessage)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vidgraph: get node: %w", err)
	}
	if err := json.Unmarshal(data, &n.Data); err != nil {
		return nil, fmt.Errorf("vidgraph: unmarshal node data: %w", err)
	}
	return &n, nil
}

// NodeProjectID returns the project owning a node. Returns ErrNodeNotFound
// if the node doesn't exist.
func (s *PGStore) NodeProjectID(ctx context.Context, nodeID string) (string, error) {
	var projectID string
	err := s.db.QueryRow(ctx, `SELECT project_id FROM nodes WHERE id = $1`, nodeID).Scan(&projectID)
	if err != nil {
		if isNoRows(err) {
			return "", vidgraph.ErrNodeNotFound
		}
		return "", fmt.Errorf("vidgraph: node project: %w", err)
	}
	return projectID, nil
}

// ListNodes returns all nodes for a project, ordered by creation time.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListNodes(ctx context.Context, projectID string) ([]vidgraph.Node, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, type, position_x, position_y, data, status, COALESCE(error_message, '')
		 FROM nodes WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("vidgraph: list nodes: %w", err)
	}
	defer rows.Close()

	nodes := []vidgraph.Node{}
	for rows.Next() {
		var (
			n    vidgraph.Node
			data []byte
		)
		if err := rows.Scan(&n.ID, &n.Type, &n.Position.X, &n.Position.Y, &data, &n.Status, &n.ErrorMessage); err != nil {
			return nil, fmt.Errorf("vidgraph: scan node: %w", err)
		}
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("vidgraph: unmarshal node data: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vidgraph: rows nodes: %w", err)
	}
	return nodes, nil
}

// UpdateNode applies a partial update. Nil fields of the update are left
// untouched. Returns ErrNodeNotFound if the node doesn't exist.
func (s *PGStore) UpdateNode(ctx context.Context, projectID, nodeID string, update vidgraph.NodeUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if update.Position != nil {
		sets = append(sets, "position_x = "+arg(update.Position.X), "position_y = "+arg(update.Position.Y))
	}
	if update.Data != nil {
		data, err := json.Marshal(update.Data)
		if err != nil {
			return fmt.Errorf("vidgraph: marshal node data: %w", err)
		}
		sets = append(sets, "data = "+arg(data))
	}
	if update.Status != nil {
		sets = append(sets, "status = "+arg(*update.Status))
	}
	if update.ErrorMessage != nil {
		sets = append(sets, "error_message = NULLIF("+arg(*update.ErrorMessage)+", '')")
	}

	query := "UPDATE nodes SET " + strings.Join(sets, ", ") +
		" WHERE id = " + arg(nodeID) + " AND project_id = " + arg(projectID)
	ct, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("vidgraph: update node: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return vidgraph.ErrNodeNotFound
	}
	return nil
}

// DeleteNode deletes a node by its ID. Connections and jobs referencing it
// are cascade-deleted by the DB. No error if the node doesn't exist.
func (s *PGStore) DeleteNode(ctx context.Context, projectID, nodeID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM nodes WHERE id = $1 AND project_id = $2`, nodeID, projectID)
	if err != nil {
		return fmt.Errorf("vidgraph: delete node: %w", err)
	}
	return nil
}

// FinalizeNode records a job's terminal outcome on its node: status, error
// message, and on completion the produced video merged into the data bag.
// Used by the worker so a client that reloads later sees the final state.
func (s *PGStore) FinalizeNode(ctx context.Context, nodeID string, status vidgraph.NodeStatus, errMsg string, result *vidgraph.JobResult) error {
	node, err := s.GetNode(ctx, nodeID)
	if err != nil {
		return err
	}
	if node == nil {
		return vidgraph.ErrNodeNotFound
	}

	if node.Data.Video == nil {
		node.Data.Video = &vidgraph.VideoPayload{}
	}
	v := node.Data.Video
	if status == vidgraph.StatusCompleted {
		v.Progress = 100
		v.Stage = "completed"
		v.ProgressMessage = ""
		if result != nil {
			v.VideoRef = result.VideoURL
			v.ThumbnailRef = result.ThumbnailURL
		}
	}

	data, err := json.Marshal(node.Data)
	if err != nil {
		return fmt.Errorf("vidgraph: marshal node data: %w", err)
	}
	ct, err := s.db.Exec(ctx,
		`UPDATE nodes SET status = $1, error_message = NULLIF($2, ''), data = $3, updated_at = NOW() WHERE id = $4`,
		status, errMsg, data, nodeID,
	)
	if err != nil {
		return fmt.Errorf("vidgraph: finalize node: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return vidgraph.ErrNodeNotFound
	}
	return nil
}

package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS nodes (
    id            TEXT PRIMARY KEY,
    project_id    TEXT NOT NULL,
    type          TEXT NOT NULL,
    position_x    DOUBLE PRECISION NOT NULL DEFAULT 0,
    position_y    DOUBLE PRECISION NOT NULL DEFAULT 0,
    data          JSONB NOT NULL DEFAULT '{}',
    status        TEXT NOT NULL DEFAULT 'idle',
    error_message TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS connections (
    id             TEXT PRIMARY KEY,
    project_id     TEXT NOT NULL,
    source_node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    target_node_id TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    source_handle  TEXT NOT NULL DEFAULT '',
    target_handle  TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (source_node_id, target_node_id)
);

CREATE TABLE IF NOT EXISTS jobs (
    id               TEXT PRIMARY KEY,
    node_id          TEXT NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    project_id       TEXT NOT NULL,
    type             TEXT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'pending',
    progress         INT NOT NULL DEFAULT 0,
    stage            TEXT NOT NULL DEFAULT '',
    progress_message TEXT NOT NULL DEFAULT '',
    request          JSONB,
    result           JSONB,
    error            TEXT,
    operation_id     TEXT,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_nodes_project_id       ON nodes(project_id);
CREATE INDEX IF NOT EXISTS idx_connections_project_id ON connections(project_id);
CREATE INDEX IF NOT EXISTS idx_connections_source     ON connections(source_node_id);
CREATE INDEX IF NOT EXISTS idx_connections_target     ON connections(target_node_id);
CREATE INDEX IF NOT EXISTS idx_jobs_node_id           ON jobs(node_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_status            ON jobs(status, created_at);
`

// CreateSchema creates the nodes, connections and jobs tables if they don't
// exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops all vidgraph tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS jobs, connections, nodes CASCADE;`)
	return err
}

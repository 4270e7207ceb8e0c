package vidgraph

import (
	"context"
	"errors"
)

var (
	ErrNodeNotFound        = errors.New("vidgraph: node not found")
	ErrConnectionNotFound  = errors.New("vidgraph: connection not found")
	ErrJobNotFound         = errors.New("vidgraph: job not found")
	ErrSelfLoop            = errors.New("vidgraph: connection source and target are the same node")
	ErrDuplicateConnection = errors.New("vidgraph: connection between these nodes already exists")
	ErrPromptRequired      = errors.New("vidgraph: generation requires a resolved prompt")
)

// NodeUpdate is a partial persistence write for a node. Nil fields are left
// untouched server-side.
type NodeUpdate struct {
	Position     *Position   `json:"position,omitempty"`
	Data         *NodeData   `json:"data,omitempty"`
	Status       *NodeStatus `json:"status,omitempty"`
	ErrorMessage *string     `json:"error_message,omitempty"`
}

// NodePersistence stores nodes for a project.
type NodePersistence interface {
	ListNodes(ctx context.Context, projectID string) ([]Node, error)
	CreateNode(ctx context.Context, projectID string, node *Node) (*Node, error)
	UpdateNode(ctx context.Context, projectID, nodeID string, update NodeUpdate) error
	DeleteNode(ctx context.Context, projectID, nodeID string) error
}

// ConnectionPersistence stores connections for a project.
type ConnectionPersistence interface {
	ListConnections(ctx context.Context, projectID string) ([]Connection, error)
	CreateConnection(ctx context.Context, projectID string, conn *Connection) (*Connection, error)
	DeleteConnection(ctx context.Context, projectID, connectionID string) error
}

// GenerationService starts generation jobs and reports their status.
type GenerationService interface {
	// Generate requests a new generation job and returns its id.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// GetStatus returns the current state of a job. Returns ErrJobNotFound
	// when the id is unknown to the service.
	GetStatus(ctx context.Context, jobID string) (*Job, error)
	// GetLatestJobForNode returns the most recently created job for a node,
	// or nil, nil when the node has none.
	GetLatestJobForNode(ctx context.Context, nodeID string) (*Job, error)
}

// JobStore is the server-side job queue and record of truth for jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) (string, error)
	GetJob(ctx context.Context, jobID string) (*Job, error)
	GetLatestJobForNode(ctx context.Context, nodeID string) (*Job, error)
	// ClaimNextPending atomically claims the oldest pending job, flipping it
	// to processing. Returns nil, nil when the queue is empty.
	ClaimNextPending(ctx context.Context) (*Job, error)
	UpdateJobProgress(ctx context.Context, jobID string, progress int, stage, message, operationID string) error
	CompleteJob(ctx context.Context, jobID string, result *JobResult) error
	FailJob(ctx context.Context, jobID string, errMsg string) error
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/meikuraledutech/vidgraph"
)

const jobColumns = `id, node_id, project_id, type, status, progress, stage, progress_message, request, result, COALESCE(error, ''), COALESCE(operation_id, '')`

// CreateJob inserts a new job. If job.ID is empty, a UUID is auto-generated;
// an empty status defaults to pending. Returns the job ID.
func (s *PGStore) CreateJob(ctx context.Context, job *vidgraph.Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = vidgraph.JobPending
	}
	var request []byte
	if job.Request != nil {
		var err error
		if request, err = json.Marshal(job.Request); err != nil {
			return "", fmt.Errorf("vidgraph: marshal job request: %w", err)
		}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO jobs (id, node_id, project_id, type, status, progress, stage, progress_message, request, operation_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))`,
		job.ID, job.NodeID, job.ProjectID, job.Type, job.Status, job.Progress, job.Stage, job.ProgressMessage, request, job.OperationID,
	)
	if err != nil {
		return "", fmt.Errorf("vidgraph: insert job: %w", err)
	}
	return job.ID, nil
}

// GetJob fetches a job by its ID. Returns ErrJobNotFound if absent.
func (s *PGStore) GetJob(ctx context.Context, jobID string) (*vidgraph.Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, vidgraph.ErrJobNotFound
		}
		return nil, fmt.Errorf("vidgraph: get job: %w", err)
	}
	return job, nil
}

// GetLatestJobForNode returns the most recently created job for a node, or
// nil, nil when the node has none.
func (s *PGStore) GetLatestJobForNode(ctx context.Context, nodeID string) (*vidgraph.Job, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE node_id = $1 ORDER BY created_at DESC LIMIT 1`, nodeID)
	job, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vidgraph: latest job for node: %w", err)
	}
	return job, nil
}

// ClaimNextPending atomically claims the oldest pending job for a worker,
// flipping it to processing. Returns nil, nil when the queue is empty.
func (s *PGStore) ClaimNextPending(ctx context.Context) (*vidgraph.Job, error) {
	row := s.db.QueryRow(ctx,
		`UPDATE jobs SET status = 'processing', updated_at = NOW()
		 WHERE id = (
		     SELECT id FROM jobs WHERE status = 'pending'
		     ORDER BY created_at LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns)
	job, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("vidgraph: claim job: %w", err)
	}
	return job, nil
}

// UpdateJobProgress records a progress step while a job runs. An empty
// operationID keeps the stored one.
func (s *PGStore) UpdateJobProgress(ctx context.Context, jobID string, progress int, stage, message, operationID string) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = 'processing', progress = $1, stage = $2, progress_message = $3,
		        operation_id = COALESCE(NULLIF($4, ''), operation_id), updated_at = NOW()
		 WHERE id = $5`,
		progress, stage, message, operationID, jobID,
	)
	if err != nil {
		return fmt.Errorf("vidgraph: update job progress: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return vidgraph.ErrJobNotFound
	}
	return nil
}

// CompleteJob marks a job completed with its result.
func (s *PGStore) CompleteJob(ctx context.Context, jobID string, result *vidgraph.JobResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("vidgraph: marshal job result: %w", err)
	}
	ct, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = 'completed', progress = 100, result = $1, updated_at = NOW() WHERE id = $2`,
		data, jobID,
	)
	if err != nil {
		return fmt.Errorf("vidgraph: complete job: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return vidgraph.ErrJobNotFound
	}
	return nil
}

// FailJob marks a job failed with an error message.
func (s *PGStore) FailJob(ctx context.Context, jobID string, errMsg string) error {
	ct, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = 'failed', error = $1, updated_at = NOW() WHERE id = $2`,
		errMsg, jobID,
	)
	if err != nil {
		return fmt.Errorf("vidgraph: fail job: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return vidgraph.ErrJobNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*vidgraph.Job, error) {
	var (
		j       vidgraph.Job
		request []byte
		result  []byte
	)
	err := row.Scan(&j.ID, &j.NodeID, &j.ProjectID, &j.Type, &j.Status, &j.Progress,
		&j.Stage, &j.ProgressMessage, &request, &result, &j.Error, &j.OperationID)
	if err != nil {
		return nil, err
	}
	if len(request) > 0 {
		j.Request = &vidgraph.GenerationRequest{}
		if err := json.Unmarshal(request, j.Request); err != nil {
			return nil, fmt.Errorf("vidgraph: unmarshal job request: %w", err)
		}
	}
	if len(result) > 0 {
		j.Result = &vidgraph.JobResult{}
		if err := json.Unmarshal(result, j.Result); err != nil {
			return nil, fmt.Errorf("vidgraph: unmarshal job result: %w", err)
		}
	}
	return &j, nil
}

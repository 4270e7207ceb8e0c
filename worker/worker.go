// Package worker runs queued generation jobs: it claims pending jobs, drives
// the upstream video backend to completion with staged progress, and records
// the terminal outcome on both the job and its node.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/meikuraledutech/vidgraph"
	"github.com/meikuraledutech/vidgraph/events"
	"github.com/meikuraledutech/vidgraph/veo"
)

// NodeFinalizer records a job's terminal outcome on its node so a client
// that reloads later sees the final state even if it never polled.
type NodeFinalizer interface {
	FinalizeNode(ctx context.Context, nodeID string, status vidgraph.NodeStatus, errMsg string, result *vidgraph.JobResult) error
}

// Config wires a Worker to its collaborators.
type Config struct {
	Jobs    vidgraph.JobStore
	Nodes   NodeFinalizer
	Backend veo.Backend
	Events  *events.Publisher // optional
	Logger  *zap.SugaredLogger

	ClaimInterval time.Duration // how often to look for pending jobs
	PollInterval  time.Duration // how often to poll the backend per job
	MaxPollTime   time.Duration // per-job wall-clock budget
}

// Worker claims and runs generation jobs, one at a time per Worker.
type Worker struct {
	cfg Config
	log *zap.SugaredLogger
}

// New creates a Worker.
func New(cfg Config) *Worker {
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxPollTime <= 0 {
		cfg.MaxPollTime = 10 * time.Minute
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Worker{cfg: cfg, log: log.With("component", "GenerationWorker")}
}

// Start launches the claim loop. It runs until ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.cfg.ClaimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job, err := w.cfg.Jobs.ClaimNextPending(ctx)
				if err != nil {
					if ctx.Err() == nil {
						w.log.Warnw("claim failed", "error", err)
					}
					continue
				}
				if job == nil {
					continue
				}
				w.runSafely(ctx, job)
			}
		}
	}()
}

// runSafely marks the job failed if the handler panics.
func (w *Worker) runSafely(ctx context.Context, job *vidgraph.Job) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorw("job handler panic", "job_id", job.ID, "panic", r)
			w.fail(ctx, job, fmt.Sprintf("internal error: %v", r))
		}
	}()
	w.run(ctx, job)
}

func (w *Worker) run(ctx context.Context, job *vidgraph.Job) {
	log := w.log.With("job_id", job.ID, "node_id", job.NodeID)
	if job.Request == nil {
		w.fail(ctx, job, "job has no generation request")
		return
	}

	w.progress(ctx, job, 5, "initializing", "Initializing video generation...", "")

	operationID, err := w.cfg.Backend.Start(ctx, veo.StartRequest{
		Prompt:      job.Request.Prompt,
		ImageURL:    job.Request.ImageRef,
		Resolution:  job.Request.Resolution,
		AspectRatio: job.Request.AspectRatio,
		Duration:    job.Request.Duration,
	})
	if err != nil {
		w.fail(ctx, job, rewriteBackendError(err.Error()))
		return
	}
	log.Infow("generation started", "operation_id", operationID)
	w.progress(ctx, job, 10, "generating", "Video generation in progress...", operationID)

	deadline := time.Now().Add(w.cfg.MaxPollTime)
	estimated := 10
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}

		op, err := w.cfg.Backend.Poll(ctx, operationID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transient backend hiccups don't fail the job; the deadline
			// bounds how long we keep trying.
			log.Warnw("backend poll failed", "operation_id", operationID, "error", err)
		} else if op.Done {
			if op.Error != "" {
				w.fail(ctx, job, rewriteBackendError(op.Error))
				return
			}
			w.progress(ctx, job, 85, "downloading", "Retrieving generated video...", "")
			w.progress(ctx, job, 95, "finalizing", "Finalizing...", "")
			w.complete(ctx, job, &vidgraph.JobResult{VideoURL: op.VideoURL, ThumbnailURL: op.ThumbnailURL})
			return
		} else {
			if estimated < 80 {
				estimated += 3
			}
			w.progress(ctx, job, estimated, "generating", "Video generation in progress...", "")
		}

		if time.Now().After(deadline) {
			w.fail(ctx, job, "video generation timed out")
			return
		}
	}
}

func (w *Worker) progress(ctx context.Context, job *vidgraph.Job, pct int, stage, message, operationID string) {
	if err := w.cfg.Jobs.UpdateJobProgress(ctx, job.ID, pct, stage, message, operationID); err != nil {
		w.log.Warnw("record progress failed", "job_id", job.ID, "error", err)
	}
	w.publish(ctx, job, events.NodeEvent{
		Event:    events.EventJobProgress,
		NodeID:   job.NodeID,
		JobID:    job.ID,
		Status:   vidgraph.StatusProcessing,
		Progress: pct,
		Stage:    stage,
		Message:  message,
	})
}

func (w *Worker) complete(ctx context.Context, job *vidgraph.Job, result *vidgraph.JobResult) {
	if err := w.cfg.Jobs.CompleteJob(ctx, job.ID, result); err != nil {
		w.log.Errorw("complete job failed", "job_id", job.ID, "error", err)
	}
	if err := w.cfg.Nodes.FinalizeNode(ctx, job.NodeID, vidgraph.StatusCompleted, "", result); err != nil {
		w.log.Errorw("finalize node failed", "node_id", job.NodeID, "error", err)
	}
	w.log.Infow("generation completed", "job_id", job.ID, "node_id", job.NodeID)
	w.publish(ctx, job, events.NodeEvent{
		Event:    events.EventJobProgress,
		NodeID:   job.NodeID,
		JobID:    job.ID,
		Status:   vidgraph.StatusCompleted,
		Progress: 100,
	})
}

func (w *Worker) fail(ctx context.Context, job *vidgraph.Job, msg string) {
	if err := w.cfg.Jobs.FailJob(ctx, job.ID, msg); err != nil {
		w.log.Errorw("fail job failed", "job_id", job.ID, "error", err)
	}
	if err := w.cfg.Nodes.FinalizeNode(ctx, job.NodeID, vidgraph.StatusFailed, msg, nil); err != nil {
		w.log.Errorw("finalize node failed", "node_id", job.NodeID, "error", err)
	}
	w.log.Warnw("generation failed", "job_id", job.ID, "node_id", job.NodeID, "error", msg)
	w.publish(ctx, job, events.NodeEvent{
		Event:   events.EventJobProgress,
		NodeID:  job.NodeID,
		JobID:   job.ID,
		Status:  vidgraph.StatusFailed,
		Message: msg,
	})
}

func (w *Worker) publish(ctx context.Context, job *vidgraph.Job, ev events.NodeEvent) {
	if w.cfg.Events == nil || job.ProjectID == "" {
		return
	}
	_ = w.cfg.Events.Publish(ctx, job.ProjectID, ev)
}

// rewriteBackendError turns raw backend errors into messages a user can act
// on.
func rewriteBackendError(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "safety") || strings.Contains(lower, "blocked"):
		return "Content blocked by safety filters. Try modifying your prompt to avoid potentially sensitive content."
	case strings.Contains(lower, "quota"):
		return "API quota exceeded. Please try again later."
	default:
		return "Video generation failed: " + msg
	}
}

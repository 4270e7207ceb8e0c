// Package poller owns the asynchronous job state machine for video nodes:
// it triggers generation, polls job status until a terminal state, and
// reconciles in-flight jobs after a reload.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meikuraledutech/vidgraph"
	"github.com/meikuraledutech/vidgraph/flow"
	"github.com/meikuraledutech/vidgraph/graph"
)

var ErrNotVideoNode = errors.New("vidgraph: generation can only be triggered on video nodes")

// Default poll timings. A transient status-check failure lengthens the
// interval instead of stopping the loop.
const (
	DefaultInitialDelay  = 2 * time.Second
	DefaultPollInterval  = 3 * time.Second
	DefaultErrorInterval = 10 * time.Second
)

const (
	defaultResolution  = "1080p"
	defaultAspectRatio = "16:9"
	defaultDuration    = 8
)

// jobLostMessage distinguishes "the job vanished" from "generation failed"
// when a node is reset to idle.
const jobLostMessage = "generation job could not be found; the node was reset"

// Config wires a Poller to its collaborators. Zero intervals fall back to
// the defaults; tests inject short ones.
type Config struct {
	Store    *graph.Store
	Service  vidgraph.GenerationService
	Resolver *flow.Resolver
	Logger   *zap.SugaredLogger

	InitialDelay  time.Duration
	PollInterval  time.Duration
	ErrorInterval time.Duration
}

// Poller runs one cancellable poll loop per actively generating node. Each
// loop is strictly sequential: the next status check is scheduled only after
// the previous one resolved, so status updates for a node never race.
type Poller struct {
	cfg Config
	log *zap.SugaredLogger

	mu     sync.Mutex
	loops  map[string]*loopHandle
	closed bool
	wg     sync.WaitGroup
}

type loopHandle struct {
	cancel context.CancelFunc
}

// New creates a Poller. Call Close to cancel all loops on shutdown.
func New(cfg Config) *Poller {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ErrorInterval <= 0 {
		cfg.ErrorInterval = DefaultErrorInterval
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Poller{
		cfg:   cfg,
		log:   log.With("component", "JobPoller"),
		loops: map[string]*loopHandle{},
	}
}

// Trigger starts generation for a video node. It is rejected without any
// external call when the node's inputs do not resolve to a prompt. On
// acceptance the node transitions to processing and a poll loop begins
// after the initial delay.
func (p *Poller) Trigger(ctx context.Context, nodeID string) error {
	node, ok := p.cfg.Store.Node(nodeID)
	if !ok {
		return vidgraph.ErrNodeNotFound
	}
	if node.Type != vidgraph.NodeTypeVideo {
		return ErrNotVideoNode
	}

	inputs := p.cfg.Resolver.Resolve(nodeID)
	if inputs.PromptText == "" {
		return vidgraph.ErrPromptRequired
	}

	p.Stop(nodeID)

	req := vidgraph.GenerationRequest{
		NodeID:      nodeID,
		Prompt:      inputs.PromptText,
		ImageRef:    inputs.ImageRef,
		Resolution:  defaultResolution,
		AspectRatio: defaultAspectRatio,
		Duration:    defaultDuration,
	}
	if v := node.Data.Video; v != nil {
		if v.Resolution != "" {
			req.Resolution = v.Resolution
		}
		if v.AspectRatio != "" {
			req.AspectRatio = v.AspectRatio
		}
		if v.Duration > 0 {
			req.Duration = v.Duration
		}
	}

	_ = p.cfg.Store.SetNodeStatus(ctx, nodeID, vidgraph.StatusProcessing, "")
	_ = p.cfg.Store.UpdateNodeData(ctx, nodeID, vidgraph.NodePatch{Video: &vidgraph.VideoPatch{
		Progress:        intPtr(0),
		Stage:           strPtr("starting"),
		ProgressMessage: strPtr(""),
	}})

	jobID, err := p.cfg.Service.Generate(ctx, req)
	if err != nil {
		msg := fmt.Sprintf("failed to start generation: %v", err)
		_ = p.cfg.Store.SetNodeStatus(ctx, nodeID, vidgraph.StatusFailed, msg)
		_ = p.cfg.Store.UpdateNodeData(ctx, nodeID, vidgraph.NodePatch{Video: &vidgraph.VideoPatch{
			ProgressMessage: strPtr(msg),
		}})
		return fmt.Errorf("vidgraph: start generation: %w", err)
	}

	p.log.Infow("generation started", "node_id", nodeID, "job_id", jobID)
	p.startLoop(nodeID, jobID, p.cfg.InitialDelay)
	return nil
}

// Resume reconciles nodes left in processing by a previous session. A still
// running job resumes polling transparently; an already terminal job is
// applied immediately without re-issuing a generation request; a missing
// job resets the node to idle with an explanatory message.
func (p *Poller) Resume(ctx context.Context) {
	for _, node := range p.cfg.Store.Nodes() {
		if node.Status != vidgraph.StatusProcessing {
			continue
		}
		job, err := p.cfg.Service.GetLatestJobForNode(ctx, node.ID)
		if errors.Is(err, vidgraph.ErrJobNotFound) || (err == nil && job == nil) {
			p.log.Infow("no job found on resume, resetting node", "node_id", node.ID)
			p.resetToIdle(ctx, node.ID)
			continue
		}
		if err != nil {
			// Transient lookup failure: leave the node processing so a later
			// resume can pick it up.
			p.log.Warnw("resume job lookup failed", "node_id", node.ID, "error", err)
			continue
		}
		if job.Status.Terminal() {
			p.log.Infow("reconciling finished job on resume", "node_id", node.ID, "job_id", job.ID, "status", job.Status)
			p.apply(ctx, node.ID, job)
			continue
		}
		p.apply(ctx, node.ID, job)
		p.startLoop(node.ID, job.ID, p.cfg.PollInterval)
	}
}

// Stop cancels the poll loop for a node, if any. It does not cancel the
// remote job.
func (p *Poller) Stop(nodeID string) {
	p.mu.Lock()
	h, ok := p.loops[nodeID]
	if ok {
		delete(p.loops, nodeID)
	}
	p.mu.Unlock()
	if ok {
		h.cancel()
	}
}

// Active reports whether a poll loop is running for the node.
func (p *Poller) Active(nodeID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.loops[nodeID]
	return ok
}

// Close cancels every poll loop and waits for them to exit.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	for id, h := range p.loops {
		h.cancel()
		delete(p.loops, id)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) startLoop(nodeID, jobID string, delay time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if old, ok := p.loops[nodeID]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &loopHandle{cancel: cancel}
	p.loops[nodeID] = h
	p.wg.Add(1)
	p.mu.Unlock()

	go p.run(ctx, h, nodeID, jobID, delay)
}

func (p *Poller) run(ctx context.Context, h *loopHandle, nodeID, jobID string, delay time.Duration) {
	defer p.wg.Done()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		job, err := p.cfg.Service.GetStatus(ctx, jobID)
		switch {
		case errors.Is(err, vidgraph.ErrJobNotFound):
			// The job truly vanished. Stop rather than poll forever.
			p.log.Warnw("job not found, resetting node", "node_id", nodeID, "job_id", jobID)
			p.resetToIdle(ctx, nodeID)
			p.clearLoop(nodeID, h)
			return
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			msg := fmt.Sprintf("status check failed: %v; retrying", err)
			p.log.Warnw("poll failed", "node_id", nodeID, "job_id", jobID, "error", err)
			_ = p.cfg.Store.UpdateNodeData(ctx, nodeID, vidgraph.NodePatch{Video: &vidgraph.VideoPatch{
				ProgressMessage: strPtr(msg),
			}})
			timer.Reset(p.cfg.ErrorInterval)
			continue
		}

		if p.apply(ctx, nodeID, job) {
			p.clearLoop(nodeID, h)
			return
		}
		timer.Reset(p.cfg.PollInterval)
	}
}

// apply folds a job report into the node. Returns true when the job is
// terminal and polling should stop.
func (p *Poller) apply(ctx context.Context, nodeID string, job *vidgraph.Job) bool {
	switch job.Status {
	case vidgraph.JobCompleted:
		patch := &vidgraph.VideoPatch{
			Progress:        intPtr(100),
			Stage:           strPtr("completed"),
			ProgressMessage: strPtr(""),
		}
		if job.Result != nil {
			patch.VideoRef = strPtr(job.Result.VideoURL)
			if job.Result.ThumbnailURL != "" {
				patch.ThumbnailRef = strPtr(job.Result.ThumbnailURL)
			}
		}
		_ = p.cfg.Store.UpdateNodeData(ctx, nodeID, vidgraph.NodePatch{Video: patch})
		_ = p.cfg.Store.SetNodeStatus(ctx, nodeID, vidgraph.StatusCompleted, "")
		p.log.Infow("generation completed", "node_id", nodeID, "job_id", job.ID)
		return true

	case vidgraph.JobFailed:
		_ = p.cfg.Store.UpdateNodeData(ctx, nodeID, vidgraph.NodePatch{Video: &vidgraph.VideoPatch{
			ProgressMessage: strPtr(job.Error),
		}})
		_ = p.cfg.Store.SetNodeStatus(ctx, nodeID, vidgraph.StatusFailed, job.Error)
		p.log.Warnw("generation failed", "node_id", nodeID, "job_id", job.ID, "error", job.Error)
		return true

	default:
		_ = p.cfg.Store.UpdateNodeData(ctx, nodeID, vidgraph.NodePatch{Video: &vidgraph.VideoPatch{
			Progress:        intPtr(job.Progress),
			Stage:           strPtr(job.Stage),
			ProgressMessage: strPtr(job.ProgressMessage),
		}})
		return false
	}
}

func (p *Poller) resetToIdle(ctx context.Context, nodeID string) {
	_ = p.cfg.Store.UpdateNodeData(ctx, nodeID, vidgraph.NodePatch{Video: &vidgraph.VideoPatch{
		Progress:        intPtr(0),
		Stage:           strPtr(""),
		ProgressMessage: strPtr(jobLostMessage),
	}})
	_ = p.cfg.Store.SetNodeStatus(ctx, nodeID, vidgraph.StatusIdle, "")
}

func (p *Poller) clearLoop(nodeID string, h *loopHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loops[nodeID] == h {
		delete(p.loops, nodeID)
	}
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

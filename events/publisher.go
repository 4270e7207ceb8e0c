// Package events broadcasts node and job progress updates over redis
// pub/sub, one channel per project, so any frontend transport can fan them
// out to connected clients.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/meikuraledutech/vidgraph"
)

// Event kinds published on a project channel.
const (
	EventNodeCreated = "node_created"
	EventNodeUpdated = "node_updated"
	EventNodeDeleted = "node_deleted"
	EventJobProgress = "job_progress"
)

// NodeEvent is one update on a project channel.
type NodeEvent struct {
	Event    string              `json:"event"`
	NodeID   string              `json:"node_id"`
	JobID    string              `json:"job_id,omitempty"`
	Status   vidgraph.NodeStatus `json:"status,omitempty"`
	Progress int                 `json:"progress,omitempty"`
	Stage    string              `json:"stage,omitempty"`
	Message  string              `json:"message,omitempty"`
}

// Publisher writes project events to redis.
type Publisher struct {
	rdb *redis.Client
	log *zap.SugaredLogger
}

// NewPublisher creates a Publisher on an existing redis client.
func NewPublisher(rdb *redis.Client, log *zap.SugaredLogger) *Publisher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Publisher{rdb: rdb, log: log.With("component", "EventPublisher")}
}

// Channel returns the pub/sub channel name for a project.
func Channel(projectID string) string {
	return "vidgraph:project:" + projectID
}

// Publish sends one event to the project channel. Publishing is
// fire-and-forget from the caller's point of view: a failure is logged and
// returned but must not block graph or job processing.
func (p *Publisher) Publish(ctx context.Context, projectID string, ev NodeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("vidgraph: marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, Channel(projectID), payload).Err(); err != nil {
		p.log.Warnw("publish failed", "project_id", projectID, "event", ev.Event, "error", err)
		return fmt.Errorf("vidgraph: publish event: %w", err)
	}
	return nil
}

// Subscribe listens on a project channel and delivers decoded events until
// the context is canceled. The returned stop function closes the
// subscription and the channel.
func (p *Publisher) Subscribe(ctx context.Context, projectID string) (<-chan NodeEvent, func()) {
	sub := p.rdb.Subscribe(ctx, Channel(projectID))
	out := make(chan NodeEvent)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev NodeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				p.log.Warnw("drop undecodable event", "project_id", projectID, "error", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = sub.Close() }
}

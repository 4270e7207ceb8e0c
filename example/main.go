// Command example runs the canvas engine end to end against in-memory
// persistence and a scripted generation service: it builds a prompt→video
// graph, resolves the video node's inputs, triggers generation and waits for
// the poller to reconcile the result.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/meikuraledutech/vidgraph"
	"github.com/meikuraledutech/vidgraph/flow"
	"github.com/meikuraledutech/vidgraph/graph"
	"github.com/meikuraledutech/vidgraph/poller"
	"github.com/meikuraledutech/vidgraph/router"
)

func main() {
	ctx := context.Background()

	mem := newMemPersistence()
	store := graph.New(graph.Config{
		ProjectID:   "demo",
		Nodes:       mem,
		Connections: mem,
	})

	// Build the canvas: a prompt node feeding a video node.
	promptNode, err := store.CreateNode(ctx, vidgraph.NodeTypePrompt, vidgraph.Position{X: 100, Y: 200},
		vidgraph.NodeData{Prompt: &vidgraph.PromptPayload{PromptText: "a cat surfing at sunset"}})
	if err != nil {
		log.Fatalf("create prompt node: %v", err)
	}
	videoNode, err := store.CreateNode(ctx, vidgraph.NodeTypeVideo, vidgraph.Position{X: 520, Y: 180},
		vidgraph.NodeData{Video: &vidgraph.VideoPayload{Resolution: "720p", Duration: 6}})
	if err != nil {
		log.Fatalf("create video node: %v", err)
	}

	// Connect them with a drag gesture, the way the canvas would.
	r := router.New(store)
	if err := r.BeginDrag(promptNode.ID, vidgraph.HandleOutput); err != nil {
		log.Fatalf("begin drag: %v", err)
	}
	target := router.Anchor(videoNode, vidgraph.HandlePromptInput)
	r.MoveDrag(target.X, target.Y)
	conn, err := r.CompleteDrag(ctx, videoNode.ID, vidgraph.HandlePromptInput)
	if err != nil {
		log.Fatalf("complete drag: %v", err)
	}
	fmt.Println("connected:", conn.SourceNodeID, "→", conn.TargetNodeID)

	resolver := flow.New(store)
	inputs := resolver.Resolve(videoNode.ID)
	fmt.Printf("resolved inputs: prompt=%q image=%q\n", inputs.PromptText, inputs.ImageRef)

	// Trigger generation against a scripted service and watch it finish.
	p := poller.New(poller.Config{
		Store:         store,
		Service:       newScriptedService(),
		Resolver:      resolver,
		InitialDelay:  50 * time.Millisecond,
		PollInterval:  50 * time.Millisecond,
		ErrorInterval: 100 * time.Millisecond,
	})
	defer p.Close()

	if err := p.Trigger(ctx, videoNode.ID); err != nil {
		log.Fatalf("trigger: %v", err)
	}

	for i := 0; i < 100; i++ {
		time.Sleep(50 * time.Millisecond)
		node, _ := store.Node(videoNode.ID)
		if node.Status == vidgraph.StatusCompleted || node.Status == vidgraph.StatusFailed {
			break
		}
	}

	final, _ := store.Node(videoNode.ID)
	fmt.Println("final node state:")
	printJSON(final)
}

// memPersistence keeps nodes and connections in maps; good enough to run
// the engine without a database.
type memPersistence struct {
	mu    sync.Mutex
	nodes map[string]vidgraph.Node
	conns map[string]vidgraph.Connection
}

func newMemPersistence() *memPersistence {
	return &memPersistence{nodes: map[string]vidgraph.Node{}, conns: map[string]vidgraph.Connection{}}
}

func (m *memPersistence) ListNodes(ctx context.Context, projectID string) ([]vidgraph.Node, error) {
	return nil, nil
}

func (m *memPersistence) CreateNode(ctx context.Context, projectID string, node *vidgraph.Node) (*vidgraph.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[node.ID] = *node
	return node, nil
}

func (m *memPersistence) UpdateNode(ctx context.Context, projectID, nodeID string, update vidgraph.NodeUpdate) error {
	return nil
}

func (m *memPersistence) DeleteNode(ctx context.Context, projectID, nodeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, nodeID)
	return nil
}

func (m *memPersistence) ListConnections(ctx context.Context, projectID string) ([]vidgraph.Connection, error) {
	return nil, nil
}

func (m *memPersistence) CreateConnection(ctx context.Context, projectID string, conn *vidgraph.Connection) (*vidgraph.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn.ID] = *conn
	return conn, nil
}

func (m *memPersistence) DeleteConnection(ctx context.Context, projectID, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connectionID)
	return nil
}

// scriptedService reports processing twice, then completed.
type scriptedService struct {
	mu    sync.Mutex
	polls int
}

func newScriptedService() *scriptedService { return &scriptedService{} }

func (s *scriptedService) Generate(ctx context.Context, req vidgraph.GenerationRequest) (string, error) {
	fmt.Printf("generate called: prompt=%q resolution=%s duration=%d\n", req.Prompt, req.Resolution, req.Duration)
	return "job-1", nil
}

func (s *scriptedService) GetStatus(ctx context.Context, jobID string) (*vidgraph.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if s.polls < 3 {
		return &vidgraph.Job{
			ID: jobID, Status: vidgraph.JobProcessing,
			Progress: s.polls * 30, Stage: "generating",
		}, nil
	}
	return &vidgraph.Job{
		ID: jobID, Status: vidgraph.JobCompleted, Progress: 100,
		Result: &vidgraph.JobResult{VideoURL: "https://cdn.example.com/videos/demo.mp4"},
	}, nil
}

func (s *scriptedService) GetLatestJobForNode(ctx context.Context, nodeID string) (*vidgraph.Job, error) {
	return nil, nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

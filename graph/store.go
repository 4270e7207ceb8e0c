// Package graph holds the canonical in-memory node and connection
// collections for one project and funnels every mutation through a single
// store so the dedup, self-loop and cascade invariants hold everywhere.
package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meikuraledutech/vidgraph"
)

// DefaultMoveDebounce is how long rapid position updates for one node are
// collapsed before a single persistence write goes out.
const DefaultMoveDebounce = 500 * time.Millisecond

const persistTimeout = 10 * time.Second

// Config wires a Store to its persistence collaborators.
type Config struct {
	ProjectID   string
	Nodes       vidgraph.NodePersistence
	Connections vidgraph.ConnectionPersistence
	Logger      *zap.SugaredLogger
	// MoveDebounce overrides DefaultMoveDebounce when > 0.
	MoveDebounce time.Duration
}

// Store is the single source of truth for nodes and connections within one
// project. All mutations are serialized through its mutex; persistence
// writes are best-effort and never roll back an applied in-memory update.
type Store struct {
	mu  sync.Mutex
	cfg Config
	log *zap.SugaredLogger

	nodes     map[string]*vidgraph.Node
	nodeOrder []string
	conns     map[string]*vidgraph.Connection
	connOrder []string

	// moveTimers holds the pending debounced position write per node,
	// scoped to this instance.
	moveTimers map[string]*time.Timer

	onNodeDeleted func(nodeID string)
	closed        bool
}

// New creates an empty Store. Call Load to hydrate it from persistence.
func New(cfg Config) *Store {
	if cfg.MoveDebounce <= 0 {
		cfg.MoveDebounce = DefaultMoveDebounce
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{
		cfg:        cfg,
		log:        log.With("component", "GraphStore", "project_id", cfg.ProjectID),
		nodes:      map[string]*vidgraph.Node{},
		conns:      map[string]*vidgraph.Connection{},
		moveTimers: map[string]*time.Timer{},
	}
}

// OnNodeDeleted registers a hook invoked after a node (and its connections)
// has been removed. The poller uses it to cancel the node's poll loop.
func (s *Store) OnNodeDeleted(f func(nodeID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNodeDeleted = f
}

// Load replaces the in-memory collections with the persisted state.
func (s *Store) Load(ctx context.Context) error {
	nodes, err := s.cfg.Nodes.ListNodes(ctx, s.cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("vidgraph: load nodes: %w", err)
	}
	conns, err := s.cfg.Connections.ListConnections(ctx, s.cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("vidgraph: load connections: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]*vidgraph.Node, len(nodes))
	s.nodeOrder = s.nodeOrder[:0]
	for i := range nodes {
		n := nodes[i]
		s.nodes[n.ID] = &n
		s.nodeOrder = append(s.nodeOrder, n.ID)
	}
	s.conns = make(map[string]*vidgraph.Connection, len(conns))
	s.connOrder = s.connOrder[:0]
	for i := range conns {
		c := conns[i]
		s.conns[c.ID] = &c
		s.connOrder = append(s.connOrder, c.ID)
	}
	return nil
}

// CreateNode adds a node locally and writes it through. The local add always
// succeeds; a persistence failure is returned alongside the created node and
// the in-memory state is kept.
func (s *Store) CreateNode(ctx context.Context, typ vidgraph.NodeType, pos vidgraph.Position, data vidgraph.NodeData) (vidgraph.Node, error) {
	node := vidgraph.Node{
		ID:       uuid.NewString(),
		Type:     typ,
		Position: pos,
		Data:     data.Clone(),
		Status:   vidgraph.StatusIdle,
	}

	s.mu.Lock()
	stored := node
	s.nodes[node.ID] = &stored
	s.nodeOrder = append(s.nodeOrder, node.ID)
	s.mu.Unlock()

	if _, err := s.cfg.Nodes.CreateNode(ctx, s.cfg.ProjectID, &node); err != nil {
		s.log.Warnw("persist node create failed", "node_id", node.ID, "error", err)
		return node, fmt.Errorf("vidgraph: persist node: %w", err)
	}
	return node, nil
}

// Node returns a snapshot of the node, if present.
func (s *Store) Node(nodeID string) (vidgraph.Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeID]
	if !ok {
		return vidgraph.Node{}, false
	}
	return snapshot(n), true
}

// Nodes returns snapshots of all nodes in creation order.
func (s *Store) Nodes() []vidgraph.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vidgraph.Node, 0, len(s.nodeOrder))
	for _, id := range s.nodeOrder {
		out = append(out, snapshot(s.nodes[id]))
	}
	return out
}

// Connections returns all connections in creation order.
func (s *Store) Connections() []vidgraph.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vidgraph.Connection, 0, len(s.connOrder))
	for _, id := range s.connOrder {
		out = append(out, *s.conns[id])
	}
	return out
}

// InboundConnections returns the connections targeting nodeID in creation
// order. The resolver depends on this ordering for its
// most-recently-created-wins rule.
func (s *Store) InboundConnections(nodeID string) []vidgraph.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []vidgraph.Connection
	for _, id := range s.connOrder {
		if c := s.conns[id]; c.TargetNodeID == nodeID {
			out = append(out, *c)
		}
	}
	return out
}

// UpdateNodeData merges the patch into the node's data and writes the merged
// data through. No-op if the node is absent.
func (s *Store) UpdateNodeData(ctx context.Context, nodeID string, patch vidgraph.NodePatch) error {
	s.mu.Lock()
	n, ok := s.nodes[nodeID]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	patch.Apply(&n.Data)
	data := n.Data.Clone()
	s.mu.Unlock()

	if err := s.cfg.Nodes.UpdateNode(ctx, s.cfg.ProjectID, nodeID, vidgraph.NodeUpdate{Data: &data}); err != nil {
		s.log.Warnw("persist node data failed", "node_id", nodeID, "error", err)
		return fmt.Errorf("vidgraph: persist node data: %w", err)
	}
	return nil
}

// SetNodeStatus updates the node's status and error message and writes them
// through together with the current data.
func (s *Store) SetNodeStatus(ctx context.Context, nodeID string, status vidgraph.NodeStatus, errMsg string) error {
	s.mu.Lock()
	n, ok := s.nodes[nodeID]
	if !ok {
		s.mu.Unlock()
		return vidgraph.ErrNodeNotFound
	}
	n.Status = status
	n.ErrorMessage = errMsg
	data := n.Data.Clone()
	s.mu.Unlock()

	update := vidgraph.NodeUpdate{Status: &status, ErrorMessage: &errMsg, Data: &data}
	if err := s.cfg.Nodes.UpdateNode(ctx, s.cfg.ProjectID, nodeID, update); err != nil {
		s.log.Warnw("persist node status failed", "node_id", nodeID, "error", err)
		return fmt.Errorf("vidgraph: persist node status: %w", err)
	}
	return nil
}

// MoveNode sets the node's position immediately and schedules a debounced
// persistence write. Only the last position within the debounce window is
// sent. No-op if the node is absent.
func (s *Store) MoveNode(nodeID string, x, y float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[nodeID]
	if !ok || s.closed {
		return
	}
	n.Position = vidgraph.Position{X: x, Y: y}

	if t, ok := s.moveTimers[nodeID]; ok {
		t.Stop()
	}
	s.moveTimers[nodeID] = time.AfterFunc(s.cfg.MoveDebounce, func() {
		s.flushMove(nodeID)
	})
}

func (s *Store) flushMove(nodeID string) {
	s.mu.Lock()
	delete(s.moveTimers, nodeID)
	n, ok := s.nodes[nodeID]
	if !ok {
		s.mu.Unlock()
		return
	}
	pos := n.Position
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.cfg.Nodes.UpdateNode(ctx, s.cfg.ProjectID, nodeID, vidgraph.NodeUpdate{Position: &pos}); err != nil {
		s.log.Warnw("persist node position failed", "node_id", nodeID, "error", err)
	}
}

// DeleteNode removes the node and, atomically with it, every connection
// that references it as source or target. Any pending debounced move for
// the node is dropped.
func (s *Store) DeleteNode(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	if _, ok := s.nodes[nodeID]; !ok {
		s.mu.Unlock()
		return vidgraph.ErrNodeNotFound
	}
	if t, ok := s.moveTimers[nodeID]; ok {
		t.Stop()
		delete(s.moveTimers, nodeID)
	}
	delete(s.nodes, nodeID)
	s.nodeOrder = remove(s.nodeOrder, nodeID)

	kept := s.connOrder[:0]
	for _, id := range s.connOrder {
		c := s.conns[id]
		if c.SourceNodeID == nodeID || c.TargetNodeID == nodeID {
			delete(s.conns, id)
			continue
		}
		kept = append(kept, id)
	}
	s.connOrder = kept
	hook := s.onNodeDeleted
	s.mu.Unlock()

	if hook != nil {
		hook(nodeID)
	}

	// Persistence cascades connection deletes with the node.
	if err := s.cfg.Nodes.DeleteNode(ctx, s.cfg.ProjectID, nodeID); err != nil {
		s.log.Warnw("persist node delete failed", "node_id", nodeID, "error", err)
		return fmt.Errorf("vidgraph: persist node delete: %w", err)
	}
	return nil
}

// CreateConnection appends a connection between two nodes. Self-loops and
// duplicate (source, target) pairs are rejected without any state change or
// persistence call.
func (s *Store) CreateConnection(ctx context.Context, sourceNodeID, targetNodeID, sourceHandle, targetHandle string) (*vidgraph.Connection, error) {
	if sourceNodeID == targetNodeID {
		return nil, vidgraph.ErrSelfLoop
	}

	s.mu.Lock()
	if _, ok := s.nodes[sourceNodeID]; !ok {
		s.mu.Unlock()
		return nil, vidgraph.ErrNodeNotFound
	}
	if _, ok := s.nodes[targetNodeID]; !ok {
		s.mu.Unlock()
		return nil, vidgraph.ErrNodeNotFound
	}
	for _, id := range s.connOrder {
		c := s.conns[id]
		if c.SourceNodeID == sourceNodeID && c.TargetNodeID == targetNodeID {
			s.mu.Unlock()
			return nil, vidgraph.ErrDuplicateConnection
		}
	}
	conn := vidgraph.Connection{
		ID:           uuid.NewString(),
		SourceNodeID: sourceNodeID,
		TargetNodeID: targetNodeID,
		SourceHandle: sourceHandle,
		TargetHandle: targetHandle,
	}
	stored := conn
	s.conns[conn.ID] = &stored
	s.connOrder = append(s.connOrder, conn.ID)
	s.mu.Unlock()

	if _, err := s.cfg.Connections.CreateConnection(ctx, s.cfg.ProjectID, &conn); err != nil {
		s.log.Warnw("persist connection create failed", "connection_id", conn.ID, "error", err)
		return &conn, fmt.Errorf("vidgraph: persist connection: %w", err)
	}
	return &conn, nil
}

// DeleteConnection removes the connection if present.
func (s *Store) DeleteConnection(ctx context.Context, connectionID string) error {
	s.mu.Lock()
	if _, ok := s.conns[connectionID]; !ok {
		s.mu.Unlock()
		return vidgraph.ErrConnectionNotFound
	}
	delete(s.conns, connectionID)
	s.connOrder = remove(s.connOrder, connectionID)
	s.mu.Unlock()

	if err := s.cfg.Connections.DeleteConnection(ctx, s.cfg.ProjectID, connectionID); err != nil {
		s.log.Warnw("persist connection delete failed", "connection_id", connectionID, "error", err)
		return fmt.Errorf("vidgraph: persist connection delete: %w", err)
	}
	return nil
}

// Close cancels all pending debounced writes. The store stays readable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.moveTimers {
		t.Stop()
		delete(s.moveTimers, id)
	}
}

func snapshot(n *vidgraph.Node) vidgraph.Node {
	out := *n
	out.Data = n.Data.Clone()
	return out
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

package graph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/vidgraph"
)

type positionWrite struct {
	nodeID string
	pos    vidgraph.Position
}

// fakePersistence records writes so tests can assert on persistence traffic.
type fakePersistence struct {
	mu             sync.Mutex
	nodes          []vidgraph.Node
	conns          []vidgraph.Connection
	positionWrites []positionWrite
	dataWrites     int
	nodeDeletes    []string
	connDeletes    []string
}

func (f *fakePersistence) ListNodes(ctx context.Context, projectID string) ([]vidgraph.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]vidgraph.Node(nil), f.nodes...), nil
}

func (f *fakePersistence) CreateNode(ctx context.Context, projectID string, node *vidgraph.Node) (*vidgraph.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes = append(f.nodes, *node)
	return node, nil
}

func (f *fakePersistence) UpdateNode(ctx context.Context, projectID, nodeID string, update vidgraph.NodeUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if update.Position != nil {
		f.positionWrites = append(f.positionWrites, positionWrite{nodeID: nodeID, pos: *update.Position})
	}
	if update.Data != nil {
		f.dataWrites++
	}
	return nil
}

func (f *fakePersistence) DeleteNode(ctx context.Context, projectID, nodeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodeDeletes = append(f.nodeDeletes, nodeID)
	return nil
}

func (f *fakePersistence) ListConnections(ctx context.Context, projectID string) ([]vidgraph.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]vidgraph.Connection(nil), f.conns...), nil
}

func (f *fakePersistence) CreateConnection(ctx context.Context, projectID string, conn *vidgraph.Connection) (*vidgraph.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns = append(f.conns, *conn)
	return conn, nil
}

func (f *fakePersistence) DeleteConnection(ctx context.Context, projectID, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connDeletes = append(f.connDeletes, connectionID)
	return nil
}

func (f *fakePersistence) positions() []positionWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]positionWrite(nil), f.positionWrites...)
}

func newTestStore(t *testing.T, debounce time.Duration) (*Store, *fakePersistence) {
	t.Helper()
	fake := &fakePersistence{}
	store := New(Config{
		ProjectID:    "p1",
		Nodes:        fake,
		Connections:  fake,
		MoveDebounce: debounce,
	})
	t.Cleanup(store.Close)
	return store, fake
}

func mustCreateNode(t *testing.T, s *Store, typ vidgraph.NodeType) vidgraph.Node {
	t.Helper()
	node, err := s.CreateNode(context.Background(), typ, vidgraph.Position{}, vidgraph.NodeData{})
	require.NoError(t, err)
	return node
}

func TestCreateNodeStartsIdle(t *testing.T) {
	store, fake := newTestStore(t, 0)

	node, err := store.CreateNode(context.Background(), vidgraph.NodeTypePrompt,
		vidgraph.Position{X: 10, Y: 20},
		vidgraph.NodeData{Prompt: &vidgraph.PromptPayload{PromptText: "hello"}})
	require.NoError(t, err)

	assert.NotEmpty(t, node.ID)
	assert.Equal(t, vidgraph.StatusIdle, node.Status)
	assert.Equal(t, vidgraph.Position{X: 10, Y: 20}, node.Position)
	require.Len(t, fake.nodes, 1)

	got, ok := store.Node(node.ID)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Data.Prompt.PromptText)
}

func TestDeleteNodeCascadesConnections(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	a := mustCreateNode(t, store, vidgraph.NodeTypePrompt)
	b := mustCreateNode(t, store, vidgraph.NodeTypeVideo)
	c := mustCreateNode(t, store, vidgraph.NodeTypeVideo)

	_, err := store.CreateConnection(ctx, a.ID, b.ID, vidgraph.HandleOutput, vidgraph.HandlePromptInput)
	require.NoError(t, err)
	_, err = store.CreateConnection(ctx, b.ID, c.ID, vidgraph.HandleOutput, vidgraph.HandlePromptInput)
	require.NoError(t, err)
	keep, err := store.CreateConnection(ctx, a.ID, c.ID, vidgraph.HandleOutput, vidgraph.HandleImageInput)
	require.NoError(t, err)

	require.NoError(t, store.DeleteNode(ctx, b.ID))

	conns := store.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, keep.ID, conns[0].ID)
	for _, conn := range conns {
		assert.NotEqual(t, b.ID, conn.SourceNodeID)
		assert.NotEqual(t, b.ID, conn.TargetNodeID)
	}

	_, ok := store.Node(b.ID)
	assert.False(t, ok)
}

func TestCreateConnectionRejectsSelfLoop(t *testing.T) {
	store, fake := newTestStore(t, 0)
	a := mustCreateNode(t, store, vidgraph.NodeTypePrompt)

	conn, err := store.CreateConnection(context.Background(), a.ID, a.ID, vidgraph.HandleOutput, vidgraph.HandlePromptInput)
	assert.ErrorIs(t, err, vidgraph.ErrSelfLoop)
	assert.Nil(t, conn)
	assert.Empty(t, store.Connections())
	assert.Empty(t, fake.conns)
}

func TestCreateConnectionDeduplicatesPair(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()
	a := mustCreateNode(t, store, vidgraph.NodeTypePrompt)
	b := mustCreateNode(t, store, vidgraph.NodeTypeVideo)

	first, err := store.CreateConnection(ctx, a.ID, b.ID, vidgraph.HandleOutput, vidgraph.HandlePromptInput)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := store.CreateConnection(ctx, a.ID, b.ID, vidgraph.HandleOutput, vidgraph.HandleImageInput)
	assert.ErrorIs(t, err, vidgraph.ErrDuplicateConnection)
	assert.Nil(t, second)

	require.Len(t, store.Connections(), 1)
}

func TestUpdateNodeDataMergesVideoPatch(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	node, err := store.CreateNode(ctx, vidgraph.NodeTypeVideo, vidgraph.Position{},
		vidgraph.NodeData{Video: &vidgraph.VideoPayload{Resolution: "1080p", Duration: 8}})
	require.NoError(t, err)

	progress := 40
	stage := "generating"
	require.NoError(t, store.UpdateNodeData(ctx, node.ID, vidgraph.NodePatch{
		Video: &vidgraph.VideoPatch{Progress: &progress, Stage: &stage},
	}))

	got, ok := store.Node(node.ID)
	require.True(t, ok)
	assert.Equal(t, "1080p", got.Data.Video.Resolution)
	assert.Equal(t, 8, got.Data.Video.Duration)
	assert.Equal(t, 40, got.Data.Video.Progress)
	assert.Equal(t, "generating", got.Data.Video.Stage)
}

func TestUpdateNodeDataMissingNodeIsNoOp(t *testing.T) {
	store, fake := newTestStore(t, 0)

	progress := 10
	err := store.UpdateNodeData(context.Background(), "missing", vidgraph.NodePatch{
		Video: &vidgraph.VideoPatch{Progress: &progress},
	})
	assert.NoError(t, err)
	assert.Zero(t, fake.dataWrites)
}

func TestMoveNodeDebouncesPersistence(t *testing.T) {
	store, fake := newTestStore(t, 30*time.Millisecond)
	node := mustCreateNode(t, store, vidgraph.NodeTypePrompt)

	for i := 1; i <= 5; i++ {
		store.MoveNode(node.ID, float64(i*10), float64(i*20))
	}

	// The in-memory position updates immediately.
	got, _ := store.Node(node.ID)
	assert.Equal(t, vidgraph.Position{X: 50, Y: 100}, got.Position)

	require.Eventually(t, func() bool {
		return len(fake.positions()) == 1
	}, time.Second, 5*time.Millisecond)

	writes := fake.positions()
	require.Len(t, writes, 1)
	assert.Equal(t, node.ID, writes[0].nodeID)
	assert.Equal(t, vidgraph.Position{X: 50, Y: 100}, writes[0].pos)

	// Quiet afterwards: no second write shows up.
	time.Sleep(60 * time.Millisecond)
	assert.Len(t, fake.positions(), 1)
}

func TestDeleteNodeDropsPendingMove(t *testing.T) {
	store, fake := newTestStore(t, 30*time.Millisecond)
	node := mustCreateNode(t, store, vidgraph.NodeTypePrompt)

	store.MoveNode(node.ID, 99, 99)
	require.NoError(t, store.DeleteNode(context.Background(), node.ID))

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, fake.positions())
}

func TestDeleteNodeInvokesHook(t *testing.T) {
	store, _ := newTestStore(t, 0)
	node := mustCreateNode(t, store, vidgraph.NodeTypeVideo)

	var gotID string
	store.OnNodeDeleted(func(nodeID string) { gotID = nodeID })

	require.NoError(t, store.DeleteNode(context.Background(), node.ID))
	assert.Equal(t, node.ID, gotID)
}

func TestLoadHydratesFromPersistence(t *testing.T) {
	fake := &fakePersistence{
		nodes: []vidgraph.Node{
			{ID: "n1", Type: vidgraph.NodeTypePrompt, Status: vidgraph.StatusIdle},
			{ID: "n2", Type: vidgraph.NodeTypeVideo, Status: vidgraph.StatusProcessing},
		},
		conns: []vidgraph.Connection{
			{ID: "c1", SourceNodeID: "n1", TargetNodeID: "n2", SourceHandle: vidgraph.HandleOutput, TargetHandle: vidgraph.HandlePromptInput},
		},
	}
	store := New(Config{ProjectID: "p1", Nodes: fake, Connections: fake})
	t.Cleanup(store.Close)

	require.NoError(t, store.Load(context.Background()))

	assert.Len(t, store.Nodes(), 2)
	require.Len(t, store.Connections(), 1)
	inbound := store.InboundConnections("n2")
	require.Len(t, inbound, 1)
	assert.Equal(t, "c1", inbound[0].ID)
}

package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/vidgraph"
	"github.com/meikuraledutech/vidgraph/graph"
)

type nopPersistence struct{}

func (nopPersistence) ListNodes(ctx context.Context, projectID string) ([]vidgraph.Node, error) {
	return nil, nil
}

func (nopPersistence) CreateNode(ctx context.Context, projectID string, node *vidgraph.Node) (*vidgraph.Node, error) {
	return node, nil
}

func (nopPersistence) UpdateNode(ctx context.Context, projectID, nodeID string, update vidgraph.NodeUpdate) error {
	return nil
}

func (nopPersistence) DeleteNode(ctx context.Context, projectID, nodeID string) error { return nil }

func (nopPersistence) ListConnections(ctx context.Context, projectID string) ([]vidgraph.Connection, error) {
	return nil, nil
}

func (nopPersistence) CreateConnection(ctx context.Context, projectID string, conn *vidgraph.Connection) (*vidgraph.Connection, error) {
	return conn, nil
}

func (nopPersistence) DeleteConnection(ctx context.Context, projectID, connectionID string) error {
	return nil
}

func newTestStore(t *testing.T) *graph.Store {
	t.Helper()
	store := graph.New(graph.Config{ProjectID: "p1", Nodes: nopPersistence{}, Connections: nopPersistence{}})
	t.Cleanup(store.Close)
	return store
}

func createNode(t *testing.T, store *graph.Store, typ vidgraph.NodeType, x, y float64) vidgraph.Node {
	t.Helper()
	node, err := store.CreateNode(context.Background(), typ, vidgraph.Position{X: x, Y: y}, vidgraph.NodeData{})
	require.NoError(t, err)
	return node
}

func TestAnchorGeometry(t *testing.T) {
	prompt := vidgraph.Node{Type: vidgraph.NodeTypePrompt, Position: vidgraph.Position{X: 100, Y: 200}}
	video := vidgraph.Node{Type: vidgraph.NodeTypeVideo, Position: vidgraph.Position{X: 500, Y: 100}}

	out := Anchor(prompt, vidgraph.HandleOutput)
	assert.Equal(t, vidgraph.Position{X: 380, Y: 280}, out) // right edge, vertical center

	pin := Anchor(video, vidgraph.HandlePromptInput)
	assert.Equal(t, vidgraph.Position{X: 500, Y: 180}, pin) // left edge, upper third

	iin := Anchor(video, vidgraph.HandleImageInput)
	assert.Equal(t, vidgraph.Position{X: 500, Y: 260}, iin) // left edge, lower third

	// Anchors track the node's current position; nothing is cached.
	video.Position = vidgraph.Position{X: 600, Y: 300}
	moved := Anchor(video, vidgraph.HandlePromptInput)
	assert.Equal(t, vidgraph.Position{X: 600, Y: 380}, moved)
}

func TestDragLifecycle(t *testing.T) {
	store := newTestStore(t)
	r := New(store)
	ctx := context.Background()

	src := createNode(t, store, vidgraph.NodeTypePrompt, 0, 0)
	dst := createNode(t, store, vidgraph.NodeTypeVideo, 400, 0)

	require.NoError(t, r.BeginDrag(src.ID, vidgraph.HandleOutput))
	assert.True(t, r.Dragging())

	// Only one drag at a time.
	assert.ErrorIs(t, r.BeginDrag(src.ID, vidgraph.HandleOutput), ErrDragInProgress)

	r.MoveDrag(350, 60)
	from, to, ok := r.DragLine()
	require.True(t, ok)
	assert.Equal(t, Anchor(src, vidgraph.HandleOutput), from)
	assert.Equal(t, vidgraph.Position{X: 350, Y: 60}, to)

	conn, err := r.CompleteDrag(ctx, dst.ID, vidgraph.HandlePromptInput)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, src.ID, conn.SourceNodeID)
	assert.Equal(t, dst.ID, conn.TargetNodeID)
	assert.False(t, r.Dragging())
}

func TestBeginDragRequiresOutputHandle(t *testing.T) {
	store := newTestStore(t)
	r := New(store)
	node := createNode(t, store, vidgraph.NodeTypeVideo, 0, 0)

	assert.ErrorIs(t, r.BeginDrag(node.ID, vidgraph.HandlePromptInput), ErrNotOutputHandle)
	assert.False(t, r.Dragging())
}

func TestCompleteDragRejectsOutputTarget(t *testing.T) {
	store := newTestStore(t)
	r := New(store)
	ctx := context.Background()

	src := createNode(t, store, vidgraph.NodeTypePrompt, 0, 0)
	dst := createNode(t, store, vidgraph.NodeTypeVideo, 400, 0)

	require.NoError(t, r.BeginDrag(src.ID, vidgraph.HandleOutput))
	conn, err := r.CompleteDrag(ctx, dst.ID, vidgraph.HandleOutput)
	assert.ErrorIs(t, err, ErrNotInputHandle)
	assert.Nil(t, conn)
	assert.False(t, r.Dragging())
	assert.Empty(t, store.Connections())
}

func TestAbortDragLeavesGraphUntouched(t *testing.T) {
	store := newTestStore(t)
	r := New(store)

	src := createNode(t, store, vidgraph.NodeTypePrompt, 0, 0)
	require.NoError(t, r.BeginDrag(src.ID, vidgraph.HandleOutput))
	r.MoveDrag(123, 456)
	r.AbortDrag()

	assert.False(t, r.Dragging())
	assert.Empty(t, store.Connections())
	_, _, ok := r.DragLine()
	assert.False(t, ok)
}

func TestHitTest(t *testing.T) {
	store := newTestStore(t)
	r := New(store)
	ctx := context.Background()

	src := createNode(t, store, vidgraph.NodeTypePrompt, 0, 0)
	dst := createNode(t, store, vidgraph.NodeTypeVideo, 500, 0)
	conn, err := store.CreateConnection(ctx, src.ID, dst.ID, vidgraph.HandleOutput, vidgraph.HandlePromptInput)
	require.NoError(t, err)

	a := Anchor(src, vidgraph.HandleOutput)
	b := Anchor(dst, vidgraph.HandlePromptInput)
	mid := vidgraph.Position{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}

	id, ok := r.HitTest(vidgraph.Position{X: mid.X, Y: mid.Y + 3}, 8)
	require.True(t, ok)
	assert.Equal(t, conn.ID, id)

	_, ok = r.HitTest(vidgraph.Position{X: mid.X, Y: mid.Y + 200}, 8)
	assert.False(t, ok)
}

package flow

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

type fixture struct {
	store    *graph.Store
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := graph.New(graph.Config{ProjectID: "p1", Nodes: nopPersistence{}, Connections: nopPersistence{}})
	t.Cleanup(store.Close)
	return &fixture{store: store, resolver: New(store)}
}

func (f *fixture) prompt(t *testing.T, text string) vidgraph.Node {
	t.Helper()
	n, err := f.store.CreateNode(context.Background(), vidgraph.NodeTypePrompt, vidgraph.Position{},
		vidgraph.NodeData{Prompt: &vidgraph.PromptPayload{PromptText: text}})
	require.NoError(t, err)
	return n
}

func (f *fixture) image(t *testing.T, ref string) vidgraph.Node {
	t.Helper()
	n, err := f.store.CreateNode(context.Background(), vidgraph.NodeTypeImage, vidgraph.Position{},
		vidgraph.NodeData{Image: &vidgraph.ImagePayload{ImageRef: ref}})
	require.NoError(t, err)
	return n
}

func (f *fixture) video(t *testing.T) vidgraph.Node {
	t.Helper()
	n, err := f.store.CreateNode(context.Background(), vidgraph.NodeTypeVideo, vidgraph.Position{}, vidgraph.NodeData{})
	require.NoError(t, err)
	return n
}

func (f *fixture) connect(t *testing.T, src, dst vidgraph.Node, targetHandle string) *vidgraph.Connection {
	t.Helper()
	conn, err := f.store.CreateConnection(context.Background(), src.ID, dst.ID, vidgraph.HandleOutput, targetHandle)
	require.NoError(t, err)
	return conn
}

func TestResolvePromptAndImage(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "a cat")
	img := f.image(t, "https://cdn.example.com/cat.png")
	v := f.video(t)

	f.connect(t, p, v, vidgraph.HandlePromptInput)
	f.connect(t, img, v, vidgraph.HandleImageInput)

	in := f.resolver.Resolve(v.ID)
	assert.Equal(t, "a cat", in.PromptText)
	assert.Equal(t, "https://cdn.example.com/cat.png", in.ImageRef)
}

func TestResolveNoConnectionsIsEmpty(t *testing.T) {
	f := newFixture(t)
	v := f.video(t)

	in := f.resolver.Resolve(v.ID)
	assert.Empty(t, in.PromptText)
	assert.Empty(t, in.ImageRef)
}

func TestResolveSourceTypeBeatsHandleName(t *testing.T) {
	f := newFixture(t)
	// A prompt node wired into the image input still contributes prompt text.
	p := f.prompt(t, "misrouted")
	v := f.video(t)
	f.connect(t, p, v, vidgraph.HandleImageInput)

	in := f.resolver.Resolve(v.ID)
	assert.Equal(t, "misrouted", in.PromptText)
	assert.Empty(t, in.ImageRef)
}

func TestResolveHandleFallbackForOtherSourceTypes(t *testing.T) {
	f := newFixture(t)
	// A video node can feed another; classification then follows the handle.
	upstream, err := f.store.CreateNode(context.Background(), vidgraph.NodeTypeVideo, vidgraph.Position{},
		vidgraph.NodeData{Prompt: &vidgraph.PromptPayload{PromptText: "from upstream"}})
	require.NoError(t, err)
	v := f.video(t)
	f.connect(t, upstream, v, vidgraph.HandlePromptInput)

	in := f.resolver.Resolve(v.ID)
	assert.Equal(t, "from upstream", in.PromptText)
}

func TestResolveLastConnectionWins(t *testing.T) {
	f := newFixture(t)
	first := f.prompt(t, "first")
	second := f.prompt(t, "second")
	v := f.video(t)

	f.connect(t, first, v, vidgraph.HandlePromptInput)
	f.connect(t, second, v, vidgraph.HandlePromptInput)

	in := f.resolver.Resolve(v.ID)
	assert.Equal(t, "second", in.PromptText)
}

func TestResolveReflectsSourceEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.prompt(t, "before")
	v := f.video(t)
	f.connect(t, p, v, vidgraph.HandlePromptInput)

	require.NoError(t, f.store.UpdateNodeData(ctx, p.ID, vidgraph.NodePatch{
		Prompt: &vidgraph.PromptPayload{PromptText: "after"},
	}))

	in := f.resolver.Resolve(v.ID)
	assert.Equal(t, "after", in.PromptText)
}

func TestResolveIgnoresOutboundConnections(t *testing.T) {
	f := newFixture(t)
	p := f.prompt(t, "downstream only")
	v := f.video(t)
	f.connect(t, p, v, vidgraph.HandlePromptInput)

	// Resolving the prompt node itself finds nothing inbound.
	in := f.resolver.Resolve(p.ID)
	assert.Empty(t, in.PromptText)
	assert.Empty(t, in.ImageRef)
}

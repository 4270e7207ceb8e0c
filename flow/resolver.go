// Package flow derives the effective generation inputs of a consuming node
// from its inbound connections.
package flow

import (
	"github.com/meikuraledutech/vidgraph"
	"github.com/meikuraledutech/vidgraph/graph"
)

// Inputs is the resolved contribution set for a video node. An empty
// PromptText or ImageRef means "not yet connected", not an error.
type Inputs struct {
	PromptText string
	ImageRef   string
}

// Resolver computes Inputs from current graph connectivity. Resolution is
// pure: it reads snapshots and caches nothing, so it must be re-run whenever
// nodes, connections or any source node's data change.
type Resolver struct {
	store *graph.Store
}

// New creates a Resolver over the given store.
func New(store *graph.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve walks the node's inbound connections in creation order. Each
// contribution is classified by source node type first, falling back to the
// target handle name when the source is neither a prompt nor an image node.
// When several connections fill the same slot the most recently created one
// wins; the store's stable creation ordering makes that deterministic
// across reloads.
func (r *Resolver) Resolve(nodeID string) Inputs {
	var in Inputs
	for _, conn := range r.store.InboundConnections(nodeID) {
		source, ok := r.store.Node(conn.SourceNodeID)
		if !ok {
			continue
		}
		switch source.Type {
		case vidgraph.NodeTypePrompt:
			in.PromptText = promptTextOf(source)
		case vidgraph.NodeTypeImage:
			in.ImageRef = imageRefOf(source)
		default:
			switch conn.TargetHandle {
			case vidgraph.HandlePromptInput:
				in.PromptText = promptTextOf(source)
			case vidgraph.HandleImageInput:
				in.ImageRef = imageRefOf(source)
			}
		}
	}
	return in
}

func promptTextOf(n vidgraph.Node) string {
	if n.Data.Prompt == nil {
		return ""
	}
	return n.Data.Prompt.PromptText
}

func imageRefOf(n vidgraph.Node) string {
	if n.Data.Image == nil {
		return ""
	}
	return n.Data.Image.ImageRef
}

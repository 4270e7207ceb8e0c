// Package router computes connection anchor geometry and drives interactive
// connection creation on the canvas.
package router

import (
	"context"
	"errors"
	"math"

	"github.com/meikuraledutech/vidgraph"
	"github.com/meikuraledutech/vidgraph/graph"
)

var (
	ErrDragInProgress  = errors.New("vidgraph: a connection drag is already in progress")
	ErrNoDrag          = errors.New("vidgraph: no connection drag in progress")
	ErrNotOutputHandle = errors.New("vidgraph: connections must start from an output handle")
	ErrNotInputHandle  = errors.New("vidgraph: connections must end on an input handle")
)

// Size is a node bounding box in canvas units.
type Size struct {
	W float64
	H float64
}

// nodeSizes fixes the bounding box per node type. Anchor positions are
// derived from these, so they must match what the view renders.
var nodeSizes = map[vidgraph.NodeType]Size{
	vidgraph.NodeTypePrompt: {W: 280, H: 160},
	vidgraph.NodeTypeImage:  {W: 280, H: 220},
	vidgraph.NodeTypeVideo:  {W: 320, H: 240},
}

var defaultSize = Size{W: 280, H: 180}

// NodeSize returns the bounding box for a node type.
func NodeSize(typ vidgraph.NodeType) Size {
	if sz, ok := nodeSizes[typ]; ok {
		return sz
	}
	return defaultSize
}

// Anchor returns the absolute canvas-space point of a handle on a node.
// It is a pure function of the node's current position and type; callers
// must not cache it across position changes.
func Anchor(node vidgraph.Node, handle string) vidgraph.Position {
	sz := NodeSize(node.Type)
	switch handle {
	case vidgraph.HandleOutput:
		return vidgraph.Position{X: node.Position.X + sz.W, Y: node.Position.Y + sz.H/2}
	case vidgraph.HandlePromptInput:
		return vidgraph.Position{X: node.Position.X, Y: node.Position.Y + sz.H/3}
	case vidgraph.HandleImageInput:
		return vidgraph.Position{X: node.Position.X, Y: node.Position.Y + 2*sz.H/3}
	default:
		return vidgraph.Position{X: node.Position.X, Y: node.Position.Y + sz.H/2}
	}
}

// Router manages anchor lookups, hit-testing and the single in-flight
// connection drag for one canvas.
type Router struct {
	store *graph.Store
	drag  *dragState
}

type dragState struct {
	sourceNodeID string
	sourceHandle string
	endpoint     vidgraph.Position
}

// New creates a Router over the given store.
func New(store *graph.Store) *Router {
	return &Router{store: store}
}

// BeginDrag enters connecting mode from an output handle. Only one drag may
// be in progress at a time.
func (r *Router) BeginDrag(sourceNodeID, sourceHandle string) error {
	if r.drag != nil {
		return ErrDragInProgress
	}
	if sourceHandle != vidgraph.HandleOutput {
		return ErrNotOutputHandle
	}
	node, ok := r.store.Node(sourceNodeID)
	if !ok {
		return vidgraph.ErrNodeNotFound
	}
	r.drag = &dragState{
		sourceNodeID: sourceNodeID,
		sourceHandle: sourceHandle,
		endpoint:     Anchor(node, sourceHandle),
	}
	return nil
}

// MoveDrag updates the provisional endpoint (canvas space) of the dashed
// preview line. No-op when no drag is active.
func (r *Router) MoveDrag(canvasX, canvasY float64) {
	if r.drag == nil {
		return
	}
	r.drag.endpoint = vidgraph.Position{X: canvasX, Y: canvasY}
}

// DragLine returns the preview line endpoints while a drag is active. The
// start point tracks the source node's current position.
func (r *Router) DragLine() (from, to vidgraph.Position, ok bool) {
	if r.drag == nil {
		return vidgraph.Position{}, vidgraph.Position{}, false
	}
	node, found := r.store.Node(r.drag.sourceNodeID)
	if !found {
		return vidgraph.Position{}, vidgraph.Position{}, false
	}
	return Anchor(node, r.drag.sourceHandle), r.drag.endpoint, true
}

// CompleteDrag finishes the gesture over an input handle and creates the
// connection. The drag is cleared whether or not creation succeeds.
func (r *Router) CompleteDrag(ctx context.Context, targetNodeID, targetHandle string) (*vidgraph.Connection, error) {
	if r.drag == nil {
		return nil, ErrNoDrag
	}
	d := r.drag
	r.drag = nil
	if targetHandle == vidgraph.HandleOutput {
		return nil, ErrNotInputHandle
	}
	return r.store.CreateConnection(ctx, d.sourceNodeID, targetNodeID, d.sourceHandle, targetHandle)
}

// AbortDrag cancels the gesture without mutating the graph.
func (r *Router) AbortDrag() {
	r.drag = nil
}

// Dragging reports whether a connection drag is in progress.
func (r *Router) Dragging() bool {
	return r.drag != nil
}

// HitTest returns the id of the connection line closest to the given
// canvas-space point within tolerance. When several lines are within
// tolerance the closest one wins.
func (r *Router) HitTest(point vidgraph.Position, tolerance float64) (string, bool) {
	best := ""
	bestDist := tolerance
	for _, conn := range r.store.Connections() {
		src, okSrc := r.store.Node(conn.SourceNodeID)
		tgt, okTgt := r.store.Node(conn.TargetNodeID)
		if !okSrc || !okTgt {
			continue
		}
		a := Anchor(src, conn.SourceHandle)
		b := Anchor(tgt, conn.TargetHandle)
		if d := distanceToSegment(point, a, b); d <= bestDist {
			best = conn.ID
			bestDist = d
		}
	}
	return best, best != ""
}

func distanceToSegment(p, a, b vidgraph.Position) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

// Package viewport maintains the affine transform between canvas space and
// screen space. Every canvas feature (node dragging, connection anchors,
// hit-testing) converts coordinates through one Controller instead of
// duplicating the math.
package viewport

import "github.com/meikuraledutech/vidgraph"

// Scale bounds observed per canvas kind.
const (
	NodeCanvasMinScale = 0.1
	NodeCanvasMaxScale = 3.0

	FreeformMinScale = 0.1
	FreeformMaxScale = 5.0
)

// Controller holds the pan/zoom state: screen = canvas*scale + offset.
type Controller struct {
	scale    float64
	offset   vidgraph.Position
	minScale float64
	maxScale float64
	panning  bool
}

// New creates a controller at scale 1 with no offset.
func New(minScale, maxScale float64) *Controller {
	return &Controller{scale: 1, minScale: minScale, maxScale: maxScale}
}

// NewNodeCanvas creates a controller with the node-canvas scale bounds.
func NewNodeCanvas() *Controller {
	return New(NodeCanvasMinScale, NodeCanvasMaxScale)
}

// Scale returns the current zoom factor.
func (c *Controller) Scale() float64 { return c.scale }

// Offset returns the current translation in screen space.
func (c *Controller) Offset() vidgraph.Position { return c.offset }

// ScreenToCanvas converts a screen-space point to canvas space.
func (c *Controller) ScreenToCanvas(screenX, screenY float64) (float64, float64) {
	return (screenX - c.offset.X) / c.scale, (screenY - c.offset.Y) / c.scale
}

// CanvasToScreen converts a canvas-space point to screen space.
func (c *Controller) CanvasToScreen(canvasX, canvasY float64) (float64, float64) {
	return canvasX*c.scale + c.offset.X, canvasY*c.scale + c.offset.Y
}

// ZoomAt scales around the given screen point so the canvas point under the
// cursor stays fixed. The resulting scale is clamped to the configured
// bounds; a clamped zoom still re-anchors correctly.
func (c *Controller) ZoomAt(screenX, screenY, deltaFactor float64) {
	next := clamp(c.scale*deltaFactor, c.minScale, c.maxScale)
	ratio := next / c.scale
	c.offset.X = screenX - (screenX-c.offset.X)*ratio
	c.offset.Y = screenY - (screenY-c.offset.Y)*ratio
	c.scale = next
}

// BeginPan engages panning. Pan deltas are ignored while no pan trigger
// (middle button, modifier+drag, hand tool) is active, so panning never
// competes with node or connection dragging.
func (c *Controller) BeginPan() { c.panning = true }

// EndPan disengages panning.
func (c *Controller) EndPan() { c.panning = false }

// Panning reports whether a pan gesture is in progress.
func (c *Controller) Panning() bool { return c.panning }

// Pan translates the offset by a pointer delta. Inert unless BeginPan was
// called.
func (c *Controller) Pan(dx, dy float64) {
	if !c.panning {
		return
	}
	c.offset.X += dx
	c.offset.Y += dy
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

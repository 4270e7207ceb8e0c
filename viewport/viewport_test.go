package viewport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScreenToCanvasRoundTrip(t *testing.T) {
	c := NewNodeCanvas()
	c.ZoomAt(400, 300, 1.5)
	c.BeginPan()
	c.Pan(120, -40)
	c.EndPan()

	sx, sy := c.CanvasToScreen(250, 175)
	cx, cy := c.ScreenToCanvas(sx, sy)
	assert.InDelta(t, 250, cx, 1e-9)
	assert.InDelta(t, 175, cy, 1e-9)
}

func TestZoomAtClampsScale(t *testing.T) {
	c := NewNodeCanvas()

	for i := 0; i < 50; i++ {
		c.ZoomAt(100, 100, 1.3)
	}
	assert.LessOrEqual(t, c.Scale(), NodeCanvasMaxScale)

	for i := 0; i < 100; i++ {
		c.ZoomAt(100, 100, 0.7)
	}
	assert.GreaterOrEqual(t, c.Scale(), NodeCanvasMinScale)
}

func TestZoomAtKeepsCursorPointFixed(t *testing.T) {
	c := New(FreeformMinScale, FreeformMaxScale)
	c.BeginPan()
	c.Pan(37, -81)
	c.EndPan()

	const sx, sy = 640.0, 360.0
	beforeX, beforeY := c.ScreenToCanvas(sx, sy)

	for _, factor := range []float64{1.2, 0.8, 2.5, 0.1, 4.0} {
		c.ZoomAt(sx, sy, factor)
		afterX, afterY := c.ScreenToCanvas(sx, sy)
		assert.InDelta(t, beforeX, afterX, 1e-9)
		assert.InDelta(t, beforeY, afterY, 1e-9)
	}
}

func TestPanInertWithoutTrigger(t *testing.T) {
	c := NewNodeCanvas()

	c.Pan(50, 50)
	assert.Equal(t, 0.0, c.Offset().X)
	assert.Equal(t, 0.0, c.Offset().Y)
	assert.False(t, c.Panning())
}

func TestPanAccumulatesWhileEngaged(t *testing.T) {
	c := NewNodeCanvas()

	c.BeginPan()
	assert.True(t, c.Panning())
	c.Pan(10, 5)
	c.Pan(-4, 2)
	c.EndPan()
	c.Pan(100, 100) // ignored after release

	assert.Equal(t, 6.0, c.Offset().X)
	assert.Equal(t, 7.0, c.Offset().Y)
}

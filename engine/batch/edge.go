package batch

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/weftgl/weft/engine/util"
)

// RenderTarget selects the output of a frame: the screen pass or the
// picking pass, which writes packed element indices for hit-testing.
type RenderTarget int

const (
	TargetScreen RenderTarget = iota
	TargetPicking
)

// ArrowEnd distinguishes the two arrowheads of an edge.
type ArrowEnd int

const (
	SourceEnd ArrowEnd = iota
	TargetEnd
)

// CurveStyle is the edge geometry class. Only straight edges grow
// arrowheads in this pipeline.
type CurveStyle int

const (
	CurveStraight CurveStyle = iota
	CurveBezier
)

// ArrowSpec positions one arrowhead. Position and angle come from the scene;
// non-finite values disable the arrow.
type ArrowSpec struct {
	X, Y    float32
	Angle   float32
	Color   [3]uint8
	Opacity float32
}

// EdgeStyle is the per-edge view the batcher consumes. The scene graph
// implements it; the batcher never retains the value past the Draw call.
type EdgeStyle interface {
	Endpoints() (sx, sy, tx, ty float32)
	LineWidth() float32
	LineColor() [3]uint8
	LineOpacity() float32
	CurveStyle() CurveStyle
	ArrowScale() float32
	// Arrow returns the spec for one end; ok=false means no arrowhead.
	Arrow(end ArrowEnd) (spec ArrowSpec, ok bool)
}

// FrameState is the uniform state of the current frame, passed to the
// backend with every flush.
type FrameState struct {
	PanZoom mgl32.Mat3
	BGColor mgl32.Vec4
	Target  RenderTarget
}

// Backend submits one finished batch to the GPU. Tests substitute a
// recorder.
type Backend interface {
	Submit(state FrameState, data *InstanceData, count int)
}

// EdgeBatcher accumulates per-edge instances into a pre-allocated staging
// buffer and flushes at most maxInstances instances per draw call. One
// instance covers the line quad and both arrowheads; the vertex shader
// selects the geometry block per vertex.
type EdgeBatcher struct {
	backend      Backend
	maxInstances int
	bgColor      mgl32.Vec4

	data  *InstanceData
	count int
	state FrameState

	frameFlushes int
}

// NewEdgeBatcher creates a batcher flushing at maxInstances. bgColor is the
// opaque canvas background that translucent arrowheads blend against.
func NewEdgeBatcher(backend Backend, maxInstances int, bgColor [3]float32) *EdgeBatcher {
	return &EdgeBatcher{
		backend:      backend,
		maxInstances: maxInstances,
		bgColor:      mgl32.Vec4{bgColor[0], bgColor[1], bgColor[2], 1},
		data:         NewInstanceData(maxInstances),
	}
}

// MaxInstances returns the per-flush instance cap.
func (b *EdgeBatcher) MaxInstances() int { return b.maxInstances }

// InstanceCount returns the number of instances staged in the current batch.
func (b *EdgeBatcher) InstanceCount() int { return b.count }

// StartFrame sets the frame uniforms and resets the flush statistics.
func (b *EdgeBatcher) StartFrame(panZoom mgl32.Mat3, target RenderTarget) {
	b.state = FrameState{PanZoom: panZoom, BGColor: b.bgColor, Target: target}
	b.frameFlushes = 0
	b.count = 0
}

// StartBatch begins a new batch. Any staged instances are discarded; callers
// flush with EndBatch first.
func (b *EdgeBatcher) StartBatch() {
	b.count = 0
}

// EndBatch flushes the staged instances in one instanced draw. It is a
// no-op when the batch is empty.
func (b *EdgeBatcher) EndBatch() {
	if b.count == 0 {
		return
	}
	b.backend.Submit(b.state, b.data, b.count)
	b.frameFlushes++
	b.count = 0
}

// EndFrame flushes the trailing batch and logs frame statistics.
func (b *EdgeBatcher) EndFrame() {
	b.EndBatch()
	if b.frameFlushes > 0 {
		util.LogBatchDebug("edge frame", "flushes", b.frameFlushes)
	}
}

// FrameFlushes returns the number of draw calls issued since StartFrame.
func (b *EdgeBatcher) FrameFlushes() int { return b.frameFlushes }

// Draw stages one edge. Reaching the instance cap flushes implicitly before
// staging. eleIndex is the pick index echoed by the picking pass.
func (b *EdgeBatcher) Draw(edge EdgeStyle, eleIndex int) {
	if b.count >= b.maxInstances {
		b.EndBatch()
	}
	i := b.count
	b.count++

	sx, sy, tx, ty := edge.Endpoints()
	b.data.setIndex(i, eleIndex)
	b.data.setSourceTarget(i, sx, sy, tx, ty)
	b.data.setLineWidth(i, edge.LineWidth())
	b.data.setLineColor(i, edge.LineColor(), edge.LineOpacity())
	b.data.clearArrows(i)

	// Curved edges keep their arrow flags at zero; the shader discards
	// those vertices.
	if edge.CurveStyle() != CurveStraight {
		return
	}
	for _, end := range []ArrowEnd{SourceEnd, TargetEnd} {
		spec, ok := edge.Arrow(end)
		if !ok || !finite(spec.X) || !finite(spec.Y) || !finite(spec.Angle) {
			continue
		}
		size := arrowWidth(edge.LineWidth(), edge.ArrowScale())
		transform := mgl32.Translate2D(spec.X, spec.Y).
			Mul3(mgl32.Scale2D(size, size)).
			Mul3(mgl32.HomogRotate2D(spec.Angle))
		b.data.setArrow(i, end, spec.Color, spec.Opacity, transform)
	}
}

// arrowWidth derives the arrowhead edge length from the line width, with a
// floor so hairline edges keep visible arrows.
func arrowWidth(lineWidth, scale float32) float32 {
	w := lineWidth * 2 * scale
	if w < 2 {
		w = 2
	}
	return w
}

func finite(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

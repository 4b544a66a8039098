package batch

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures flushes instead of touching the GPU.
type recorder struct {
	counts []int
	states []FrameState
	// snapshot of the index channel of instance 0 at flush time
	firstIndex [4]float32
}

func (r *recorder) Submit(state FrameState, data *InstanceData, count int) {
	r.counts = append(r.counts, count)
	r.states = append(r.states, state)
	copy(r.firstIndex[:], data.view(0, offIndex, 4))
}

// testEdge is a plain-struct EdgeStyle.
type testEdge struct {
	sx, sy, tx, ty float32
	width          float32
	color          [3]uint8
	opacity        float32
	curve          CurveStyle
	arrows         map[ArrowEnd]ArrowSpec
}

func straightEdge() *testEdge {
	return &testEdge{
		sx: 0, sy: 0, tx: 100, ty: 0,
		width:   4,
		color:   [3]uint8{255, 0, 0},
		opacity: 0.5,
	}
}

func (e *testEdge) Endpoints() (float32, float32, float32, float32) {
	return e.sx, e.sy, e.tx, e.ty
}
func (e *testEdge) LineWidth() float32     { return e.width }
func (e *testEdge) LineColor() [3]uint8    { return e.color }
func (e *testEdge) LineOpacity() float32   { return e.opacity }
func (e *testEdge) CurveStyle() CurveStyle { return e.curve }
func (e *testEdge) ArrowScale() float32    { return 1 }

func (e *testEdge) Arrow(end ArrowEnd) (ArrowSpec, bool) {
	spec, ok := e.arrows[end]
	return spec, ok
}

func TestBatcherFlushAtCap(t *testing.T) {
	rec := &recorder{}
	b := NewEdgeBatcher(rec, 2, [3]float32{1, 1, 1})

	b.StartFrame(mgl32.Ident3(), TargetScreen)
	b.StartBatch()
	for i := 0; i < 3; i++ {
		b.Draw(straightEdge(), i)
	}
	b.EndBatch()

	// Three draws at cap two: one implicit flush, one explicit.
	assert.Equal(t, []int{2, 1}, rec.counts)
	assert.Equal(t, 2, b.FrameFlushes())
}

func TestBatcherEndBatchEmptyIsNoop(t *testing.T) {
	rec := &recorder{}
	b := NewEdgeBatcher(rec, 4, [3]float32{1, 1, 1})

	b.StartFrame(mgl32.Ident3(), TargetScreen)
	b.StartBatch()
	b.EndBatch()
	b.EndBatch()
	assert.Empty(t, rec.counts)
}

func TestBatcherLineAttributes(t *testing.T) {
	rec := &recorder{}
	b := NewEdgeBatcher(rec, 4, [3]float32{1, 1, 1})

	b.StartFrame(mgl32.Ident3(), TargetScreen)
	b.StartBatch()
	e := straightEdge()
	e.sx, e.sy, e.tx, e.ty = 1, 2, 3, 4
	b.Draw(e, 0)

	st := b.data.view(0, offSourceTarget, 4)
	assert.Equal(t, []float32{1, 2, 3, 4}, st)
	assert.Equal(t, float32(4), b.data.view(0, offLineWidth, 1)[0])

	// Premultiplied: rgb scaled by opacity, alpha carries opacity.
	col := b.data.view(0, offLineColor, 4)
	assert.InDelta(t, 0.5, col[0], 1e-6)
	assert.InDelta(t, 0, col[1], 1e-6)
	assert.InDelta(t, 0, col[2], 1e-6)
	assert.InDelta(t, 0.5, col[3], 1e-6)
}

func TestBatcherIndexPacking(t *testing.T) {
	rec := &recorder{}
	b := NewEdgeBatcher(rec, 4, [3]float32{1, 1, 1})

	b.StartFrame(mgl32.Ident3(), TargetPicking)
	b.StartBatch()
	b.Draw(straightEdge(), 0x01020304)
	b.EndBatch()

	want := [4]float32{4.0 / 255, 3.0 / 255, 2.0 / 255, 1.0 / 255}
	assert.Equal(t, want, rec.firstIndex)
	require.Len(t, rec.states, 1)
	assert.Equal(t, TargetPicking, rec.states[0].Target)
}

func TestBatcherArrowTransform(t *testing.T) {
	rec := &recorder{}
	b := NewEdgeBatcher(rec, 4, [3]float32{1, 1, 1})

	b.StartFrame(mgl32.Ident3(), TargetScreen)
	b.StartBatch()
	e := straightEdge()
	e.arrows = map[ArrowEnd]ArrowSpec{
		TargetEnd: {X: 100, Y: 0, Angle: math.Pi / 2, Color: [3]uint8{0, 0, 255}, Opacity: 1},
	}
	b.Draw(e, 0)

	flags := b.data.view(0, offDrawArrows, 2)
	assert.Equal(t, []float32{0, 1}, flags)

	size := arrowWidth(e.width, 1)
	want := mgl32.Translate2D(100, 0).
		Mul3(mgl32.Scale2D(size, size)).
		Mul3(mgl32.HomogRotate2D(math.Pi / 2))
	got := b.data.view(0, offTargetArrowTrans, 9)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "matrix element %d", i)
	}

	col := b.data.view(0, offTargetArrowCol, 4)
	assert.InDelta(t, 0, col[0], 1e-6)
	assert.InDelta(t, 1, col[2], 1e-6)
	assert.InDelta(t, 1, col[3], 1e-6)
}

func TestBatcherCurvedEdgeSkipsArrows(t *testing.T) {
	rec := &recorder{}
	b := NewEdgeBatcher(rec, 4, [3]float32{1, 1, 1})

	b.StartFrame(mgl32.Ident3(), TargetScreen)
	b.StartBatch()

	// A straight edge leaves arrow flags set in the reused buffer slot.
	e := straightEdge()
	e.arrows = map[ArrowEnd]ArrowSpec{
		SourceEnd: {X: 0, Y: 0, Angle: 0, Color: [3]uint8{0, 0, 255}, Opacity: 1},
	}
	b.Draw(e, 0)
	b.EndBatch()

	// The curved edge reuses slot 0; stale flags must not leak.
	b.StartBatch()
	curved := straightEdge()
	curved.curve = CurveBezier
	curved.arrows = map[ArrowEnd]ArrowSpec{
		SourceEnd: {X: 0, Y: 0, Angle: 0, Color: [3]uint8{0, 0, 255}, Opacity: 1},
	}
	b.Draw(curved, 1)

	flags := b.data.view(0, offDrawArrows, 2)
	assert.Equal(t, []float32{0, 0}, flags)
}

func TestBatcherNonFiniteArrowSkipped(t *testing.T) {
	rec := &recorder{}
	b := NewEdgeBatcher(rec, 4, [3]float32{1, 1, 1})

	b.StartFrame(mgl32.Ident3(), TargetScreen)
	b.StartBatch()
	e := straightEdge()
	e.arrows = map[ArrowEnd]ArrowSpec{
		SourceEnd: {X: float32(math.NaN()), Y: 0, Angle: 0, Opacity: 1},
		TargetEnd: {X: 0, Y: 0, Angle: float32(math.Inf(1)), Opacity: 1},
	}
	b.Draw(e, 0)

	flags := b.data.view(0, offDrawArrows, 2)
	assert.Equal(t, []float32{0, 0}, flags)
}

func TestBatcherFrameState(t *testing.T) {
	rec := &recorder{}
	b := NewEdgeBatcher(rec, 4, [3]float32{0.25, 0.5, 0.75})

	pz := mgl32.Scale2D(2, 2)
	b.StartFrame(pz, TargetScreen)
	b.StartBatch()
	b.Draw(straightEdge(), 0)
	b.EndFrame()

	require.Len(t, rec.states, 1)
	assert.Equal(t, pz, rec.states[0].PanZoom)
	assert.Equal(t, mgl32.Vec4{0.25, 0.5, 0.75, 1}, rec.states[0].BGColor)
}

func TestInstanceDataFloats(t *testing.T) {
	d := NewInstanceData(3)
	assert.Len(t, d.Floats(3), 3*InstanceStride)
	assert.Len(t, d.Floats(1), InstanceStride)

	d.setSourceTarget(2, 9, 9, 9, 9)
	assert.Equal(t, float32(9), d.Floats(3)[2*InstanceStride+offSourceTarget])
}

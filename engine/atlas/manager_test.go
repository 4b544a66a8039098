package atlas

import (
	"fmt"
	"image/color"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftgl/weft/engine/raster"
)

// testEle is the opaque element handle the fake render type understands.
type testEle struct {
	id    string
	style string
	bb    BoundingBox
}

type testRenderType struct {
	collection string
	rotation   float64
	padding    float64
	draws      int
}

func (t *testRenderType) CollectionName() string { return t.collection }
func (t *testRenderType) Key(ele any) string     { return ele.(*testEle).style }
func (t *testRenderType) ID(ele any) any         { return ele.(*testEle).id }

func (t *testRenderType) BoundingBox(ele any) BoundingBox {
	return ele.(*testEle).bb
}

func (t *testRenderType) DrawElement(c *raster.Canvas, ele any, bb BoundingBox) {
	t.draws++
	c.FillRect(bb.X1, bb.Y1, bb.W, bb.H, color.NRGBA{R: 200, A: 255})
}

func (t *testRenderType) Rotation(ele any) float64 { return t.rotation }

func (t *testRenderType) RotationPoint(ele any) (float64, float64) { return 10, 20 }

func (t *testRenderType) RotationOffset(ele any) (float64, float64) { return -5, -8 }

func (t *testRenderType) Padding(ele any) float64 { return t.padding }

func newTestManager(t *testing.T, maxPerBatch int) (*Manager, *testRenderType) {
	t.Helper()
	m := NewManager(100, maxPerBatch, nil)
	m.AddAtlasCollection("things", CollectionOpts{TexRows: 2})
	rt := &testRenderType{collection: "things"}
	require.NoError(t, m.AddRenderType("thing", rt))
	return m, rt
}

func TestManagerRejectsUnknownCollection(t *testing.T) {
	m := NewManager(100, 4, nil)
	err := m.AddRenderType("thing", &testRenderType{collection: "missing"})
	require.Error(t, err)
}

func TestManagerGetOrCreateAtlas(t *testing.T) {
	m, rt := newTestManager(t, 4)
	ele := &testEle{id: "n1", style: "s1", bb: BoundingBox{W: 40, H: 50}}

	a, key, err := m.GetOrCreateAtlas(ele, "thing", rt.BoundingBox(ele))
	require.NoError(t, err)
	assert.Equal(t, "s1", key)
	assert.Equal(t, 1, rt.draws)

	// Same style, different element: cache hit, no rasterization.
	other := &testEle{id: "n2", style: "s1", bb: BoundingBox{W: 40, H: 50}}
	b, _, err := m.GetOrCreateAtlas(other, "thing", rt.BoundingBox(other))
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, rt.draws)
}

func TestManagerInvalidate(t *testing.T) {
	m, rt := newTestManager(t, 4)
	ele := &testEle{id: "n1", style: "s1", bb: BoundingBox{W: 40, H: 50}}
	_, _, err := m.GetOrCreateAtlas(ele, "thing", rt.BoundingBox(ele))
	require.NoError(t, err)

	// Unchanged style: nothing to collect.
	assert.False(t, m.Invalidate([]any{ele}, InvalidateOpts{}))

	// Style transition tombstones the old key.
	ele.style = "s2"
	assert.True(t, m.Invalidate([]any{ele}, InvalidateOpts{}))
	c, _ := m.Collection("things")
	assert.Equal(t, 1, c.MarkedCount())

	// The new style rasterizes fresh; GC drops the stale entry.
	_, _, err = m.GetOrCreateAtlas(ele, "thing", rt.BoundingBox(ele))
	require.NoError(t, err)
	m.GC()
	assert.Equal(t, 0, c.MarkedCount())
	_, ok := c.AtlasFor("s1")
	assert.False(t, ok, "stale key survived gc")
	_, ok = c.AtlasFor("s2")
	assert.True(t, ok)
}

func TestManagerInvalidateForceRedraw(t *testing.T) {
	m, rt := newTestManager(t, 4)
	ele := &testEle{id: "n1", style: "s1", bb: BoundingBox{W: 40, H: 50}}
	_, _, err := m.GetOrCreateAtlas(ele, "thing", rt.BoundingBox(ele))
	require.NoError(t, err)

	// Pixels changed under a stable key: collect synchronously.
	assert.False(t, m.Invalidate([]any{ele}, InvalidateOpts{ForceRedraw: true}))
	c, _ := m.Collection("things")
	assert.Equal(t, 0, c.MarkedCount())
	_, ok := c.AtlasFor("s1")
	assert.False(t, ok, "forced key survived synchronous gc")

	// The next draw re-rasterizes.
	_, _, err = m.GetOrCreateAtlas(ele, "thing", rt.BoundingBox(ele))
	require.NoError(t, err)
	assert.Equal(t, 2, rt.draws)
}

func TestManagerInvalidateFilters(t *testing.T) {
	m, rt := newTestManager(t, 4)
	e1 := &testEle{id: "n1", style: "s1", bb: BoundingBox{W: 40, H: 50}}
	e2 := &testEle{id: "n2", style: "s2", bb: BoundingBox{W: 40, H: 50}}
	for _, e := range []*testEle{e1, e2} {
		_, _, err := m.GetOrCreateAtlas(e, "thing", rt.BoundingBox(e))
		require.NoError(t, err)
	}
	e1.style = "s1b"
	e2.style = "s2b"

	got := m.Invalidate([]any{e1, e2}, InvalidateOpts{
		FilterEle: func(ele any) bool { return ele.(*testEle).id == "n1" },
	})
	assert.True(t, got)
	c, _ := m.Collection("things")
	assert.Equal(t, 1, c.MarkedCount(), "filtered element must not be marked")
}

func TestManagerBatchCap(t *testing.T) {
	m, _ := newTestManager(t, 1)

	// Three full-row styles; one atlas (100px, 2 rows) holds only two.
	e1 := &testEle{id: "n1", style: "wide1", bb: BoundingBox{W: 100, H: 50}}
	e2 := &testEle{id: "n2", style: "wide2", bb: BoundingBox{W: 100, H: 50}}
	e3 := &testEle{id: "n3", style: "wide3", bb: BoundingBox{W: 100, H: 50}}

	m.StartBatch()
	info1, ok := m.AtlasInfo(e1, "thing")
	require.True(t, ok)
	assert.Equal(t, 0, info1.Index)

	// e2 lands in the same atlas (two rows): batch unchanged.
	info2, ok := m.AtlasInfo(e2, "thing")
	require.True(t, ok)
	assert.Equal(t, 0, info2.Index)
	assert.True(t, m.CanAddToCurrentBatch(e2, "thing"))

	// e3 needs a second atlas; the batch is full and refuses it.
	assert.False(t, m.CanAddToCurrentBatch(e3, "thing"))
	_, ok = m.AtlasInfo(e3, "thing")
	assert.False(t, ok)
	assert.Len(t, m.BatchAtlases(), 1)

	// A fresh batch takes it.
	m.StartBatch()
	info3, ok := m.AtlasInfo(e3, "thing")
	require.True(t, ok)
	assert.Equal(t, 0, info3.Index)
}

func TestManagerBatchNeverExceedsCap(t *testing.T) {
	m, _ := newTestManager(t, 2)
	m.StartBatch()
	for i := 0; i < 8; i++ {
		ele := &testEle{
			id:    fmt.Sprintf("n%d", i),
			style: fmt.Sprintf("wide%d", i),
			bb:    BoundingBox{W: 100, H: 50},
		}
		m.AtlasInfo(ele, "thing")
		assert.LessOrEqual(t, len(m.BatchAtlases()), 2)
	}
}

func TestManagerAtlasInfoLocations(t *testing.T) {
	m, _ := newTestManager(t, 4)
	m.StartBatch()

	// 80 then 40 wide on a 100px atlas: the second entry wraps.
	e1 := &testEle{id: "n1", style: "s1", bb: BoundingBox{W: 80, H: 50}}
	e2 := &testEle{id: "n2", style: "s2", bb: BoundingBox{W: 40, H: 50}}
	_, ok := m.AtlasInfo(e1, "thing")
	require.True(t, ok)
	info, ok := m.AtlasInfo(e2, "thing")
	require.True(t, ok)

	assert.Equal(t, Location{X: 80, Y: 0, W: 20, H: 50}, info.Tex1)
	assert.Equal(t, Location{X: 0, Y: 50, W: 20, H: 50}, info.Tex2)
	assert.Equal(t, BoundingBox{W: 40, H: 50}, info.BB)
}

func matNear(t *testing.T, want, got mgl32.Mat3) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-5, "matrix element %d", i)
	}
}

func TestSetTransformMatrixPlain(t *testing.T) {
	m, _ := newTestManager(t, 4)
	info := AtlasInfo{
		Tex1: Location{X: 0, Y: 0, W: 40, H: 50},
		BB:   BoundingBox{X1: 5, Y1: 7, W: 40, H: 50},
	}
	var mat mgl32.Mat3
	m.SetTransformMatrix(&mat, "thing", &testEle{}, info, true)

	want := mgl32.Translate2D(5, 7).Mul3(mgl32.Scale2D(40, 50))
	matNear(t, want, mat)
}

func TestSetTransformMatrixWrappedSplit(t *testing.T) {
	m, _ := newTestManager(t, 4)
	info := AtlasInfo{
		Tex1: Location{X: 80, Y: 0, W: 30, H: 50},
		Tex2: Location{X: 0, Y: 50, W: 10, H: 50},
		BB:   BoundingBox{X1: 0, Y1: 0, W: 40, H: 50},
	}

	// First half: left 3/4 of the quad.
	var first mgl32.Mat3
	m.SetTransformMatrix(&first, "thing", &testEle{}, info, true)
	matNear(t, mgl32.Translate2D(0, 0).Mul3(mgl32.Scale2D(30, 50)), first)

	// Second half: remaining quarter, shifted right.
	var second mgl32.Mat3
	m.SetTransformMatrix(&second, "thing", &testEle{}, info, false)
	matNear(t, mgl32.Translate2D(30, 0).Mul3(mgl32.Scale2D(10, 50)), second)
}

func TestSetTransformMatrixPadding(t *testing.T) {
	m, rt := newTestManager(t, 4)
	rt.padding = 3
	info := AtlasInfo{
		Tex1: Location{W: 40, H: 50},
		BB:   BoundingBox{X1: 10, Y1: 10, W: 40, H: 50},
	}
	var mat mgl32.Mat3
	m.SetTransformMatrix(&mat, "thing", &testEle{}, info, true)
	matNear(t, mgl32.Translate2D(7, 7).Mul3(mgl32.Scale2D(46, 56)), mat)
}

func TestSetTransformMatrixRotation(t *testing.T) {
	m, rt := newTestManager(t, 4)
	rt.rotation = 0.5
	info := AtlasInfo{
		Tex1: Location{W: 40, H: 50},
		BB:   BoundingBox{X1: 0, Y1: 0, W: 40, H: 50},
	}
	var mat mgl32.Mat3
	m.SetTransformMatrix(&mat, "thing", &testEle{}, info, true)

	want := mgl32.Translate2D(10, 20).
		Mul3(mgl32.HomogRotate2D(0.5)).
		Mul3(mgl32.Translate2D(-5, -8)).
		Mul3(mgl32.Scale2D(40, 50))
	matNear(t, want, mat)
}

func TestManagerDebugInfo(t *testing.T) {
	m, rt := newTestManager(t, 4)
	ele := &testEle{id: "n1", style: "s1", bb: BoundingBox{W: 40, H: 50}}
	_, _, err := m.GetOrCreateAtlas(ele, "thing", rt.BoundingBox(ele))
	require.NoError(t, err)

	infos := m.GetDebugInfo()
	require.Len(t, infos, 1)
	assert.Equal(t, "things", infos[0].Collection)
	assert.Equal(t, 1, infos[0].Atlases)
	assert.Equal(t, 1, infos[0].Keys)
}

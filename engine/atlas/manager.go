package atlas

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/weftgl/weft/engine/raster"
	"github.com/weftgl/weft/engine/util"
)

// RenderType declares how one class of drawable (node body, node label, ...)
// is keyed and rasterized. Optional capabilities are expressed by also
// implementing Identifier, Rotater or Padder.
type RenderType interface {
	// CollectionName names the atlas collection this type draws into.
	CollectionName() string
	// Key returns the style key. Equal keys must produce identical pixels.
	Key(ele any) string
	// BoundingBox returns the element's box in model space.
	BoundingBox(ele any) BoundingBox
	// DrawElement rasterizes the element into the canvas, drawing in
	// bounding-box coordinates.
	DrawElement(c *raster.Canvas, ele any, bb BoundingBox)
}

// Identifier supplies a stable element identity for style-transition
// tracking. Types that do not implement it use the element value itself,
// which must then be comparable.
type Identifier interface {
	ID(ele any) any
}

// Rotater supplies a per-element rotation for the instance transform.
type Rotater interface {
	Rotation(ele any) float64
	RotationPoint(ele any) (x, y float64)
	RotationOffset(ele any) (x, y float64)
}

// Padder expands the destination quad by a per-element padding.
type Padder interface {
	Padding(ele any) float64
}

// CollectionOpts configures a named collection.
type CollectionOpts struct {
	TexRows int
}

// InvalidateOpts scopes an invalidation sweep.
type InvalidateOpts struct {
	// ForceRedraw marks the element's current key for GC and collects
	// synchronously; used when pixels changed under a stable key.
	ForceRedraw bool
	FilterEle   func(ele any) bool
	FilterType  func(renderType string) bool
}

// AtlasInfo is everything a batcher needs to emit instances for one element.
type AtlasInfo struct {
	Index      int
	Atlas      *Atlas
	Tex1, Tex2 Location
	BB         BoundingBox
}

// DebugInfo summarizes one collection for diagnostics.
type DebugInfo struct {
	Collection string
	Atlases    int
	Keys       int
	Marked     int
}

type typeAndID struct {
	renderType string
	id         any
}

// Manager owns the named collections and render types, tracks per-element
// style keys so invalidation can tombstone stale entries, and assembles the
// per-frame list of atlases referenced by a batch, bounded by
// maxAtlasesPerBatch.
type Manager struct {
	texSize            int
	maxAtlasesPerBatch int
	factory            raster.Factory

	collections map[string]*AtlasCollection
	renderTypes map[string]RenderType

	keyForID map[typeAndID]string

	batch []*Atlas
}

// NewManager creates a manager producing atlases of texSize pixels and
// batches of at most maxAtlasesPerBatch atlases. factory may be nil for the
// default canvas allocator.
func NewManager(texSize, maxAtlasesPerBatch int, factory raster.Factory) *Manager {
	if factory == nil {
		factory = raster.NewCanvas
	}
	return &Manager{
		texSize:            texSize,
		maxAtlasesPerBatch: maxAtlasesPerBatch,
		factory:            factory,
		collections:        make(map[string]*AtlasCollection),
		renderTypes:        make(map[string]RenderType),
		keyForID:           make(map[typeAndID]string),
	}
}

// MaxAtlasesPerBatch returns the batch cap.
func (m *Manager) MaxAtlasesPerBatch() int { return m.maxAtlasesPerBatch }

// AddAtlasCollection registers a named collection.
func (m *Manager) AddAtlasCollection(name string, opts CollectionOpts) *AtlasCollection {
	c := NewAtlasCollection(m.texSize, opts.TexRows, m.factory)
	m.collections[name] = c
	return c
}

// AddRenderType registers a render type. The referenced collection must
// already exist.
func (m *Manager) AddRenderType(name string, rt RenderType) error {
	if _, ok := m.collections[rt.CollectionName()]; !ok {
		return errors.Errorf("render type %q references unknown collection %q", name, rt.CollectionName())
	}
	m.renderTypes[name] = rt
	return nil
}

// Collection returns a registered collection, if present.
func (m *Manager) Collection(name string) (*AtlasCollection, bool) {
	c, ok := m.collections[name]
	return c, ok
}

func (m *Manager) elementID(rt RenderType, ele any) any {
	if ident, ok := rt.(Identifier); ok {
		return ident.ID(ele)
	}
	return ele
}

// Invalidate sweeps the elements for style transitions. With ForceRedraw it
// tombstones the current keys and collects synchronously; otherwise it only
// marks keys whose element moved to a different style, and returns true when
// a deferred GC is worthwhile.
func (m *Manager) Invalidate(eles []any, opts InvalidateOpts) bool {
	needsGC := false
	for _, ele := range eles {
		if opts.FilterEle != nil && !opts.FilterEle(ele) {
			continue
		}
		for name, rt := range m.renderTypes {
			if opts.FilterType != nil && !opts.FilterType(name) {
				continue
			}
			id := typeAndID{renderType: name, id: m.elementID(rt, ele)}
			prev, ok := m.keyForID[id]
			if !ok {
				continue
			}
			if opts.ForceRedraw {
				m.markKey(rt, prev)
				delete(m.keyForID, id)
				continue
			}
			if key := rt.Key(ele); key != prev {
				m.markKey(rt, prev)
				delete(m.keyForID, id)
				needsGC = true
			}
		}
	}
	if opts.ForceRedraw {
		m.GC()
		return false
	}
	return needsGC
}

func (m *Manager) markKey(rt RenderType, key string) {
	if c, ok := m.collections[rt.CollectionName()]; ok {
		c.MarkKeyForGC(key)
	}
}

// GC collects every collection's marked keys.
func (m *Manager) GC() {
	for _, c := range m.collections {
		c.GC()
	}
}

// GetOrCreateAtlas resolves the element's atlas, rasterizing on a miss and
// recording the style key for transition tracking.
func (m *Manager) GetOrCreateAtlas(ele any, renderType string, bb BoundingBox) (*Atlas, string, error) {
	rt, ok := m.renderTypes[renderType]
	if !ok {
		return nil, "", errors.Errorf("unknown render type %q", renderType)
	}
	c := m.collections[rt.CollectionName()]
	key := rt.Key(ele)
	a, err := c.Draw(key, bb, func(cv *raster.Canvas, bb BoundingBox) {
		rt.DrawElement(cv, ele, bb)
	})
	if err != nil {
		return nil, "", err
	}
	m.keyForID[typeAndID{renderType: renderType, id: m.elementID(rt, ele)}] = key
	return a, key, nil
}

// StartBatch clears the per-frame atlas list.
func (m *Manager) StartBatch() {
	m.batch = m.batch[:0]
}

// BatchAtlases returns the atlases referenced by the current batch, in
// index order.
func (m *Manager) BatchAtlases() []*Atlas { return m.batch }

// CanAddToCurrentBatch reports whether drawing the element would still
// respect the batch's atlas cap: either the batch has room, or the
// element's atlas is already in it.
func (m *Manager) CanAddToCurrentBatch(ele any, renderType string) bool {
	if len(m.batch) < m.maxAtlasesPerBatch {
		return true
	}
	rt, ok := m.renderTypes[renderType]
	if !ok {
		return false
	}
	var a *Atlas
	c := m.collections[rt.CollectionName()]
	if existing, found := c.AtlasFor(rt.Key(ele)); found {
		a = existing
	} else {
		created, _, err := m.GetOrCreateAtlas(ele, renderType, rt.BoundingBox(ele))
		if err != nil {
			return false
		}
		a = created
	}
	for _, b := range m.batch {
		if b == a {
			return true
		}
	}
	return false
}

// AtlasIndexForBatch returns the atlas's index within the current batch,
// appending it when absent. It reports false when the batch is full and the
// atlas is not a member.
func (m *Manager) AtlasIndexForBatch(a *Atlas) (int, bool) {
	for i, b := range m.batch {
		if b == a {
			return i, true
		}
	}
	if len(m.batch) >= m.maxAtlasesPerBatch {
		return 0, false
	}
	m.batch = append(m.batch, a)
	return len(m.batch) - 1, true
}

// AtlasInfo composes atlas resolution, batch index assignment and entry
// lookup for one element. It reports false when the batch cannot take the
// element's atlas; the caller flushes and retries.
func (m *Manager) AtlasInfo(ele any, renderType string) (AtlasInfo, bool) {
	rt, ok := m.renderTypes[renderType]
	if !ok {
		return AtlasInfo{}, false
	}
	bb := rt.BoundingBox(ele)
	a, key, err := m.GetOrCreateAtlas(ele, renderType, bb)
	if err != nil {
		util.LogAtlasDebug("atlas info failed", "type", renderType, "err", err)
		return AtlasInfo{}, false
	}
	index, ok := m.AtlasIndexForBatch(a)
	if !ok {
		return AtlasInfo{}, false
	}
	entry, ok := a.Offsets(key)
	if !ok {
		return AtlasInfo{}, false
	}
	return AtlasInfo{Index: index, Atlas: a, Tex1: entry[0], Tex2: entry[1], BB: bb}, true
}

// SetTransformMatrix writes the instance transform for one (possibly
// wrapped) textured quad into mat. For wrapped entries the caller emits two
// instances, one with first=true sampling loc1 and one with first=false
// sampling loc2; the destination quad is split at the same ratio as the
// texture so the two halves reassemble the image.
func (m *Manager) SetTransformMatrix(mat *mgl32.Mat3, renderType string, ele any, info AtlasInfo, first bool) {
	rt := m.renderTypes[renderType]

	ratio := 1.0
	if total := info.Tex1.W + info.Tex2.W; info.Tex2.W > 0 && total > 0 {
		ratio = info.Tex1.W / total
	}
	if !first {
		ratio = 1 - ratio
	}

	bb := info.BB
	if p, ok := rt.(Padder); ok {
		pad := p.Padding(ele)
		bb.X1 -= pad
		bb.Y1 -= pad
		bb.W += 2 * pad
		bb.H += 2 * pad
	}

	adjW := bb.W * ratio
	xOffset := 0.0
	if !first {
		xOffset = bb.W - adjW
	}

	if r, ok := rt.(Rotater); ok {
		if theta := r.Rotation(ele); theta != 0 {
			px, py := r.RotationPoint(ele)
			ox, oy := r.RotationOffset(ele)
			*mat = mgl32.Translate2D(float32(px), float32(py)).
				Mul3(mgl32.HomogRotate2D(float32(theta))).
				Mul3(mgl32.Translate2D(float32(ox+xOffset), float32(oy))).
				Mul3(mgl32.Scale2D(float32(adjW), float32(bb.H)))
			return
		}
	}
	*mat = mgl32.Translate2D(float32(bb.X1+xOffset), float32(bb.Y1)).
		Mul3(mgl32.Scale2D(float32(adjW), float32(bb.H)))
}

// GetDebugInfo reports per-collection statistics.
func (m *Manager) GetDebugInfo() []DebugInfo {
	infos := make([]DebugInfo, 0, len(m.collections))
	for name, c := range m.collections {
		infos = append(infos, DebugInfo{
			Collection: name,
			Atlases:    c.Len(),
			Keys:       c.KeyCount(),
			Marked:     c.MarkedCount(),
		})
	}
	return infos
}

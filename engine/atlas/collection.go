package atlas

import (
	"github.com/pkg/errors"

	"github.com/weftgl/weft/engine/raster"
	"github.com/weftgl/weft/engine/util"
)

// AtlasCollection is the ordered list of atlases serving one render type
// family. Placement is append-only: only the last atlas is unlocked, and a
// draw that does not fit locks it and opens a new one. Removal happens only
// through mark-and-sweep GC, which repacks surviving entries into fresh
// atlases.
type AtlasCollection struct {
	texSize int
	texRows int

	factory raster.Factory

	atlases    []*Atlas
	keyToAtlas map[string]*Atlas
	marked     map[string]struct{}

	// One scratch for wrapped placement, one for stitching wrapped
	// entries back together during GC. Both sized texSize x rowHeight,
	// allocated on first use.
	scratch   *raster.Canvas
	gcScratch *raster.Canvas
}

// NewAtlasCollection creates an empty collection. texSize must be divisible
// by texRows.
func NewAtlasCollection(texSize, texRows int, factory raster.Factory) *AtlasCollection {
	if factory == nil {
		factory = raster.NewCanvas
	}
	return &AtlasCollection{
		texSize:    texSize,
		texRows:    texRows,
		factory:    factory,
		keyToAtlas: make(map[string]*Atlas),
		marked:     make(map[string]struct{}),
	}
}

func (c *AtlasCollection) TexSize() int { return c.texSize }
func (c *AtlasCollection) TexRows() int { return c.texRows }

// Len returns the number of atlases.
func (c *AtlasCollection) Len() int { return len(c.atlases) }

// KeyCount returns the number of live style keys.
func (c *AtlasCollection) KeyCount() int { return len(c.keyToAtlas) }

// Atlases returns the backing list, ordered oldest first.
func (c *AtlasCollection) Atlases() []*Atlas { return c.atlases }

// AtlasFor returns the atlas holding key, if any.
func (c *AtlasCollection) AtlasFor(key string) (*Atlas, bool) {
	a, ok := c.keyToAtlas[key]
	return a, ok
}

func (c *AtlasCollection) borrowScratch() *raster.Canvas {
	if c.scratch == nil {
		c.scratch = c.factory(c.texSize, c.texSize/c.texRows)
	}
	return c.scratch
}

func (c *AtlasCollection) borrowGCScratch() *raster.Canvas {
	if c.gcScratch == nil {
		c.gcScratch = c.factory(c.texSize, c.texSize/c.texRows)
	}
	c.gcScratch.Clear()
	return c.gcScratch
}

func (c *AtlasCollection) newAtlas() *Atlas {
	a := newAtlas(c.texSize, c.texRows, c.factory(c.texSize, c.texSize), c.borrowScratch())
	c.atlases = append(c.atlases, a)
	return a
}

// lastAtlas returns the only unlocked atlas, or nil when the collection is
// empty.
func (c *AtlasCollection) lastAtlas() *Atlas {
	if len(c.atlases) == 0 {
		return nil
	}
	return c.atlases[len(c.atlases)-1]
}

// Draw resolves key to its atlas, rasterizing through paint on a miss. A
// last atlas that cannot fit the box is locked and replaced by a fresh one.
func (c *AtlasCollection) Draw(key string, bb BoundingBox, paint PaintFunc) (*Atlas, error) {
	if a, ok := c.keyToAtlas[key]; ok {
		return a, nil
	}

	a := c.lastAtlas()
	if a == nil || !a.CanFit(bb) {
		if a != nil {
			a.Lock()
			util.LogAtlasDebug("atlas locked", "keys", len(a.entries))
		}
		a = c.newAtlas()
	}

	if _, err := a.Draw(key, bb, paint); err != nil {
		return nil, errors.Wrapf(err, "draw %q", key)
	}
	c.keyToAtlas[key] = a
	return a, nil
}

// MarkKeyForGC tombstones a key. No space is reclaimed until GC runs.
func (c *AtlasCollection) MarkKeyForGC(key string) {
	c.marked[key] = struct{}{}
}

// MarkedCount returns the number of keys awaiting collection.
func (c *AtlasCollection) MarkedCount() int { return len(c.marked) }

// GC sweeps marked keys. Atlases containing no marked key are retained
// untouched; the rest have their surviving entries re-drawn into fresh
// atlases by copying pixels out of the source canvas, then are disposed.
// Cost is proportional to the surviving area.
func (c *AtlasCollection) GC() {
	if len(c.marked) == 0 {
		return
	}

	var kept []*Atlas
	var targets []*Atlas
	newKeyToAtlas := make(map[string]*Atlas, len(c.keyToAtlas))
	var dst *Atlas
	collected, moved := 0, 0

	appendDst := func() *Atlas {
		dst = newAtlas(c.texSize, c.texRows, c.factory(c.texSize, c.texSize), c.borrowScratch())
		targets = append(targets, dst)
		return dst
	}

	for _, a := range c.atlases {
		dirty := false
		for key := range a.entries {
			if _, ok := c.marked[key]; ok {
				dirty = true
				break
			}
		}
		if !dirty {
			kept = append(kept, a)
			for key := range a.entries {
				newKeyToAtlas[key] = a
			}
			continue
		}

		for key, entry := range a.entries {
			if _, ok := c.marked[key]; ok {
				collected++
				continue
			}
			target := c.copyEntry(a, key, entry, &dst, appendDst)
			newKeyToAtlas[key] = target
			moved++
		}
		a.Dispose()
	}

	// Splice repack targets behind the untouched atlases and restore the
	// invariant that only the final atlas is unlocked.
	kept = append(kept, targets...)
	for i, a := range kept {
		if i < len(kept)-1 && !a.Locked() {
			a.Lock()
		}
	}

	util.LogAtlasDebug("atlas gc", "collected", collected, "moved", moved, "atlases", len(kept))

	c.atlases = kept
	c.keyToAtlas = newKeyToAtlas
	c.marked = make(map[string]struct{})
}

// copyEntry re-draws one surviving entry into the current destination atlas,
// opening a new destination when the current one is full. Wrapped source
// entries are first stitched side by side into the GC scratch.
func (c *AtlasCollection) copyEntry(src *Atlas, key string, entry Entry, dst **Atlas, appendDst func() *Atlas) *Atlas {
	totalW := entry[0].W + entry[1].W
	h := entry[0].H
	bb := BoundingBox{X1: 0, Y1: 0, W: totalW, H: h}

	var paint PaintFunc
	if entry.Wrapped() {
		stitch := c.borrowGCScratch()
		stitch.DrawImage(src.Canvas().Image(), entry[0].X, entry[0].Y, entry[0].W, h, 0, 0, entry[0].W, h)
		stitch.DrawImage(src.Canvas().Image(), entry[1].X, entry[1].Y, entry[1].W, h, entry[0].W, 0, entry[1].W, h)
		img := stitch.Image()
		paint = func(cv *raster.Canvas, bb BoundingBox) {
			cv.DrawImage(img, 0, 0, totalW, h, bb.X1, bb.Y1, bb.W, bb.H)
		}
	} else {
		img := src.Canvas().Image()
		sx, sy := entry[0].X, entry[0].Y
		paint = func(cv *raster.Canvas, bb BoundingBox) {
			cv.DrawImage(img, sx, sy, totalW, h, bb.X1, bb.Y1, bb.W, bb.H)
		}
	}

	target := *dst
	if target == nil || !target.CanFit(bb) {
		if target != nil {
			target.Lock()
		}
		target = appendDst()
	}
	if _, err := target.Draw(key, bb, paint); err != nil {
		// A fresh destination always fits a box no larger than one atlas
		// row; reaching this means the invariants are broken.
		panic(errors.Wrapf(err, "gc repack %q", key))
	}
	return target
}

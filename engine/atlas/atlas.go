package atlas

import (
	"math"

	"github.com/weftgl/weft/engine/raster"
	"github.com/weftgl/weft/engine/util"
)

// Atlas is one square texture cut into equal-height rows, filled left to
// right with a single monotonic cursor. Entries that do not fit in the tail
// of a row wrap onto the head of the next row. Once locked, an atlas accepts
// no further placements.
type Atlas struct {
	texSize   int
	texRows   int
	rowHeight int

	canvas  *raster.Canvas
	scratch *raster.Canvas // collection-owned, borrowed during draw

	cursorX   float64
	cursorRow int

	locked bool
	dirty  bool

	entries map[string]Entry

	texture Texture
}

func newAtlas(texSize, texRows int, canvas, scratch *raster.Canvas) *Atlas {
	return &Atlas{
		texSize:   texSize,
		texRows:   texRows,
		rowHeight: texSize / texRows,
		canvas:    canvas,
		scratch:   scratch,
		entries:   make(map[string]Entry),
	}
}

func (a *Atlas) TexSize() int   { return a.texSize }
func (a *Atlas) RowHeight() int { return a.rowHeight }
func (a *Atlas) Locked() bool   { return a.locked }
func (a *Atlas) Dirty() bool    { return a.dirty }

// Canvas exposes the CPU raster surface. The collection GC reads it as the
// copy source when repacking.
func (a *Atlas) Canvas() *raster.Canvas { return a.canvas }

// Keys returns the style keys stored in this atlas.
func (a *Atlas) Keys() []string {
	keys := make([]string, 0, len(a.entries))
	for k := range a.entries {
		keys = append(keys, k)
	}
	return keys
}

// Offsets returns the entry for key, if present.
func (a *Atlas) Offsets(key string) (Entry, bool) {
	e, ok := a.entries[key]
	return e, ok
}

// getScale fits the bounding box to the row height; if that overflows the
// atlas width, it refits to the width instead.
func (a *Atlas) getScale(bb BoundingBox) (scale, texW, texH float64) {
	scale = float64(a.rowHeight) / bb.H
	if bb.W*scale > float64(a.texSize) {
		scale = float64(a.texSize) / bb.W
	}
	return scale, bb.W * scale, bb.H * scale
}

// CanFit reports whether a texture for bb can still be placed. A locked
// atlas fits nothing. Wrapping needs a row below the cursor.
func (a *Atlas) CanFit(bb BoundingBox) bool {
	if a.locked {
		return false
	}
	_, texW, _ := a.getScale(bb)
	if a.cursorX+texW <= float64(a.texSize) {
		return true
	}
	return a.cursorRow < a.texRows-1
}

// Draw rasterizes the key's content through paint and records its entry.
// The caller guarantees the key is not already present.
func (a *Atlas) Draw(key string, bb BoundingBox, paint PaintFunc) (Entry, error) {
	if a.locked {
		return Entry{}, ErrAtlasLocked
	}
	if _, ok := a.entries[key]; ok {
		return Entry{}, ErrKeyExists
	}

	scale, texW, texH := a.getScale(bb)
	rowH := float64(a.rowHeight)

	for {
		switch {
		case a.cursorX+texW <= float64(a.texSize):
			loc := Location{X: a.cursorX, Y: float64(a.cursorRow) * rowH, W: texW, H: texH}
			a.paintAt(loc, scale, bb, paint)
			a.cursorX += texW
			// Advance to the next row on an exact fill, unless this was
			// already the final row; the cursor never leaves the texture.
			if a.cursorX == float64(a.texSize) && a.cursorRow+1 < a.texRows {
				a.cursorX = 0
				a.cursorRow++
			}
			entry := Entry{loc, {}}
			a.entries[key] = entry
			a.dirty = true
			return entry, nil

		case a.cursorRow >= a.texRows-1:
			return Entry{}, ErrNotEnoughRoom

		case a.cursorX == float64(a.texSize):
			a.cursorX = 0
			a.cursorRow++
			// retry as a straight placement on the fresh row

		default:
			entry := a.paintWrapped(key, scale, texW, texH, bb, paint)
			return entry, nil
		}
	}
}

// paintAt invokes paint inside a saved canvas state translated and scaled so
// the painter draws in bb coordinates, landing in the location's pixels.
func (a *Atlas) paintAt(loc Location, scale float64, bb BoundingBox, paint PaintFunc) {
	a.canvas.Save()
	a.canvas.Translate(loc.X, loc.Y)
	a.canvas.Scale(scale, scale)
	a.canvas.Translate(-bb.X1, -bb.Y1)
	paint(a.canvas, bb)
	a.canvas.Restore()
}

// paintWrapped paints once into the scratch canvas at origin and copies the
// two halves to the tail of the current row and the head of the next.
func (a *Atlas) paintWrapped(key string, scale, texW, texH float64, bb BoundingBox, paint PaintFunc) Entry {
	rowH := float64(a.rowHeight)
	firstW := float64(a.texSize) - a.cursorX
	secondW := texW - firstW

	a.scratch.Clear()
	a.scratch.Save()
	a.scratch.Scale(scale, scale)
	a.scratch.Translate(-bb.X1, -bb.Y1)
	paint(a.scratch, bb)
	a.scratch.Restore()

	loc1 := Location{X: a.cursorX, Y: float64(a.cursorRow) * rowH, W: firstW, H: texH}
	loc2 := Location{X: 0, Y: float64(a.cursorRow+1) * rowH, W: secondW, H: texH}

	src := a.scratch.Image()
	a.canvas.DrawImage(src, 0, 0, firstW, texH, loc1.X, loc1.Y, firstW, texH)
	a.canvas.DrawImage(src, firstW, 0, secondW, texH, loc2.X, loc2.Y, secondW, texH)

	a.cursorX = secondW
	a.cursorRow++

	entry := Entry{loc1, loc2}
	a.entries[key] = entry
	a.dirty = true
	return entry
}

// Lock marks the atlas full. Placement requests fail from here on.
func (a *Atlas) Lock() {
	a.locked = true
}

// BufferIfNeeded lazily allocates the GPU texture and uploads the CPU canvas
// when it has uncommitted pixels. The raster canvas is retained even when
// locked: collection GC repacks from it.
func (a *Atlas) BufferIfNeeded(dev Device) {
	if a.canvas == nil {
		return
	}
	if a.texture == nil {
		a.texture = dev.CreateTexture(a.texSize, a.texSize)
		util.LogTextureDebug("atlas texture allocated", "size", a.texSize)
	}
	if a.dirty {
		a.texture.Upload(a.canvas.Pix())
		a.dirty = false
	}
}

// Texture returns the GPU texture, or nil before the first BufferIfNeeded.
func (a *Atlas) Texture() Texture { return a.texture }

// Dispose releases the GPU texture and the CPU canvas. The atlas stays
// locked and unusable.
func (a *Atlas) Dispose() {
	if a.texture != nil {
		a.texture.Dispose()
		a.texture = nil
	}
	a.canvas = nil
	a.scratch = nil
	a.locked = true
}

// usedRows reports how many rows the cursor has at least partially consumed.
func (a *Atlas) usedRows() int {
	if a.cursorX == 0 {
		return a.cursorRow
	}
	return a.cursorRow + 1
}

// Utilization is the fraction of rows consumed, for debug output.
func (a *Atlas) Utilization() float64 {
	return math.Min(1, float64(a.usedRows())/float64(a.texRows))
}

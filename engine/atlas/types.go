package atlas

import (
	stderrors "errors"

	"github.com/pkg/errors"

	"github.com/weftgl/weft/engine/raster"
)

// BoundingBox is an element's axis-aligned box in model space. W and H must
// be positive.
type BoundingBox struct {
	X1, Y1 float64
	W, H   float64
}

// Location is a pixel region inside an atlas texture.
type Location struct {
	X, Y float64
	W, H float64
}

// Entry is the pair of locations a style key occupies. The second location
// has W == 0 for entries that fit in a single row; wrapped entries occupy the
// tail of one row and the head of the next.
type Entry [2]Location

// Wrapped reports whether the entry is split across two rows.
func (e Entry) Wrapped() bool {
	return e[1].W > 0
}

// PaintFunc rasterizes an element into the canvas. The canvas transform is
// prepared so that the function draws in bounding-box coordinates.
type PaintFunc func(c *raster.Canvas, bb BoundingBox)

// Texture is the GPU side of an atlas.
type Texture interface {
	Upload(pixels []uint8)
	Dispose()
}

// Device creates GPU textures. The GL implementation lives with the client;
// tests substitute fakes.
type Device interface {
	CreateTexture(width, height int) Texture
}

var (
	// ErrNotEnoughRoom reports that an atlas cannot place a texture. The
	// collection recovers by locking the atlas and allocating a fresh one.
	ErrNotEnoughRoom = errors.New("atlas: not enough room")

	// ErrAtlasLocked reports a draw into a locked atlas. This is a
	// programmer error and is never recovered.
	ErrAtlasLocked = errors.New("atlas: locked")

	// ErrKeyExists reports a draw for a key that is already present.
	ErrKeyExists = errors.New("atlas: key already present")
)

// IsNotEnoughRoom reports whether err is ErrNotEnoughRoom, however wrapped.
func IsNotEnoughRoom(err error) bool {
	return stderrors.Is(err, ErrNotEnoughRoom)
}

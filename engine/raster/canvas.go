package raster

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Canvas is a CPU-side drawing surface backed by an NRGBA image. It carries
// an affine state stack of translations and non-uniform scales, which is all
// the atlas raster path needs. Rotation is applied later, per instance, on
// the GPU.
type Canvas struct {
	img   *image.NRGBA
	state affine
	stack []affine
}

type affine struct {
	tx, ty float64
	sx, sy float64
}

// Factory produces canvases of the requested size. Each atlas collection
// allocates its atlas canvases and memoises its scratch canvases through
// this hook.
type Factory func(width, height int) *Canvas

// NewCanvas returns a transparent canvas of the given size with an identity
// transform.
func NewCanvas(width, height int) *Canvas {
	return &Canvas{
		img:   image.NewNRGBA(image.Rect(0, 0, width, height)),
		state: affine{sx: 1, sy: 1},
	}
}

func (c *Canvas) Width() int  { return c.img.Bounds().Dx() }
func (c *Canvas) Height() int { return c.img.Bounds().Dy() }

// Image exposes the backing image. Mutating it directly bypasses the
// transform stack; the atlas GC uses it as a read-only copy source.
func (c *Canvas) Image() *image.NRGBA { return c.img }

// Pix returns the raw RGBA bytes, row-major, 4 bytes per pixel. This is the
// layout the texture upload path expects.
func (c *Canvas) Pix() []uint8 { return c.img.Pix }

// Save pushes the current transform onto the stack.
func (c *Canvas) Save() {
	c.stack = append(c.stack, c.state)
}

// Restore pops the most recently saved transform. Restoring with an empty
// stack resets to identity.
func (c *Canvas) Restore() {
	if n := len(c.stack); n > 0 {
		c.state = c.stack[n-1]
		c.stack = c.stack[:n-1]
		return
	}
	c.state = affine{sx: 1, sy: 1}
}

func (c *Canvas) Translate(x, y float64) {
	c.state.tx += x * c.state.sx
	c.state.ty += y * c.state.sy
}

func (c *Canvas) Scale(x, y float64) {
	c.state.sx *= x
	c.state.sy *= y
}

// Clear resets every pixel to transparent black. The transform stack is left
// untouched.
func (c *Canvas) Clear() {
	pix := c.img.Pix
	for i := range pix {
		pix[i] = 0
	}
}

// FillRect fills the user-space rectangle with col under the current
// transform.
func (c *Canvas) FillRect(x, y, w, h float64, col color.NRGBA) {
	x0 := c.state.tx + x*c.state.sx
	y0 := c.state.ty + y*c.state.sy
	x1 := x0 + w*c.state.sx
	y1 := y0 + h*c.state.sy
	r := image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1)), int(math.Ceil(y1)))
	draw.Draw(c.img, r.Intersect(c.img.Bounds()), image.NewUniform(col), image.Point{}, draw.Over)
}

// DrawImage copies the source sub-rectangle (sx,sy,sw,sh) onto the
// destination rectangle (dx,dy,dw,dh) in user space, scaling as needed.
// Axis-aligned unscaled copies at integer offsets skip resampling and are
// composited with draw.Over, which reproduces opaque source pixels exactly;
// everything else goes through a bilinear affine transform.
func (c *Canvas) DrawImage(src image.Image, sx, sy, sw, sh, dx, dy, dw, dh float64) {
	if sw <= 0 || sh <= 0 || dw <= 0 || dh <= 0 {
		return
	}
	devX := c.state.tx + dx*c.state.sx
	devY := c.state.ty + dy*c.state.sy
	devW := dw * c.state.sx
	devH := dh * c.state.sy

	kx := devW / sw
	ky := devH / sh

	if kx == 1 && ky == 1 && isIntegral(sx, sy, sw, sh, devX, devY) {
		sr := image.Rect(int(sx), int(sy), int(sx+sw), int(sy+sh))
		dp := image.Pt(int(devX), int(devY))
		draw.Draw(c.img, image.Rectangle{Min: dp, Max: dp.Add(sr.Size())}, src, sr.Min, draw.Over)
		return
	}

	m := f64.Aff3{
		kx, 0, devX - sx*kx,
		0, ky, devY - sy*ky,
	}
	sr := image.Rect(int(math.Floor(sx)), int(math.Floor(sy)), int(math.Ceil(sx+sw)), int(math.Ceil(sy+sh)))
	xdraw.ApproxBiLinear.Transform(c.img, m, src, sr, xdraw.Over, nil)
}

func isIntegral(vals ...float64) bool {
	for _, v := range vals {
		if v != math.Trunc(v) {
			return false
		}
	}
	return true
}

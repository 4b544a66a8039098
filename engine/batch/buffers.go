package batch

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Per-instance attribute layout of the edge pipeline, in floats. One flat
// interleaved buffer backs every attribute; writes go through offset views so
// the hot path allocates nothing.
const (
	offIndex            = 0  // 4: element index packed into normalized bytes
	offSourceTarget     = 4  // 4: sx, sy, tx, ty
	offLineWidth        = 8  // 1
	offLineColor        = 9  // 4: premultiplied RGBA
	offDrawArrows       = 13 // 2: source/target arrow flags
	offSourceArrowCol   = 15 // 4: premultiplied RGBA
	offTargetArrowCol   = 19 // 4: premultiplied RGBA
	offSourceArrowTrans = 23 // 9: column-major 3x3
	offTargetArrowTrans = 32 // 9: column-major 3x3

	// InstanceStride is the number of floats one instance occupies.
	InstanceStride = 41
)

// InstanceData is the CPU staging buffer for one batch, pre-allocated at
// maxInstances and reused across batches and frames.
type InstanceData struct {
	data         []float32
	maxInstances int
}

// NewInstanceData allocates the staging buffer.
func NewInstanceData(maxInstances int) *InstanceData {
	return &InstanceData{
		data:         make([]float32, maxInstances*InstanceStride),
		maxInstances: maxInstances,
	}
}

// MaxInstances returns the buffer capacity in instances.
func (d *InstanceData) MaxInstances() int { return d.maxInstances }

// Floats returns the flat prefix covering count instances, in the exact
// layout the instance VBO expects.
func (d *InstanceData) Floats(count int) []float32 {
	return d.data[:count*InstanceStride]
}

func (d *InstanceData) view(i, offset, n int) []float32 {
	base := i*InstanceStride + offset
	return d.data[base : base+n : base+n]
}

// setIndex packs the element index as four normalized byte channels,
// little-endian, for the picking pass.
func (d *InstanceData) setIndex(i int, eleIndex int) {
	v := d.view(i, offIndex, 4)
	v[0] = float32(eleIndex&0xff) / 255
	v[1] = float32((eleIndex>>8)&0xff) / 255
	v[2] = float32((eleIndex>>16)&0xff) / 255
	v[3] = float32((eleIndex>>24)&0xff) / 255
}

func (d *InstanceData) setSourceTarget(i int, sx, sy, tx, ty float32) {
	v := d.view(i, offSourceTarget, 4)
	v[0], v[1], v[2], v[3] = sx, sy, tx, ty
}

func (d *InstanceData) setLineWidth(i int, w float32) {
	d.view(i, offLineWidth, 1)[0] = w
}

// setColor premultiplies an 8-bit RGB color by opacity.
func setColor(v []float32, rgb [3]uint8, opacity float32) {
	v[0] = float32(rgb[0]) / 255 * opacity
	v[1] = float32(rgb[1]) / 255 * opacity
	v[2] = float32(rgb[2]) / 255 * opacity
	v[3] = opacity
}

func (d *InstanceData) setLineColor(i int, rgb [3]uint8, opacity float32) {
	setColor(d.view(i, offLineColor, 4), rgb, opacity)
}

func (d *InstanceData) clearArrows(i int) {
	v := d.view(i, offDrawArrows, 2)
	v[0], v[1] = 0, 0
}

func (d *InstanceData) setArrow(i int, end ArrowEnd, rgb [3]uint8, opacity float32, transform mgl32.Mat3) {
	colOff, transOff := offSourceArrowCol, offSourceArrowTrans
	if end == TargetEnd {
		colOff, transOff = offTargetArrowCol, offTargetArrowTrans
	}
	d.view(i, offDrawArrows, 2)[int(end)] = 1
	setColor(d.view(i, colOff, 4), rgb, opacity)
	copy(d.view(i, transOff, 9), transform[:])
}

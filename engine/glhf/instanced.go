package glhf

import (
	"runtime"

	"github.com/faiface/mainthread"
	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/pkg/errors"
)

// InstancedSlice is a VAO pairing one static per-vertex buffer with one
// interleaved per-instance buffer. The static buffer is uploaded once at
// construction; the instance buffer is allocated at maxInstances*stride and
// updated per batch with a BufferSubData of only the live prefix.
//
// Mat3 instance attributes occupy three consecutive attribute locations of
// three floats each, all with divisor 1.
type InstancedSlice struct {
	vao, staticVBO, instanceVBO binder

	vertexCount  int
	maxInstances int

	staticFormat   AttrFormat
	instanceFormat AttrFormat
	instanceStride int

	shader *Shader
}

// NewInstancedSlice creates the VAO for an instanced draw. The staticData
// slice holds the per-vertex attributes for every vertex of one instance,
// laid out according to staticFormat. Attribute locations are resolved by
// name from the shader program.
func NewInstancedSlice(shader *Shader, staticFormat AttrFormat, staticData []float32, instanceFormat AttrFormat, maxInstances int) (*InstancedSlice, error) {
	staticStride := staticFormat.Size()
	if staticStride == 0 || len(staticData)*SizeOfFloat32%staticStride != 0 {
		return nil, errors.New("instanced slice: static data does not match format")
	}

	is := &InstancedSlice{
		vao: binder{
			restoreLoc: gl.VERTEX_ARRAY_BINDING,
			bindFunc: func(obj uint32) {
				gl.BindVertexArray(obj)
			},
		},
		staticVBO: binder{
			restoreLoc: gl.ARRAY_BUFFER_BINDING,
			bindFunc: func(obj uint32) {
				gl.BindBuffer(gl.ARRAY_BUFFER, obj)
			},
		},
		instanceVBO: binder{
			restoreLoc: gl.ARRAY_BUFFER_BINDING,
			bindFunc: func(obj uint32) {
				gl.BindBuffer(gl.ARRAY_BUFFER, obj)
			},
		},
		vertexCount:    len(staticData) * SizeOfFloat32 / staticStride,
		maxInstances:   maxInstances,
		staticFormat:   staticFormat,
		instanceFormat: instanceFormat,
		instanceStride: instanceFormat.Size(),
		shader:         shader,
	}

	gl.GenVertexArrays(1, &is.vao.obj)
	is.vao.bind()

	gl.GenBuffers(1, &is.staticVBO.obj)
	is.staticVBO.bind()
	gl.BufferData(gl.ARRAY_BUFFER, len(staticData)*SizeOfFloat32, gl.Ptr(staticData), gl.STATIC_DRAW)
	if err := is.setAttributes(staticFormat, staticStride, 0); err != nil {
		is.staticVBO.restore()
		is.vao.restore()
		return nil, err
	}
	is.staticVBO.restore()

	gl.GenBuffers(1, &is.instanceVBO.obj)
	is.instanceVBO.bind()
	empty := make([]byte, maxInstances*is.instanceStride)
	gl.BufferData(gl.ARRAY_BUFFER, len(empty), gl.Ptr(empty), gl.DYNAMIC_DRAW)
	if err := is.setAttributes(instanceFormat, is.instanceStride, 1); err != nil {
		is.instanceVBO.restore()
		is.vao.restore()
		return nil, err
	}
	is.instanceVBO.restore()

	is.vao.restore()

	runtime.SetFinalizer(is, (*InstancedSlice).delete)

	return is, nil
}

func (is *InstancedSlice) setAttributes(format AttrFormat, stride int, divisor uint32) error {
	offset := 0
	for _, attr := range format {
		loc := gl.GetAttribLocation(is.shader.program.obj, gl.Str(attr.Name+"\x00"))
		if loc < 0 {
			return errors.Errorf("instanced slice: attribute %q not found in program", attr.Name)
		}
		switch attr.Type {
		case Float, Vec2, Vec3, Vec4:
			size := int32(attr.Type.Size() / SizeOfFloat32)
			gl.VertexAttribPointerWithOffset(uint32(loc), size, gl.FLOAT, false, int32(stride), uintptr(offset))
			gl.VertexAttribDivisor(uint32(loc), divisor)
			gl.EnableVertexAttribArray(uint32(loc))
		case Mat3:
			for col := uint32(0); col < 3; col++ {
				gl.VertexAttribPointerWithOffset(uint32(loc)+col, 3, gl.FLOAT, false, int32(stride), uintptr(offset)+uintptr(col*3*SizeOfFloat32))
				gl.VertexAttribDivisor(uint32(loc)+col, divisor)
				gl.EnableVertexAttribArray(uint32(loc) + col)
			}
		default:
			return errors.New("instanced slice: invalid attribute type")
		}
		offset += attr.Type.Size()
	}
	return nil
}

func (is *InstancedSlice) delete() {
	mainthread.CallNonBlock(func() {
		gl.DeleteVertexArrays(1, &is.vao.obj)
		gl.DeleteBuffers(1, &is.staticVBO.obj)
		gl.DeleteBuffers(1, &is.instanceVBO.obj)
	})
}

// VertexCount returns the number of static vertices per instance.
func (is *InstancedSlice) VertexCount() int {
	return is.vertexCount
}

// MaxInstances returns the capacity of the instance buffer.
func (is *InstancedSlice) MaxInstances() int {
	return is.maxInstances
}

// Begin binds the VAO. Calling this is necessary before SetInstanceData or Draw.
func (is *InstancedSlice) Begin() {
	is.vao.bind()
}

// End unbinds the VAO.
func (is *InstancedSlice) End() {
	is.vao.restore()
}

// SetInstanceData uploads the first count instances from data, which must be
// laid out according to the instance format. Only the live prefix is sent.
func (is *InstancedSlice) SetInstanceData(count int, data []float32) {
	if count == 0 {
		return
	}
	if count > is.maxInstances {
		panic("set instance data: count exceeds max instances")
	}
	floats := count * is.instanceStride / SizeOfFloat32
	if floats > len(data) {
		panic("set instance data: not enough data for count")
	}
	is.instanceVBO.bind()
	gl.BufferSubData(gl.ARRAY_BUFFER, 0, floats*SizeOfFloat32, gl.Ptr(data))
	is.instanceVBO.restore()
}

// Draw issues one instanced draw of the static geometry.
func (is *InstancedSlice) Draw(instanceCount int) {
	if instanceCount == 0 {
		return
	}
	gl.DrawArraysInstanced(gl.TRIANGLES, 0, int32(is.vertexCount), int32(instanceCount))
}

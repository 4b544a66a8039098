package glhf

import (
	"github.com/go-gl/gl/v3.3-core/gl"
)

// binder wraps an OpenGL object with its bind function and remembers the
// previously bound object, so that Begin/End pairs restore whatever state the
// caller had.
type binder struct {
	restoreLoc uint32
	bindFunc   func(uint32)

	obj uint32

	prev []uint32
}

func (b *binder) bind() *binder {
	var prev int32
	gl.GetIntegerv(b.restoreLoc, &prev)
	b.prev = append(b.prev, uint32(prev))
	b.bindFunc(b.obj)
	return b
}

func (b *binder) restore() *binder {
	b.bindFunc(b.prev[len(b.prev)-1])
	b.prev = b.prev[:len(b.prev)-1]
	return b
}

package batch

import (
	_ "embed"

	"github.com/pkg/errors"

	"github.com/weftgl/weft/engine/glhf"
)

var (
	//go:embed shader/edge.vert
	edgeVertexShaderSource string

	//go:embed shader/edge.frag
	edgeFragmentShaderSource string
)

// vertType constants mirrored into the static geometry; the shader
// dispatches on them per vertex.
const (
	vertTypeLine        = 0
	vertTypeSourceArrow = 1
	vertTypeTargetArrow = 2
)

// edgeVertexFormat is the static per-vertex layout: a position within the
// instance's local geometry and the vertex type.
var edgeVertexFormat = glhf.AttrFormat{
	{Name: "aPosition", Type: glhf.Vec2},
	{Name: "aVertType", Type: glhf.Float},
}

// edgeInstanceFormat matches InstanceStride float for float.
var edgeInstanceFormat = glhf.AttrFormat{
	{Name: "aIndex", Type: glhf.Vec4},
	{Name: "aSourceTarget", Type: glhf.Vec4},
	{Name: "aLineWidth", Type: glhf.Float},
	{Name: "aLineColor", Type: glhf.Vec4},
	{Name: "aDrawArrows", Type: glhf.Vec2},
	{Name: "aSourceArrowColor", Type: glhf.Vec4},
	{Name: "aTargetArrowColor", Type: glhf.Vec4},
	{Name: "aSourceArrowTransform", Type: glhf.Mat3},
	{Name: "aTargetArrowTransform", Type: glhf.Mat3},
}

var edgeUniformFormat = glhf.AttrFormat{
	{Name: "uPanZoomMatrix", Type: glhf.Mat3},
	{Name: "uBGColor", Type: glhf.Vec4},
}

// edgeStaticGeometry lays out the 12 vertices of one instance: six for the
// oriented line quad and three for each arrowhead. Arrow triangles point
// along +x with the tip at the origin; the instance transform does the rest.
func edgeStaticGeometry() []float32 {
	quad := [][2]float32{
		{0, -0.5}, {1, -0.5}, {1, 0.5},
		{0, -0.5}, {1, 0.5}, {0, 0.5},
	}
	arrow := [][2]float32{
		{0, 0}, {-1, 0.5}, {-1, -0.5},
	}
	data := make([]float32, 0, 12*3)
	for _, p := range quad {
		data = append(data, p[0], p[1], vertTypeLine)
	}
	for _, p := range arrow {
		data = append(data, p[0], p[1], vertTypeSourceArrow)
	}
	for _, p := range arrow {
		data = append(data, p[0], p[1], vertTypeTargetArrow)
	}
	return data
}

// GLBackend renders batches with one instanced draw call per flush. The
// screen and picking programs are compiled from the same sources; picking
// gets a PICKING define. Callers must have set premultiplied-alpha blending
// (ONE, ONE_MINUS_SRC_ALPHA) on the context.
type GLBackend struct {
	screen  *glhf.Shader
	picking *glhf.Shader
	slice   *glhf.InstancedSlice
}

// NewGLBackend compiles the programs and builds the VAO. Must run on the
// thread owning the GL context.
func NewGLBackend(maxInstances int) (*GLBackend, error) {
	screen, err := glhf.NewShader(edgeVertexFormat, edgeUniformFormat, edgeVertexShaderSource, edgeFragmentShaderSource)
	if err != nil {
		return nil, errors.Wrap(err, "edge screen program")
	}
	picking, err := glhf.NewShader(edgeVertexFormat, edgeUniformFormat, edgeVertexShaderSource, edgeFragmentShaderSource, "PICKING")
	if err != nil {
		return nil, errors.Wrap(err, "edge picking program")
	}
	// Attribute locations are fixed by layout qualifiers, so one VAO
	// serves both programs.
	slice, err := glhf.NewInstancedSlice(screen, edgeVertexFormat, edgeStaticGeometry(), edgeInstanceFormat, maxInstances)
	if err != nil {
		return nil, errors.Wrap(err, "edge instanced slice")
	}
	return &GLBackend{screen: screen, picking: picking, slice: slice}, nil
}

// Submit uploads the live prefix of the staging buffer and issues the draw.
func (g *GLBackend) Submit(state FrameState, data *InstanceData, count int) {
	if count == 0 {
		return
	}
	shader := g.screen
	if state.Target == TargetPicking {
		shader = g.picking
	}
	shader.Begin()
	shader.SetUniformAttr(0, state.PanZoom)
	shader.SetUniformAttr(1, state.BGColor)

	g.slice.Begin()
	g.slice.SetInstanceData(count, data.Floats(count))
	g.slice.Draw(count)
	g.slice.End()

	shader.End()
}

package glhf

import (
	"runtime"
	"strings"

	"github.com/faiface/mainthread"
	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
)

// Shader is a compiled and linked GLSL vertex/fragment program together with
// the declared layout of its vertex attributes and uniforms.
type Shader struct {
	program       binder
	vertexFormat  AttrFormat
	uniformFormat AttrFormat
	uniformLoc    []int32
}

// NewShader compiles the vertex and fragment sources and links them into a
// program. The defines are injected as "#define NAME" lines right after the
// "#version" directive of each stage, so one source file can serve several
// program variants.
func NewShader(vertexFmt, uniformFmt AttrFormat, vertexSrc, fragmentSrc string, defines ...string) (*Shader, error) {
	shader := &Shader{
		program: binder{
			restoreLoc: gl.CURRENT_PROGRAM,
			bindFunc: func(obj uint32) {
				gl.UseProgram(obj)
			},
		},
		vertexFormat:  vertexFmt,
		uniformFormat: uniformFmt,
		uniformLoc:    make([]int32, len(uniformFmt)),
	}

	var vshader, fshader uint32

	vshader, err := compileShader(gl.VERTEX_SHADER, injectDefines(vertexSrc, defines))
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile vertex shader")
	}
	defer gl.DeleteShader(vshader)

	fshader, err = compileShader(gl.FRAGMENT_SHADER, injectDefines(fragmentSrc, defines))
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile fragment shader")
	}
	defer gl.DeleteShader(fshader)

	shader.program.obj = gl.CreateProgram()
	gl.AttachShader(shader.program.obj, vshader)
	gl.AttachShader(shader.program.obj, fshader)
	gl.LinkProgram(shader.program.obj)

	var success int32
	gl.GetProgramiv(shader.program.obj, gl.LINK_STATUS, &success)
	if success == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(shader.program.obj, gl.INFO_LOG_LENGTH, &logLen)
		infoLog := make([]byte, logLen+1)
		gl.GetProgramInfoLog(shader.program.obj, logLen, nil, &infoLog[0])
		return nil, errors.Errorf("failed to link shader program: %s", string(infoLog))
	}

	for i, uniform := range uniformFmt {
		loc := gl.GetUniformLocation(shader.program.obj, gl.Str(uniform.Name+"\x00"))
		shader.uniformLoc[i] = loc
	}

	runtime.SetFinalizer(shader, (*Shader).delete)

	return shader, nil
}

func compileShader(shaderType uint32, source string) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var success int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &success)
	if success == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		infoLog := make([]byte, logLen+1)
		gl.GetShaderInfoLog(shader, logLen, nil, &infoLog[0])
		return 0, errors.Errorf("compile error: %s", string(infoLog))
	}
	return shader, nil
}

func injectDefines(source string, defines []string) string {
	if len(defines) == 0 {
		return source
	}
	var sb strings.Builder
	lines := strings.SplitAfterN(source, "\n", 2)
	sb.WriteString(lines[0])
	for _, d := range defines {
		sb.WriteString("#define " + d + "\n")
	}
	if len(lines) > 1 {
		sb.WriteString(lines[1])
	}
	return sb.String()
}

func (s *Shader) delete() {
	mainthread.CallNonBlock(func() {
		gl.DeleteProgram(s.program.obj)
	})
}

// ID returns the OpenGL ID of this Shader.
func (s *Shader) ID() uint32 {
	return s.program.obj
}

// VertexFormat returns the vertex attribute format of this Shader.
func (s *Shader) VertexFormat() AttrFormat {
	return s.vertexFormat
}

// UniformFormat returns the uniform attribute format of this Shader.
func (s *Shader) UniformFormat() AttrFormat {
	return s.uniformFormat
}

// SetUniformAttr sets the value of a uniform attribute of this Shader by its
// index in the uniform format. The shader must be bound with Begin.
//
// Supported types: int32, float32, mgl32.Vec2, mgl32.Vec3, mgl32.Vec4,
// mgl32.Mat3, mgl32.Mat4.
func (s *Shader) SetUniformAttr(uniform int, value interface{}) (ok bool) {
	if s.uniformLoc[uniform] < 0 {
		return false
	}
	switch s.uniformFormat[uniform].Type {
	case Int:
		value := value.(int32)
		gl.Uniform1iv(s.uniformLoc[uniform], 1, &value)
	case Float:
		value := value.(float32)
		gl.Uniform1fv(s.uniformLoc[uniform], 1, &value)
	case Vec2:
		value := value.(mgl32.Vec2)
		gl.Uniform2fv(s.uniformLoc[uniform], 1, &value[0])
	case Vec3:
		value := value.(mgl32.Vec3)
		gl.Uniform3fv(s.uniformLoc[uniform], 1, &value[0])
	case Vec4:
		value := value.(mgl32.Vec4)
		gl.Uniform4fv(s.uniformLoc[uniform], 1, &value[0])
	case Mat3:
		value := value.(mgl32.Mat3)
		gl.UniformMatrix3fv(s.uniformLoc[uniform], 1, false, &value[0])
	case Mat4:
		value := value.(mgl32.Mat4)
		gl.UniformMatrix4fv(s.uniformLoc[uniform], 1, false, &value[0])
	default:
		panic("set uniform attr: invalid uniform type")
	}
	return true
}

// Begin binds the Shader program. This is necessary before using the Shader.
func (s *Shader) Begin() {
	s.program.bind()
}

// End unbinds the Shader program and restores the previous one.
func (s *Shader) End() {
	s.program.restore()
}

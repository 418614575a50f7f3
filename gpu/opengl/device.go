package opengl

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gmlewis/deferred/gpu"
)

// Device is a gpu.Device implementation using OpenGL 4.1 core.
// The GL context must be current on the calling thread.
type Device struct{}

var _ gpu.Device = &Device{}

func (d *Device) CreateVertexArray() gpu.Handle {
	var vao uint32
	gl.GenVertexArrays(1, &vao)
	return gpu.Handle(vao)
}

func (d *Device) BindVertexArray(vao gpu.Handle) {
	gl.BindVertexArray(uint32(vao))
}

func (d *Device) DeleteVertexArray(vao gpu.Handle) {
	v := uint32(vao)
	gl.DeleteVertexArrays(1, &v)
}

func (d *Device) CreateBuffer() gpu.Handle {
	var vbo uint32
	gl.GenBuffers(1, &vbo)
	return gpu.Handle(vbo)
}

func (d *Device) BufferData(target gpu.BufferTarget, buf gpu.Handle, data []float32, usage gpu.Usage) {
	t := bufferTarget(target)
	gl.BindBuffer(t, uint32(buf))
	if len(data) == 0 {
		gl.BufferData(t, 0, nil, bufferUsage(usage))
		return
	}
	gl.BufferData(t, len(data)*4, gl.Ptr(data), bufferUsage(usage))
}

func (d *Device) IndexData(buf gpu.Handle, data []uint32, usage gpu.Usage) {
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, uint32(buf))
	if len(data) == 0 {
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, 0, nil, bufferUsage(usage))
		return
	}
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(data)*4, gl.Ptr(data), bufferUsage(usage))
}

func (d *Device) VertexAttrib(buf gpu.Handle, location uint32, size, stride, offset int, divisor uint32) {
	gl.BindBuffer(gl.ARRAY_BUFFER, uint32(buf))
	gl.EnableVertexAttribArray(location)
	gl.VertexAttribPointer(location, int32(size), gl.FLOAT, false, int32(stride), gl.PtrOffset(offset))
	gl.VertexAttribDivisor(location, divisor)
}

func (d *Device) DisableVertexAttrib(location uint32) {
	gl.DisableVertexAttribArray(location)
}

func (d *Device) DeleteBuffer(buf gpu.Handle) {
	b := uint32(buf)
	gl.DeleteBuffers(1, &b)
}

func (d *Device) CompileProgram(vertexSrc, fragmentSrc string) (gpu.Handle, error) {
	program, err := newProgram(vertexSrc, fragmentSrc)
	if err != nil {
		return gpu.NoHandle, err
	}
	return gpu.Handle(program), nil
}

func (d *Device) UseProgram(program gpu.Handle) {
	gl.UseProgram(uint32(program))
}

func (d *Device) UniformLocation(program gpu.Handle, name string) int32 {
	return gl.GetUniformLocation(uint32(program), gl.Str(name+"\x00"))
}

func (d *Device) Uniform1i(location int32, v int32) { gl.Uniform1i(location, v) }

func (d *Device) Uniform1f(location int32, v float32) { gl.Uniform1f(location, v) }

func (d *Device) Uniform2f(location int32, v mgl32.Vec2) { gl.Uniform2f(location, v[0], v[1]) }

func (d *Device) Uniform3f(location int32, v mgl32.Vec3) { gl.Uniform3f(location, v[0], v[1], v[2]) }

func (d *Device) Uniform4f(location int32, v mgl32.Vec4) {
	gl.Uniform4f(location, v[0], v[1], v[2], v[3])
}

func (d *Device) UniformMatrix3(location int32, m mgl32.Mat3) {
	gl.UniformMatrix3fv(location, 1, false, &m[0])
}

func (d *Device) UniformMatrix4(location int32, m mgl32.Mat4) {
	gl.UniformMatrix4fv(location, 1, false, &m[0])
}

func (d *Device) DeleteProgram(program gpu.Handle) {
	gl.DeleteProgram(uint32(program))
}

func (d *Device) CreateTexture(width, height int, format gpu.TextureFormat, pixels []byte) gpu.Handle {
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	texImage(width, height, format, pixels)

	if pixels != nil {
		gl.GenerateMipmap(gl.TEXTURE_2D)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	} else {
		// Render targets are sampled texel-exact by the fullscreen passes.
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	}
	return gpu.Handle(tex)
}

func (d *Device) ResizeTexture(tex gpu.Handle, width, height int, format gpu.TextureFormat) {
	gl.BindTexture(gl.TEXTURE_2D, uint32(tex))
	texImage(width, height, format, nil)
}

func (d *Device) UpdateTexture(tex gpu.Handle, width, height int, format gpu.TextureFormat, pixels []byte) {
	gl.BindTexture(gl.TEXTURE_2D, uint32(tex))
	texImage(width, height, format, pixels)
	gl.GenerateMipmap(gl.TEXTURE_2D)
}

func (d *Device) BindTexture(unit int, tex gpu.Handle) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
	gl.BindTexture(gl.TEXTURE_2D, uint32(tex))
}

func (d *Device) DeleteTexture(tex gpu.Handle) {
	t := uint32(tex)
	gl.DeleteTextures(1, &t)
}

func (d *Device) CreateFramebuffer() gpu.Handle {
	var fbo uint32
	gl.GenFramebuffers(1, &fbo)
	return gpu.Handle(fbo)
}

func (d *Device) AttachTexture(fb gpu.Handle, index int, tex gpu.Handle, depth bool) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(fb))
	attachment := uint32(gl.COLOR_ATTACHMENT0 + index)
	if depth {
		attachment = gl.DEPTH_ATTACHMENT
	}
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, attachment, gl.TEXTURE_2D, uint32(tex), 0)
}

func (d *Device) DrawBuffers(fb gpu.Handle, count int) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(fb))
	if count == 0 {
		gl.DrawBuffer(gl.NONE)
		return
	}
	attachments := make([]uint32, count)
	for i := range attachments {
		attachments[i] = gl.COLOR_ATTACHMENT0 + uint32(i)
	}
	gl.DrawBuffers(int32(count), &attachments[0])
}

func (d *Device) CheckFramebuffer(fb gpu.Handle) error {
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(fb))
	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("framebuffer %v not complete: status 0x%x", fb, status)
	}
	return nil
}

func (d *Device) BindFramebuffer(fb gpu.Handle) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(fb))
}

func (d *Device) DeleteFramebuffer(fb gpu.Handle) {
	f := uint32(fb)
	gl.DeleteFramebuffers(1, &f)
}

func (d *Device) Viewport(x, y, width, height int) {
	gl.Viewport(int32(x), int32(y), int32(width), int32(height))
}

func (d *Device) ClearColor(r, g, b, a float32) { gl.ClearColor(r, g, b, a) }

func (d *Device) Clear(color, depth bool) {
	var mask uint32
	if color {
		mask |= gl.COLOR_BUFFER_BIT
	}
	if depth {
		mask |= gl.DEPTH_BUFFER_BIT
		gl.DepthMask(true)
	}
	gl.Clear(mask)
}

func (d *Device) ColorMask(m gpu.ColorMask) {
	gl.ColorMask(m.R, m.G, m.B, m.A)
}

func (d *Device) CullFace(face gpu.Face) {
	switch face {
	case gpu.CullNone:
		gl.Disable(gl.CULL_FACE)
	case gpu.CullFront:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.FRONT)
	default:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
	}
	gl.FrontFace(gl.CCW)
}

func (d *Device) DepthFunc(fn gpu.DepthFunc) {
	gl.Enable(gl.DEPTH_TEST)
	switch fn {
	case gpu.DepthLEqual:
		gl.DepthFunc(gl.LEQUAL)
	case gpu.DepthAlways:
		gl.DepthFunc(gl.ALWAYS)
	default:
		gl.DepthFunc(gl.LESS)
	}
}

func (d *Device) DrawArrays(mode gpu.Primitive, first, count int) {
	gl.DrawArrays(primitive(mode), int32(first), int32(count))
	checkError("DrawArrays")
}

func (d *Device) DrawElements(mode gpu.Primitive, count int) {
	gl.DrawElements(primitive(mode), int32(count), gl.UNSIGNED_INT, nil)
	checkError("DrawElements")
}

func (d *Device) DrawArraysInstanced(mode gpu.Primitive, first, count, instances int) {
	gl.DrawArraysInstanced(primitive(mode), int32(first), int32(count), int32(instances))
	checkError("DrawArraysInstanced")
}

func (d *Device) DrawElementsInstanced(mode gpu.Primitive, count, instances int) {
	gl.DrawElementsInstanced(primitive(mode), int32(count), gl.UNSIGNED_INT, nil, int32(instances))
	checkError("DrawElementsInstanced")
}

func (d *Device) ReadPixels(x, y, width, height int) []byte {
	pix := make([]byte, width*height*4)
	if len(pix) == 0 {
		return pix
	}
	gl.ReadPixels(int32(x), int32(y), int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(&pix[0]))
	checkError("ReadPixels")
	return pix
}

func texImage(width, height int, format gpu.TextureFormat, pixels []byte) {
	internal, pixelFormat, xtype := textureFormat(format)
	var ptr unsafe.Pointer
	if len(pixels) > 0 {
		ptr = gl.Ptr(pixels)
	}
	gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(width), int32(height), 0, pixelFormat, xtype, ptr)
}

func textureFormat(f gpu.TextureFormat) (internal int32, format, xtype uint32) {
	switch f {
	case gpu.RGB16F:
		return gl.RGB16F, gl.RGB, gl.FLOAT
	case gpu.RGB32F:
		return gl.RGB32F, gl.RGB, gl.FLOAT
	case gpu.RGBA16F:
		return gl.RGBA16F, gl.RGBA, gl.FLOAT
	case gpu.RGBA32F:
		return gl.RGBA32F, gl.RGBA, gl.FLOAT
	case gpu.Depth24:
		return gl.DEPTH_COMPONENT24, gl.DEPTH_COMPONENT, gl.FLOAT
	case gpu.Depth32F:
		return gl.DEPTH_COMPONENT32F, gl.DEPTH_COMPONENT, gl.FLOAT
	default:
		return gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE
	}
}

func bufferTarget(t gpu.BufferTarget) uint32 {
	if t == gpu.ElementBuffer {
		return gl.ELEMENT_ARRAY_BUFFER
	}
	return gl.ARRAY_BUFFER
}

func bufferUsage(u gpu.Usage) uint32 {
	if u == gpu.DynamicDraw {
		return gl.DYNAMIC_DRAW
	}
	return gl.STATIC_DRAW
}

func primitive(p gpu.Primitive) uint32 {
	switch p {
	case gpu.TriangleStrip:
		return gl.TRIANGLE_STRIP
	case gpu.Lines:
		return gl.LINES
	case gpu.Points:
		return gl.POINTS
	default:
		return gl.TRIANGLES
	}
}

func checkError(op string) {
	if e := gl.GetError(); e != gl.NO_ERROR {
		logger().Sugar().Warnf("%v: GL ERROR: 0x%x", op, e)
	}
}

func newProgram(vertexShaderSource, fragmentShaderSource string) (uint32, error) {
	vertexShader, err := compileShader(vertexShaderSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}

	fragmentShader, err := compileShader(fragmentShaderSource, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vertexShader)
		return 0, err
	}

	program := gl.CreateProgram()

	gl.AttachShader(program, vertexShader)
	gl.AttachShader(program, fragmentShader)
	gl.LinkProgram(program)

	gl.DeleteShader(vertexShader)
	gl.DeleteShader(fragmentShader)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)

		return 0, fmt.Errorf("failed to link program: %v", strings.TrimRight(log, "\x00"))
	}

	return program, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)

	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)

		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)

		return 0, fmt.Errorf("failed to compile %v shader: %v", stageName(shaderType), strings.TrimRight(log, "\x00"))
	}

	return shader, nil
}

func stageName(shaderType uint32) string {
	if shaderType == gl.FRAGMENT_SHADER {
		return "fragment"
	}
	return "vertex"
}

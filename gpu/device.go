// Package gpu defines the graphics call list the deferred pipeline is
// written against. Backends (OpenGL, the recording test device) implement
// Device; all methods must be called from the goroutine owning the context.
package gpu

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Handle names a GPU object (buffer, vertex array, texture, program,
// framebuffer). The zero Handle is never a valid object; as a framebuffer
// it denotes the default (display) target.
type Handle uint32

// NoHandle is the zero Handle.
const NoHandle Handle = 0

// Device represents a graphics backend.
type Device interface {
	CreateVertexArray() Handle
	BindVertexArray(vao Handle)
	DeleteVertexArray(vao Handle)

	CreateBuffer() Handle
	// BufferData replaces the whole contents of buf.
	BufferData(target BufferTarget, buf Handle, data []float32, usage Usage)
	// IndexData replaces the whole contents of the element buffer buf.
	IndexData(buf Handle, data []uint32, usage Usage)
	// VertexAttrib points attribute location at buf (float components) within
	// the currently bound vertex array. A divisor of 0 advances per vertex,
	// 1 advances per instance.
	VertexAttrib(buf Handle, location uint32, size, stride, offset int, divisor uint32)
	// DisableVertexAttrib turns attribute location off in the currently bound
	// vertex array.
	DisableVertexAttrib(location uint32)
	DeleteBuffer(buf Handle)

	CompileProgram(vertexSrc, fragmentSrc string) (Handle, error)
	UseProgram(program Handle)
	// UniformLocation returns -1 for names the program does not use.
	UniformLocation(program Handle, name string) int32
	Uniform1i(location int32, v int32)
	Uniform1f(location int32, v float32)
	Uniform2f(location int32, v mgl32.Vec2)
	Uniform3f(location int32, v mgl32.Vec3)
	Uniform4f(location int32, v mgl32.Vec4)
	UniformMatrix3(location int32, m mgl32.Mat3)
	UniformMatrix4(location int32, m mgl32.Mat4)
	DeleteProgram(program Handle)

	// CreateTexture allocates a 2D texture; pixels may be nil for render
	// targets.
	CreateTexture(width, height int, format TextureFormat, pixels []byte) Handle
	// ResizeTexture re-specifies storage keeping the handle and format.
	ResizeTexture(tex Handle, width, height int, format TextureFormat)
	// UpdateTexture replaces the size and pixels of tex, keeping the handle.
	UpdateTexture(tex Handle, width, height int, format TextureFormat, pixels []byte)
	BindTexture(unit int, tex Handle)
	DeleteTexture(tex Handle)

	CreateFramebuffer() Handle
	// AttachTexture attaches tex as color attachment index, or as the depth
	// attachment when depth is set.
	AttachTexture(fb Handle, index int, tex Handle, depth bool)
	DrawBuffers(fb Handle, count int)
	CheckFramebuffer(fb Handle) error
	BindFramebuffer(fb Handle)
	DeleteFramebuffer(fb Handle)

	Viewport(x, y, width, height int)
	ClearColor(r, g, b, a float32)
	Clear(color, depth bool)
	ColorMask(m ColorMask)
	CullFace(face Face)
	DepthFunc(fn DepthFunc)

	DrawArrays(mode Primitive, first, count int)
	DrawElements(mode Primitive, count int)
	DrawArraysInstanced(mode Primitive, first, count, instances int)
	DrawElementsInstanced(mode Primitive, count, instances int)

	// ReadPixels reads RGBA8 pixels from the bound framebuffer, bottom row
	// first.
	ReadPixels(x, y, width, height int) []byte
}

// Package gputest provides a gpu.Device that records calls instead of
// talking to a driver, for use in tests.
package gputest

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gmlewis/deferred/gpu"
)

// Buffer is the recorded state of a buffer object.
type Buffer struct {
	Target  gpu.BufferTarget
	Usage   gpu.Usage
	Floats  []float32
	Indices []uint32
	Uploads int
	Deleted bool
}

// Attrib is a recorded vertex attribute binding.
type Attrib struct {
	VAO      gpu.Handle
	Buffer   gpu.Handle
	Location uint32
	Size     int
	Divisor  uint32
}

// Program is a recorded shader program.
type Program struct {
	Vertex, Fragment string
	Uniforms         map[string]any
	Deleted          bool
}

// Texture is a recorded texture.
type Texture struct {
	Width, Height int
	Format        gpu.TextureFormat
	Pixels        []byte
	Updates       int
	Deleted       bool
}

// Framebuffer is a recorded framebuffer object.
type Framebuffer struct {
	Color       map[int]gpu.Handle
	Depth       gpu.Handle
	DrawBuffers int
	Deleted     bool
}

// Draw is a recorded draw call with the state it was issued under.
type Draw struct {
	Framebuffer gpu.Handle
	Program     gpu.Handle
	VAO         gpu.Handle
	Mode        gpu.Primitive
	Count       int
	Instances   int
	Indexed     bool
	Mask        gpu.ColorMask
	Cull        gpu.Face
	Depth       gpu.DepthFunc
	Viewport    [4]int
	Textures    map[int]gpu.Handle
}

// Clear is a recorded clear call.
type Clear struct {
	Framebuffer gpu.Handle
	Color       bool
	Depth       bool
}

type uniformKey struct {
	program gpu.Handle
	name    string
}

// Device is a recording gpu.Device. The zero value is not usable; use New.
type Device struct {
	// FailCompile makes CompileProgram fail when it returns true.
	FailCompile func(vertexSrc, fragmentSrc string) bool
	// Incomplete makes CheckFramebuffer fail for every framebuffer.
	Incomplete bool
	// ReadColor is returned by ReadPixels for every pixel.
	ReadColor [4]byte

	next gpu.Handle

	VAOs         map[gpu.Handle]bool
	Buffers      map[gpu.Handle]*Buffer
	Programs     map[gpu.Handle]*Program
	Textures     map[gpu.Handle]*Texture
	Framebuffers map[gpu.Handle]*Framebuffer
	Attribs      []Attrib
	// Enabled maps each vertex array to its enabled attribute locations and
	// the buffers they read.
	Enabled map[gpu.Handle]map[uint32]gpu.Handle
	Draws   []Draw
	Clears  []Clear

	locations map[uniformKey]int32
	names     map[int32]uniformKey

	vao      gpu.Handle
	program  gpu.Handle
	fb       gpu.Handle
	mask     gpu.ColorMask
	cull     gpu.Face
	depth    gpu.DepthFunc
	viewport [4]int
	units    map[int]gpu.Handle
}

var _ gpu.Device = &Device{}

// New returns an empty recording device.
func New() *Device {
	return &Device{
		VAOs:         map[gpu.Handle]bool{},
		Buffers:      map[gpu.Handle]*Buffer{},
		Programs:     map[gpu.Handle]*Program{},
		Textures:     map[gpu.Handle]*Texture{},
		Framebuffers: map[gpu.Handle]*Framebuffer{},
		Enabled:      map[gpu.Handle]map[uint32]gpu.Handle{},
		locations:    map[uniformKey]int32{},
		names:        map[int32]uniformKey{},
		units:        map[int]gpu.Handle{},
		mask:         gpu.AllChannels,
	}
}

func (d *Device) alloc() gpu.Handle {
	d.next++
	return d.next
}

func (d *Device) CreateVertexArray() gpu.Handle {
	h := d.alloc()
	d.VAOs[h] = true
	return h
}

func (d *Device) BindVertexArray(vao gpu.Handle) { d.vao = vao }

func (d *Device) DeleteVertexArray(vao gpu.Handle) { d.VAOs[vao] = false }

func (d *Device) CreateBuffer() gpu.Handle {
	h := d.alloc()
	d.Buffers[h] = &Buffer{}
	return h
}

func (d *Device) BufferData(target gpu.BufferTarget, buf gpu.Handle, data []float32, usage gpu.Usage) {
	b := d.mustBuffer(buf)
	b.Target = target
	b.Usage = usage
	b.Floats = append([]float32(nil), data...)
	b.Uploads++
}

func (d *Device) IndexData(buf gpu.Handle, data []uint32, usage gpu.Usage) {
	b := d.mustBuffer(buf)
	b.Target = gpu.ElementBuffer
	b.Usage = usage
	b.Indices = append([]uint32(nil), data...)
	b.Uploads++
}

func (d *Device) VertexAttrib(buf gpu.Handle, location uint32, size, stride, offset int, divisor uint32) {
	d.mustBuffer(buf)
	d.Attribs = append(d.Attribs, Attrib{VAO: d.vao, Buffer: buf, Location: location, Size: size, Divisor: divisor})
	if d.Enabled[d.vao] == nil {
		d.Enabled[d.vao] = map[uint32]gpu.Handle{}
	}
	d.Enabled[d.vao][location] = buf
}

func (d *Device) DisableVertexAttrib(location uint32) {
	delete(d.Enabled[d.vao], location)
}

func (d *Device) DeleteBuffer(buf gpu.Handle) { d.mustBuffer(buf).Deleted = true }

func (d *Device) mustBuffer(buf gpu.Handle) *Buffer {
	b, ok := d.Buffers[buf]
	if !ok {
		panic(fmt.Sprintf("gputest: unknown buffer %v", buf))
	}
	return b
}

func (d *Device) CompileProgram(vertexSrc, fragmentSrc string) (gpu.Handle, error) {
	if d.FailCompile != nil && d.FailCompile(vertexSrc, fragmentSrc) {
		return gpu.NoHandle, fmt.Errorf("failed to link program: forced failure")
	}
	h := d.alloc()
	d.Programs[h] = &Program{Vertex: vertexSrc, Fragment: fragmentSrc, Uniforms: map[string]any{}}
	return h, nil
}

func (d *Device) UseProgram(program gpu.Handle) { d.program = program }

func (d *Device) UniformLocation(program gpu.Handle, name string) int32 {
	k := uniformKey{program, name}
	if loc, ok := d.locations[k]; ok {
		return loc
	}
	loc := int32(len(d.locations))
	d.locations[k] = loc
	d.names[loc] = k
	return loc
}

func (d *Device) setUniform(loc int32, v any) {
	if loc < 0 {
		return
	}
	k, ok := d.names[loc]
	if !ok {
		panic(fmt.Sprintf("gputest: unknown uniform location %v", loc))
	}
	if k.program != d.program {
		panic(fmt.Sprintf("gputest: uniform %q of program %v set while program %v is in use", k.name, k.program, d.program))
	}
	d.Programs[k.program].Uniforms[k.name] = v
}

func (d *Device) Uniform1i(location int32, v int32)           { d.setUniform(location, v) }
func (d *Device) Uniform1f(location int32, v float32)         { d.setUniform(location, v) }
func (d *Device) Uniform2f(location int32, v mgl32.Vec2)      { d.setUniform(location, v) }
func (d *Device) Uniform3f(location int32, v mgl32.Vec3)      { d.setUniform(location, v) }
func (d *Device) Uniform4f(location int32, v mgl32.Vec4)      { d.setUniform(location, v) }
func (d *Device) UniformMatrix3(location int32, m mgl32.Mat3) { d.setUniform(location, m) }
func (d *Device) UniformMatrix4(location int32, m mgl32.Mat4) { d.setUniform(location, m) }

func (d *Device) DeleteProgram(program gpu.Handle) {
	if p, ok := d.Programs[program]; ok {
		p.Deleted = true
	}
}

func (d *Device) CreateTexture(width, height int, format gpu.TextureFormat, pixels []byte) gpu.Handle {
	h := d.alloc()
	d.Textures[h] = &Texture{Width: width, Height: height, Format: format, Pixels: append([]byte(nil), pixels...)}
	return h
}

func (d *Device) ResizeTexture(tex gpu.Handle, width, height int, format gpu.TextureFormat) {
	t := d.Textures[tex]
	t.Width, t.Height, t.Format = width, height, format
}

func (d *Device) UpdateTexture(tex gpu.Handle, width, height int, format gpu.TextureFormat, pixels []byte) {
	t := d.Textures[tex]
	t.Width, t.Height, t.Format = width, height, format
	t.Pixels = append([]byte(nil), pixels...)
	t.Updates++
}

func (d *Device) BindTexture(unit int, tex gpu.Handle) { d.units[unit] = tex }

func (d *Device) DeleteTexture(tex gpu.Handle) {
	if t, ok := d.Textures[tex]; ok {
		t.Deleted = true
	}
}

func (d *Device) CreateFramebuffer() gpu.Handle {
	h := d.alloc()
	d.Framebuffers[h] = &Framebuffer{Color: map[int]gpu.Handle{}}
	return h
}

func (d *Device) AttachTexture(fb gpu.Handle, index int, tex gpu.Handle, depth bool) {
	f := d.Framebuffers[fb]
	if depth {
		f.Depth = tex
		return
	}
	f.Color[index] = tex
}

func (d *Device) DrawBuffers(fb gpu.Handle, count int) { d.Framebuffers[fb].DrawBuffers = count }

func (d *Device) CheckFramebuffer(fb gpu.Handle) error {
	if d.Incomplete {
		return fmt.Errorf("framebuffer %v not complete", fb)
	}
	f := d.Framebuffers[fb]
	w, h := -1, -1
	for _, tex := range d.attachments(f) {
		t := d.Textures[tex]
		if w < 0 {
			w, h = t.Width, t.Height
			continue
		}
		if t.Width != w || t.Height != h {
			return fmt.Errorf("framebuffer %v not complete: attachment sizes differ", fb)
		}
	}
	return nil
}

func (d *Device) attachments(f *Framebuffer) []gpu.Handle {
	var out []gpu.Handle
	for i := 0; i < len(f.Color); i++ {
		out = append(out, f.Color[i])
	}
	if f.Depth != gpu.NoHandle {
		out = append(out, f.Depth)
	}
	return out
}

func (d *Device) BindFramebuffer(fb gpu.Handle) { d.fb = fb }

func (d *Device) DeleteFramebuffer(fb gpu.Handle) {
	if f, ok := d.Framebuffers[fb]; ok {
		f.Deleted = true
	}
}

func (d *Device) Viewport(x, y, width, height int) { d.viewport = [4]int{x, y, width, height} }

func (d *Device) ClearColor(r, g, b, a float32) {}

func (d *Device) Clear(color, depth bool) {
	d.Clears = append(d.Clears, Clear{Framebuffer: d.fb, Color: color, Depth: depth})
}

func (d *Device) ColorMask(m gpu.ColorMask) { d.mask = m }

func (d *Device) CullFace(face gpu.Face) { d.cull = face }

func (d *Device) DepthFunc(fn gpu.DepthFunc) { d.depth = fn }

func (d *Device) record(mode gpu.Primitive, count, instances int, indexed bool) {
	units := make(map[int]gpu.Handle, len(d.units))
	for k, v := range d.units {
		units[k] = v
	}
	d.Draws = append(d.Draws, Draw{
		Framebuffer: d.fb,
		Program:     d.program,
		VAO:         d.vao,
		Mode:        mode,
		Count:       count,
		Instances:   instances,
		Indexed:     indexed,
		Mask:        d.mask,
		Cull:        d.cull,
		Depth:       d.depth,
		Viewport:    d.viewport,
		Textures:    units,
	})
}

func (d *Device) DrawArrays(mode gpu.Primitive, first, count int) { d.record(mode, count, 1, false) }

func (d *Device) DrawElements(mode gpu.Primitive, count int) { d.record(mode, count, 1, true) }

func (d *Device) DrawArraysInstanced(mode gpu.Primitive, first, count, instances int) {
	d.record(mode, count, instances, false)
}

func (d *Device) DrawElementsInstanced(mode gpu.Primitive, count, instances int) {
	d.record(mode, count, instances, true)
}

func (d *Device) ReadPixels(x, y, width, height int) []byte {
	pix := make([]byte, width*height*4)
	for i := 0; i < len(pix); i += 4 {
		copy(pix[i:i+4], d.ReadColor[:])
	}
	return pix
}

// Count returns the number of live objects of each kind: "vao", "buffer",
// "program", "texture" or "framebuffer".
func (d *Device) Count(kind string) int {
	n := 0
	switch kind {
	case "vao":
		for _, live := range d.VAOs {
			if live {
				n++
			}
		}
	case "buffer":
		for _, b := range d.Buffers {
			if !b.Deleted {
				n++
			}
		}
	case "program":
		for _, p := range d.Programs {
			if !p.Deleted {
				n++
			}
		}
	case "texture":
		for _, t := range d.Textures {
			if !t.Deleted {
				n++
			}
		}
	case "framebuffer":
		for _, f := range d.Framebuffers {
			if !f.Deleted {
				n++
			}
		}
	default:
		panic("gputest: unknown object kind " + kind)
	}
	return n
}

// ProgramWith returns the first live program whose fragment source contains
// marker, or NoHandle.
func (d *Device) ProgramWith(marker string) gpu.Handle {
	for h := gpu.Handle(1); h <= d.next; h++ {
		if p, ok := d.Programs[h]; ok && !p.Deleted && strings.Contains(p.Fragment, marker) {
			return h
		}
	}
	return gpu.NoHandle
}

// DrawsWith returns the recorded draws issued with program.
func (d *Device) DrawsWith(program gpu.Handle) []Draw {
	var out []Draw
	for _, dr := range d.Draws {
		if dr.Program == program {
			out = append(out, dr)
		}
	}
	return out
}

// Reset forgets recorded draws, clears and attribute bindings, keeping
// objects.
func (d *Device) Reset() {
	d.Draws = nil
	d.Clears = nil
	d.Attribs = nil
}

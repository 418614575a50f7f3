package deferred

import (
	"fmt"

	"github.com/gmlewis/deferred/gpu"
)

// AttachmentSpec declares one render target of a Framebuffer.
type AttachmentSpec struct {
	Name   string
	Format gpu.TextureFormat
	Depth  bool
}

// Standard attachment layouts of the per-eye framebuffers.
var (
	GeometrySpecs = []AttachmentSpec{
		{Name: "Position", Format: gpu.RGB32F},
		{Name: "Normal", Format: gpu.RGB16F},
		{Name: "DiffuseAlbedo", Format: gpu.RGBA8},
		{Name: "Depth", Format: gpu.Depth32F, Depth: true},
	}
	HDRSpecs = []AttachmentSpec{
		{Name: "HDRBuffer", Format: gpu.RGBA16F},
		{Name: "Depth", Format: gpu.Depth32F, Depth: true},
	}
	CombinationSpecs = []AttachmentSpec{
		{Name: "Color", Format: gpu.RGBA8},
		{Name: "Depth", Format: gpu.Depth32F, Depth: true},
	}
)

// Framebuffer is a render target with same-sized attachments.
type Framebuffer struct {
	dev    gpu.Device
	handle gpu.Handle

	width, height int
	specs         []AttachmentSpec
	textures      []gpu.Handle
}

// NewFramebuffer allocates a framebuffer with one texture per spec, in
// order. It fails if the device reports the attachment set incomplete.
func NewFramebuffer(dev gpu.Device, width, height int, specs ...AttachmentSpec) (*Framebuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("NewFramebuffer: invalid size %vx%v", width, height)
	}
	f := &Framebuffer{
		dev:    dev,
		handle: dev.CreateFramebuffer(),
		width:  width,
		height: height,
		specs:  append([]AttachmentSpec(nil), specs...),
	}
	color := 0
	for _, s := range f.specs {
		tex := dev.CreateTexture(width, height, s.Format, nil)
		f.textures = append(f.textures, tex)
		if s.Depth {
			dev.AttachTexture(f.handle, 0, tex, true)
			continue
		}
		dev.AttachTexture(f.handle, color, tex, false)
		color++
	}
	dev.DrawBuffers(f.handle, color)
	if err := dev.CheckFramebuffer(f.handle); err != nil {
		f.Delete()
		return nil, fmt.Errorf("NewFramebuffer(%v,%v): %w", width, height, err)
	}
	return f, nil
}

// Resize re-specifies every attachment at the new size, keeping the
// textures, their order and formats.
func (f *Framebuffer) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("Framebuffer.Resize: invalid size %vx%v", width, height)
	}
	if width == f.width && height == f.height {
		return nil
	}
	f.width, f.height = width, height
	for i, s := range f.specs {
		f.dev.ResizeTexture(f.textures[i], width, height, s.Format)
	}
	return f.dev.CheckFramebuffer(f.handle)
}

// BindForDrawing makes f the render target and sets the viewport to it.
func (f *Framebuffer) BindForDrawing() {
	f.dev.BindFramebuffer(f.handle)
	f.dev.Viewport(0, 0, f.width, f.height)
}

// BindAttachmentsForSampling binds attachment i to texture unit
// startUnit+i and returns the number of units used.
func (f *Framebuffer) BindAttachmentsForSampling(startUnit int) int {
	for i, tex := range f.textures {
		f.dev.BindTexture(startUnit+i, tex)
	}
	return len(f.textures)
}

// TextureUnits returns the number of texture units the attachments occupy
// when bound for sampling.
func (f *Framebuffer) TextureUnits() int { return len(f.textures) }

// Texture returns the attachment texture with the given name, or NoHandle.
func (f *Framebuffer) Texture(name string) gpu.Handle {
	for i, s := range f.specs {
		if s.Name == name {
			return f.textures[i]
		}
	}
	return gpu.NoHandle
}

// Specs returns the attachment specs in order.
func (f *Framebuffer) Specs() []AttachmentSpec { return f.specs }

// Size returns the size shared by all attachments.
func (f *Framebuffer) Size() (width, height int) { return f.width, f.height }

// Handle returns the framebuffer object.
func (f *Framebuffer) Handle() gpu.Handle { return f.handle }

// Delete releases the framebuffer and its textures.
func (f *Framebuffer) Delete() {
	for _, tex := range f.textures {
		f.dev.DeleteTexture(tex)
	}
	f.textures = nil
	f.dev.DeleteFramebuffer(f.handle)
}

// EyeBuffers are the framebuffers one eye renders through.
type EyeBuffers struct {
	Geometry    *Framebuffer
	HDR         *Framebuffer
	Combination *Framebuffer
}

func newEyeBuffers(dev gpu.Device, width, height int) (*EyeBuffers, error) {
	e := &EyeBuffers{}
	var err error
	if e.Geometry, err = NewFramebuffer(dev, width, height, GeometrySpecs...); err != nil {
		return nil, fmt.Errorf("geometry buffer: %w", err)
	}
	if e.HDR, err = NewFramebuffer(dev, width, height, HDRSpecs...); err != nil {
		e.Delete()
		return nil, fmt.Errorf("HDR buffer: %w", err)
	}
	if e.Combination, err = NewFramebuffer(dev, width, height, CombinationSpecs...); err != nil {
		e.Delete()
		return nil, fmt.Errorf("combination buffer: %w", err)
	}
	return e, nil
}

// Resize resizes all three framebuffers.
func (e *EyeBuffers) Resize(width, height int) error {
	for _, f := range e.all() {
		if err := f.Resize(width, height); err != nil {
			return err
		}
	}
	return nil
}

// Delete releases all three framebuffers.
func (e *EyeBuffers) Delete() {
	for _, f := range e.all() {
		f.Delete()
	}
}

func (e *EyeBuffers) all() []*Framebuffer {
	var out []*Framebuffer
	for _, f := range []*Framebuffer{e.Geometry, e.HDR, e.Combination} {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

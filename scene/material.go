package scene

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// TextureType names a material texture slot.
type TextureType string

const (
	AmbientTexture      TextureType = "ambient"
	DiffuseTexture      TextureType = "diffuse"
	SpecularTexture     TextureType = "specular"
	NormalTexture       TextureType = "normal"
	DisplacementTexture TextureType = "displacement"
)

// TextureSource is either a file path or a named in-memory image.
type TextureSource struct {
	Path string

	BufferName string
	Image      image.Image
}

// FileTexture returns a source loading the image at path.
func FileTexture(path string) TextureSource { return TextureSource{Path: path} }

// BufferTexture returns a source backed by an in-memory image.
func BufferTexture(name string, img image.Image) TextureSource {
	return TextureSource{BufferName: name, Image: img}
}

// ID identifies the source for caching: the path for files, the buffer name
// prefixed with "buffer:" for in-memory images.
func (s TextureSource) ID() string {
	if s.Path != "" {
		return s.Path
	}
	return "buffer:" + s.BufferName
}

// IsBuffer reports whether the source is an in-memory image.
func (s TextureSource) IsBuffer() bool { return s.Path == "" }

// Material describes the surface of a node.
type Material struct {
	Ambient  mgl32.Vec3
	Diffuse  mgl32.Vec3
	Specular mgl32.Vec3

	Transparent bool
	DoubleSided bool

	Textures map[TextureType]TextureSource
	// NeedsReload requests the texture slots to be resolved again; the
	// renderer resets it once every slot has a texture.
	NeedsReload bool

	// Program names a shader set assigned directly to this material.
	Program string
}

// DefaultMaterial returns a grey material without textures.
func DefaultMaterial() *Material {
	return &Material{
		Ambient:  mgl32.Vec3{0.5, 0.5, 0.5},
		Diffuse:  mgl32.Vec3{0.9, 0.5, 0.5},
		Specular: mgl32.Vec3{0.5, 0.5, 0.5},
		Textures: map[TextureType]TextureSource{},
	}
}

// SetTexture assigns src to slot t and flags the material for reload.
func (m *Material) SetTexture(t TextureType, src TextureSource) {
	if m.Textures == nil {
		m.Textures = map[TextureType]TextureSource{}
	}
	m.Textures[t] = src
	m.NeedsReload = true
}

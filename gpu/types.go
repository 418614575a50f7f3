package gpu

import "fmt"

// BufferTarget selects the binding point of a buffer.
type BufferTarget uint8

const (
	ArrayBuffer BufferTarget = iota
	ElementBuffer
)

// Usage is the expected update frequency of a buffer.
type Usage uint8

const (
	StaticDraw Usage = iota
	DynamicDraw
)

func (u Usage) String() string {
	if u == DynamicDraw {
		return "dynamic"
	}
	return "static"
}

// Primitive is the topology used by draw calls.
type Primitive uint8

const (
	Triangles Primitive = iota
	TriangleStrip
	Lines
	Points
)

// TextureFormat is the storage format and precision of a texture.
type TextureFormat uint8

const (
	RGBA8 TextureFormat = iota
	RGB16F
	RGB32F
	RGBA16F
	RGBA32F
	Depth24
	Depth32F
)

var textureFormatNames = [...]string{
	RGBA8:    "RGBA8",
	RGB16F:   "RGB16F",
	RGB32F:   "RGB32F",
	RGBA16F:  "RGBA16F",
	RGBA32F:  "RGBA32F",
	Depth24:  "Depth24",
	Depth32F: "Depth32F",
}

func (f TextureFormat) String() string {
	if int(f) < len(textureFormatNames) {
		return textureFormatNames[f]
	}
	return fmt.Sprintf("TextureFormat(%d)", f)
}

// IsDepth reports whether f is a depth format.
func (f TextureFormat) IsDepth() bool {
	return f == Depth24 || f == Depth32F
}

// Face selects which faces are culled. CullNone disables culling.
type Face uint8

const (
	CullBack Face = iota
	CullFront
	CullNone
)

// DepthFunc is the depth comparison used for depth testing.
type DepthFunc uint8

const (
	DepthLess DepthFunc = iota
	DepthLEqual
	DepthAlways
)

// ColorMask enables writes per color channel.
type ColorMask struct {
	R, G, B, A bool
}

// AllChannels writes every channel.
var AllChannels = ColorMask{true, true, true, true}

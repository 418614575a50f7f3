package scene

import "github.com/go-gl/mathgl/mgl32"

// Primitive is the topology of a geometry.
type Primitive byte

const (
	Triangles Primitive = iota
	TriangleStrip
	Lines
	Points
)

// Geometry is the vertex data of a node. The renderer only reads it.
type Geometry struct {
	Vertices  []float32
	Normals   []float32
	TexCoords []float32
	Indices   []uint32

	// VertexSize is the number of components per vertex, usually 3.
	VertexSize int
	// TexCoordSize is the number of components per texture coordinate.
	TexCoordSize int
	Primitive    Primitive
}

// NewGeometry returns an empty triangle geometry with 3-component vertices
// and 2-component texture coordinates.
func NewGeometry() *Geometry {
	return &Geometry{VertexSize: 3, TexCoordSize: 2}
}

// VertexCount returns the number of vertices.
func (g *Geometry) VertexCount() int {
	if g.VertexSize == 0 {
		return 0
	}
	return len(g.Vertices) / g.VertexSize
}

// Box returns an axis-aligned box centered at the origin with 24 vertices so
// that every face has its own normals and texture coordinates.
func Box(size mgl32.Vec3) *Geometry {
	hx, hy, hz := size.X()/2, size.Y()/2, size.Z()/2
	type face struct {
		normal  mgl32.Vec3
		corners [4]mgl32.Vec3
	}
	faces := []face{
		{mgl32.Vec3{0, 0, 1}, [4]mgl32.Vec3{{-hx, -hy, hz}, {hx, -hy, hz}, {hx, hy, hz}, {-hx, hy, hz}}},
		{mgl32.Vec3{0, 0, -1}, [4]mgl32.Vec3{{hx, -hy, -hz}, {-hx, -hy, -hz}, {-hx, hy, -hz}, {hx, hy, -hz}}},
		{mgl32.Vec3{1, 0, 0}, [4]mgl32.Vec3{{hx, -hy, hz}, {hx, -hy, -hz}, {hx, hy, -hz}, {hx, hy, hz}}},
		{mgl32.Vec3{-1, 0, 0}, [4]mgl32.Vec3{{-hx, -hy, -hz}, {-hx, -hy, hz}, {-hx, hy, hz}, {-hx, hy, -hz}}},
		{mgl32.Vec3{0, 1, 0}, [4]mgl32.Vec3{{-hx, hy, hz}, {hx, hy, hz}, {hx, hy, -hz}, {-hx, hy, -hz}}},
		{mgl32.Vec3{0, -1, 0}, [4]mgl32.Vec3{{-hx, -hy, -hz}, {hx, -hy, -hz}, {hx, -hy, hz}, {-hx, -hy, hz}}},
	}
	uvs := [4][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

	g := NewGeometry()
	for i, f := range faces {
		for j, c := range f.corners {
			g.Vertices = append(g.Vertices, c[:]...)
			g.Normals = append(g.Normals, f.normal[:]...)
			g.TexCoords = append(g.TexCoords, uvs[j][:]...)
		}
		base := uint32(i * 4)
		g.Indices = append(g.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return g
}

// Plane returns a quad of the given width and depth in the XZ plane facing +Y.
func Plane(width, depth float32) *Geometry {
	hw, hd := width/2, depth/2
	g := NewGeometry()
	g.Vertices = []float32{
		-hw, 0, hd,
		hw, 0, hd,
		hw, 0, -hd,
		-hw, 0, -hd,
	}
	g.Normals = []float32{0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0}
	g.TexCoords = []float32{0, 0, 1, 0, 1, 1, 0, 1}
	g.Indices = []uint32{0, 1, 2, 0, 2, 3}
	return g
}

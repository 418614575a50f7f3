package deferred

import (
	"sync"

	"github.com/gmlewis/deferred/gpu"
	"github.com/gmlewis/deferred/scene"
)

// Names of the geometry buffers in ObjectState.Buffers.
const (
	VertexBuffer   = "vertex"
	NormalBuffer   = "normal"
	TexCoordBuffer = "texcoord"
	IndexBuffer    = "index"
)

// Vertex attribute locations shared with the geometry shaders.
const (
	positionLocation = 0
	normalLocation   = 1
	texCoordLocation = 2
)

// ObjectState is the GPU-side record of a node. Instances share their
// template's state.
type ObjectState struct {
	VAO     gpu.Handle
	Buffers map[string]gpu.Handle
	// Auxiliary holds the per-instance matrix buffers of a template.
	Auxiliary map[string]gpu.Handle

	Program     gpu.Handle
	ProgramName string
	Textures    map[scene.TextureType]gpu.Handle

	VertexCount int
	IndexCount  int
	Primitive   gpu.Primitive
	Dynamic     bool

	Initialized bool
	// Failed is set when initialization failed; the node is not drawn.
	Failed bool

	defaultProgram bool
	instanced      bool
	texturesLoaded bool
	// reloaded records the sources already read again during a reload.
	reloaded map[string]bool

	// loading guards texture servicing; holders never block on it.
	loading sync.Mutex

	instances []InstanceMatrices
	packed    [3][]float32
}

func newObjectState() *ObjectState {
	return &ObjectState{
		Buffers:   map[string]gpu.Handle{},
		Auxiliary: map[string]gpu.Handle{},
		Textures:  map[scene.TextureType]gpu.Handle{},
	}
}

func (st *ObjectState) usage() gpu.Usage {
	if st.Dynamic {
		return gpu.DynamicDraw
	}
	return gpu.StaticDraw
}

// buffer returns the named geometry buffer, creating it on first use.
func (st *ObjectState) buffer(dev gpu.Device, name string) gpu.Handle {
	if h, ok := st.Buffers[name]; ok {
		return h
	}
	h := dev.CreateBuffer()
	st.Buffers[name] = h
	return h
}

// upload writes g into the state's buffers, reusing existing buffer
// objects, and updates the stored counts.
func (st *ObjectState) upload(dev gpu.Device, g *scene.Geometry) {
	vs := g.VertexSize
	if vs <= 0 {
		vs = 3
	}
	ts := g.TexCoordSize
	if ts <= 0 {
		ts = 2
	}
	usage := st.usage()

	dev.BindVertexArray(st.VAO)

	buf := st.buffer(dev, VertexBuffer)
	dev.BufferData(gpu.ArrayBuffer, buf, g.Vertices, usage)
	dev.VertexAttrib(buf, positionLocation, vs, 0, 0, 0)
	st.VertexCount = len(g.Vertices) / vs

	if len(g.Normals) > 0 {
		buf := st.buffer(dev, NormalBuffer)
		dev.BufferData(gpu.ArrayBuffer, buf, g.Normals, usage)
		dev.VertexAttrib(buf, normalLocation, 3, 0, 0, 0)
	} else {
		dev.DisableVertexAttrib(normalLocation)
	}
	if len(g.TexCoords) > 0 {
		buf := st.buffer(dev, TexCoordBuffer)
		dev.BufferData(gpu.ArrayBuffer, buf, g.TexCoords, usage)
		dev.VertexAttrib(buf, texCoordLocation, ts, 0, 0, 0)
	} else {
		dev.DisableVertexAttrib(texCoordLocation)
	}

	st.IndexCount = 0
	if len(g.Indices) > 0 || st.Buffers[IndexBuffer] != gpu.NoHandle {
		buf := st.buffer(dev, IndexBuffer)
		dev.IndexData(buf, g.Indices, usage)
		st.IndexCount = len(g.Indices)
	}
	st.Primitive = primitive(g.Primitive)
}

// release deletes every GPU object the state owns. Programs and textures
// are shared and released by their caches.
func (st *ObjectState) release(dev gpu.Device) {
	for name, h := range st.Buffers {
		dev.DeleteBuffer(h)
		delete(st.Buffers, name)
	}
	for name, h := range st.Auxiliary {
		dev.DeleteBuffer(h)
		delete(st.Auxiliary, name)
	}
	if st.VAO != gpu.NoHandle {
		dev.DeleteVertexArray(st.VAO)
		st.VAO = gpu.NoHandle
	}
	st.Initialized = false
}

func primitive(p scene.Primitive) gpu.Primitive {
	switch p {
	case scene.TriangleStrip:
		return gpu.TriangleStrip
	case scene.Lines:
		return gpu.Lines
	case scene.Points:
		return gpu.Points
	default:
		return gpu.Triangles
	}
}

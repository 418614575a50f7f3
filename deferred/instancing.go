package deferred

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gmlewis/deferred/gpu"
)

// Names of the per-instance matrix buffers of a template.
const (
	ModelBuffer     = "Model"
	ModelViewBuffer = "ModelView"
	MVPBuffer       = "MVP"
)

// auxiliaryBuffers maps each per-instance buffer to the first of the four
// attribute locations its mat4 occupies.
var auxiliaryBuffers = [3]struct {
	name     string
	location uint32
}{
	{ModelBuffer, 3},
	{ModelViewBuffer, 7},
	{MVPBuffer, 11},
}

// InstanceMatrices are the matrices of one instance.
type InstanceMatrices struct {
	Model, ModelView, MVP mgl32.Mat4
}

// Instancer feeds per-instance matrices to instanced draws.
type Instancer struct {
	dev gpu.Device
}

// NewInstancer returns an instancer issuing calls on dev.
func NewInstancer(dev gpu.Device) *Instancer {
	return &Instancer{dev: dev}
}

// CreateAuxiliaryBuffers allocates the per-instance buffers of a template
// state unless they exist. It returns the number of buffers created.
func (in *Instancer) CreateAuxiliaryBuffers(st *ObjectState) int {
	created := 0
	for _, aux := range auxiliaryBuffers {
		if _, ok := st.Auxiliary[aux.name]; ok {
			continue
		}
		st.Auxiliary[aux.name] = in.dev.CreateBuffer()
		created++
	}
	return created
}

// UpdateAndBind packs matrices into the template's per-instance buffers,
// 16 column-major floats per instance in instance order, replacing their
// contents, and points the instance attributes at them with divisor 1.
func (in *Instancer) UpdateAndBind(st *ObjectState, matrices []InstanceMatrices) {
	for i := range st.packed {
		st.packed[i] = st.packed[i][:0]
	}
	for _, m := range matrices {
		st.packed[0] = append(st.packed[0], m.Model[:]...)
		st.packed[1] = append(st.packed[1], m.ModelView[:]...)
		st.packed[2] = append(st.packed[2], m.MVP[:]...)
	}

	in.dev.BindVertexArray(st.VAO)
	for i, aux := range auxiliaryBuffers {
		buf := st.Auxiliary[aux.name]
		in.dev.BufferData(gpu.ArrayBuffer, buf, st.packed[i], gpu.DynamicDraw)
		for col := 0; col < 4; col++ {
			in.dev.VertexAttrib(buf, aux.location+uint32(col), 4, 16*4, col*4*4, 1)
		}
	}
}

package deferred

import "github.com/gmlewis/deferred/gpu"

var quadVertices = []float32{
	-1, -1,
	1, -1,
	-1, 1,
	1, 1,
}

// quad is the fullscreen triangle strip drawn by the composition passes.
type quad struct {
	vao, vbo gpu.Handle
}

func newQuad(dev gpu.Device) *quad {
	q := &quad{vao: dev.CreateVertexArray(), vbo: dev.CreateBuffer()}
	dev.BindVertexArray(q.vao)
	dev.BufferData(gpu.ArrayBuffer, q.vbo, quadVertices, gpu.StaticDraw)
	dev.VertexAttrib(q.vbo, positionLocation, 2, 0, 0, 0)
	return q
}

func (q *quad) draw(dev gpu.Device) {
	dev.CullFace(gpu.CullNone)
	dev.DepthFunc(gpu.DepthAlways)
	dev.BindVertexArray(q.vao)
	dev.DrawArrays(gpu.TriangleStrip, 0, 4)
}

func (q *quad) release(dev gpu.Device) {
	dev.DeleteBuffer(q.vbo)
	dev.DeleteVertexArray(q.vao)
}

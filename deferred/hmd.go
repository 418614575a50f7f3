package deferred

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gmlewis/deferred/gpu"
	"github.com/gmlewis/deferred/scene"
)

// HMD is a head-mounted display driver. Eye indices are 0 (left) and
// 1 (right).
type HMD interface {
	// IsReady reports whether the device is tracking and can be rendered to.
	IsReady() bool
	EyeProjection(eye int) mgl32.Mat4
	HeadToEyeTransform(eye int) mgl32.Mat4
	// Pose returns the current head pose.
	Pose() mgl32.Mat4
	HasCompositor() bool
	// SubmitFrame hands both eyes' final color textures to the compositor.
	SubmitFrame(left, right gpu.Handle) error
}

// Scene is the view of the scene graph the renderer needs. *scene.Graph
// implements it.
type Scene interface {
	// Discover returns the visible nodes matching pred in a stable order.
	Discover(pred func(*scene.Node) bool) []*scene.Node
	ActiveCamera() *scene.Node
	Node(id scene.ID) *scene.Node
	UpdateWorld(n *scene.Node)
}

var _ Scene = (*scene.Graph)(nil)

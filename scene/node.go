// Package scene holds the node data the deferred renderer consumes: an arena
// of nodes with geometry, materials, lights and cameras.
package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

// ID indexes a node in its Graph.
type ID int

// NoNode is the ID of no node.
const NoNode ID = -1

// Kind tags the variant of a node.
type Kind byte

const (
	KindGroup Kind = iota
	KindMesh
	KindSkybox
	KindLight
	KindCamera
)

func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "Mesh"
	case KindSkybox:
		return "Skybox"
	case KindLight:
		return "Light"
	case KindCamera:
		return "Camera"
	default:
		return "Group"
	}
}

// Node is a scene entity.
type Node struct {
	ID     ID
	Name   string
	Kind   Kind
	Parent ID

	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
	// World is the world transform, maintained by Graph.UpdateWorld.
	World mgl32.Mat4

	Geometry *Geometry
	Material *Material
	Light    *PointLight
	Camera   *Camera

	Visible bool
	// Dirty is set when Geometry changed and must be re-uploaded.
	Dirty bool
	// InstanceOf is the template this node is an instance of, or NoNode.
	InstanceOf ID
	Billboard  bool
	// DynamicGeometry hints that geometry is updated frequently.
	DynamicGeometry bool

	// Variant names the concrete node class. Shader properties are cached
	// per variant and, when UseVariantShader is set, the shader set of the
	// same name is preferred.
	Variant          string
	UseVariantShader bool
	ShaderPreference string
	Properties       PropertySource

	Metadata map[string]any
}

// New returns a visible node of the given kind with identity transforms.
func New(name string, kind Kind) *Node {
	return &Node{
		ID:         NoNode,
		Name:       name,
		Kind:       kind,
		Parent:     NoNode,
		Rotation:   mgl32.QuatIdent(),
		Scale:      mgl32.Vec3{1, 1, 1},
		World:      mgl32.Ident4(),
		Visible:    true,
		InstanceOf: NoNode,
		Variant:    kind.String(),
		Metadata:   map[string]any{},
	}
}

// NewMesh returns a mesh node with the given geometry and material.
func NewMesh(name string, g *Geometry, m *Material) *Node {
	n := New(name, KindMesh)
	n.Geometry = g
	n.Material = m
	return n
}

// NewSkybox returns a skybox node. Skyboxes are drawn from the inside.
func NewSkybox(name string, g *Geometry, m *Material) *Node {
	n := New(name, KindSkybox)
	n.Geometry = g
	n.Material = m
	return n
}

// NewInstance returns a mesh node drawing template's geometry.
func NewInstance(name string, template ID) *Node {
	n := New(name, KindMesh)
	n.InstanceOf = template
	return n
}

// NewPointLight returns a point light node.
func NewPointLight(name string, color mgl32.Vec3, intensity float32) *Node {
	n := New(name, KindLight)
	n.Light = &PointLight{Color: color, Intensity: intensity, Linear: 0.7, Quadratic: 1.8}
	return n
}

// NewCamera returns an active perspective camera looking down -Z.
func NewCamera(name string) *Node {
	n := New(name, KindCamera)
	n.Camera = &Camera{
		Forward: mgl32.Vec3{0, 0, -1},
		Up:      mgl32.Vec3{0, 1, 0},
		Near:    0.05,
		Far:     1000,
		Active:  true,
	}
	return n
}

// HasGeometry reports whether the node itself carries geometry.
func (n *Node) HasGeometry() bool { return n.Geometry != nil }

// Renderable reports whether the node is drawn by the geometry passes:
// meshes and skyboxes with geometry of their own or through a template.
func (n *Node) Renderable() bool {
	if n.Kind != KindMesh && n.Kind != KindSkybox {
		return false
	}
	return n.Geometry != nil || n.InstanceOf != NoNode
}

// IsLight reports whether the node is a point light.
func (n *Node) IsLight() bool { return n.Kind == KindLight && n.Light != nil }

// IsCamera reports whether the node is a camera.
func (n *Node) IsCamera() bool { return n.Kind == KindCamera && n.Camera != nil }

// IsInstance reports whether the node draws another node's geometry.
func (n *Node) IsInstance() bool { return n.InstanceOf != NoNode }

// LocalMatrix returns translation * rotation * scale.
func (n *Node) LocalMatrix() mgl32.Mat4 {
	t := mgl32.Translate3D(n.Position.X(), n.Position.Y(), n.Position.Z())
	s := mgl32.Scale3D(n.Scale.X(), n.Scale.Y(), n.Scale.Z())
	return t.Mul4(n.Rotation.Mat4()).Mul4(s)
}

// WorldPosition returns the translation of the world transform.
func (n *Node) WorldPosition() mgl32.Vec3 {
	return n.World.Col(3).Vec3()
}

// PointLight holds the parameters of a point light.
type PointLight struct {
	Color     mgl32.Vec3
	Intensity float32
	Linear    float32
	Quadratic float32
}

// Camera holds the parameters of a camera node. The node position is the
// eye, Forward and Up orient the view, and the node rotation is applied on
// top of the view.
type Camera struct {
	Forward mgl32.Vec3
	Up      mgl32.Vec3
	Near    float32
	Far     float32
	Active  bool
}

// View returns the look-at view matrix of camera node n.
func (c *Camera) View(n *Node) mgl32.Mat4 {
	eye := n.WorldPosition()
	return mgl32.LookAtV(eye, eye.Add(c.Forward), c.Up)
}

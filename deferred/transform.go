package deferred

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gmlewis/deferred/scene"
)

// FieldOfView is the vertical field of view, in degrees, used without an
// HMD.
const FieldOfView = 50

// Transforms are the matrices pushed for one node and eye.
type Transforms struct {
	Model      mgl32.Mat4
	ModelView  mgl32.Mat4
	Projection mgl32.Mat4
	MVP        mgl32.Mat4
}

// eyeView holds what every node drawn for one eye shares.
type eyeView struct {
	index      int
	projection mgl32.Mat4
	// view is eyeShift * pose * cameraView * cameraRotation.
	view mgl32.Mat4
}

// eyeShift returns the horizontal view offset of eye. Eye 0 is shifted by
// +ipd/2 and eye 1 by -ipd/2; a single eye is not shifted.
func eyeShift(eye, eyes int, ipd float32) mgl32.Mat4 {
	if eyes < 2 {
		return mgl32.Ident4()
	}
	offset := ipd / 2
	if eye%2 == 1 {
		offset = -offset
	}
	return mgl32.Translate3D(offset, 0, 0)
}

// newEyeView computes projection and view of eye. With an HMD its eye
// projection and head-to-eye pose are used and no IPD shift is applied.
func newEyeView(eye, eyes int, hmd HMD, cam *scene.Node, aspect, ipd float32) eyeView {
	near, far := float32(0.05), float32(1000)
	camView, camRotation := mgl32.Ident4(), mgl32.Ident4()
	if cam != nil && cam.Camera != nil {
		near, far = cam.Camera.Near, cam.Camera.Far
		camView = cam.Camera.View(cam)
		camRotation = cam.Rotation.Mat4()
	}

	ev := eyeView{index: eye}
	shift, pose := eyeShift(eye, eyes, ipd), mgl32.Ident4()
	if hmd != nil {
		ev.projection = hmd.EyeProjection(eye)
		pose = hmd.HeadToEyeTransform(eye).Mul4(hmd.Pose())
		shift = mgl32.Ident4()
	} else {
		ev.projection = mgl32.Perspective(mgl32.DegToRad(FieldOfView), aspect, near, far)
	}
	ev.view = shift.Mul4(pose).Mul4(camView).Mul4(camRotation)
	return ev
}

// transforms returns the matrices of a node with world transform world.
// Billboards keep their view-space position and scale but face the eye.
func (ev eyeView) transforms(world mgl32.Mat4, billboard bool) Transforms {
	mv := ev.view.Mul4(world)
	if billboard {
		sx := world.Col(0).Vec3().Len()
		sy := world.Col(1).Vec3().Len()
		sz := world.Col(2).Vec3().Len()
		p := mv.Col(3)
		mv = mgl32.Translate3D(p.X(), p.Y(), p.Z()).Mul4(mgl32.Scale3D(sx, sy, sz))
	}
	return Transforms{
		Model:      world,
		ModelView:  mv,
		Projection: ev.projection,
		MVP:        ev.projection.Mul4(mv),
	}
}

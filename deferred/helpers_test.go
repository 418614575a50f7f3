package deferred

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gmlewis/deferred/gpu"
	"github.com/gmlewis/deferred/gpu/gputest"
	"github.com/gmlewis/deferred/scene"
	"github.com/gmlewis/deferred/settings"
)

func newTestRenderer(t *testing.T, opts ...func(*Config)) (*Renderer, *gputest.Device) {
	t.Helper()
	dev := gputest.New()
	cfg := Config{
		Width:    800,
		Height:   600,
		Settings: settings.New(),
		Logger:   zaptest.NewLogger(t),
	}
	for _, o := range opts {
		o(&cfg)
	}
	r, err := New(dev, cfg)
	require.NoError(t, err)
	t.Cleanup(r.textures.loader.close)
	return r, dev
}

func withVR(divisor int) func(*Config) {
	return func(c *Config) {
		_ = c.Settings.Set(settings.VRActive, true)
		_ = c.Settings.Set(settings.VREyeDivisor, divisor)
	}
}

// testScene returns a graph with a camera at the origin looking down -Z, a
// point light and a box at (0,0,-5).
func testScene() (*scene.Graph, *scene.Node) {
	g := scene.NewGraph()
	g.Add(scene.NewCamera("camera"), scene.NoNode)
	g.Add(scene.NewPointLight("light", mgl32.Vec3{1, 1, 1}, 1), scene.NoNode)
	box := scene.NewMesh("box", scene.Box(mgl32.Vec3{1, 1, 1}), scene.DefaultMaterial())
	box.Position = mgl32.Vec3{0, 0, -5}
	g.Add(box, scene.NoNode)
	return g, box
}

func mustProgram(t *testing.T, r *Renderer, name string) gpu.Handle {
	t.Helper()
	p, err := r.shaders.Program(name)
	require.NoError(t, err)
	return p
}

func translation(m mgl32.Mat4) mgl32.Vec3 { return m.Col(3).Vec3() }

type fakeHMD struct {
	ready      bool
	compositor bool
	projection mgl32.Mat4
	submitted  [][2]gpu.Handle
}

func (h *fakeHMD) IsReady() bool                         { return h.ready }
func (h *fakeHMD) EyeProjection(eye int) mgl32.Mat4      { return h.projection }
func (h *fakeHMD) HeadToEyeTransform(eye int) mgl32.Mat4 { return mgl32.Ident4() }
func (h *fakeHMD) Pose() mgl32.Mat4                      { return mgl32.Ident4() }
func (h *fakeHMD) HasCompositor() bool                   { return h.compositor }
func (h *fakeHMD) SubmitFrame(left, right gpu.Handle) error {
	h.submitted = append(h.submitted, [2]gpu.Handle{left, right})
	return nil
}

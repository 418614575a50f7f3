package deferred

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gmlewis/deferred/gpu"
	"github.com/gmlewis/deferred/gpu/gputest"
	"github.com/gmlewis/deferred/scene"
	"github.com/gmlewis/deferred/settings"
)

func TestNewAllocatesEyeBuffers(t *testing.T) {
	r, dev := newTestRenderer(t)

	assert.Equal(t, 6, dev.Count("framebuffer"))
	for i := 0; i < 2; i++ {
		w, h := r.Eye(i).Geometry.Size()
		assert.Equal(t, 800, w)
		assert.Equal(t, 600, h)
	}
	assert.Equal(t, len(requiredShaders), dev.Count("program"))
	assert.NotEmpty(t, r.ID())
}

func TestNewFailsOnIncompleteFramebuffer(t *testing.T) {
	dev := gputest.New()
	dev.Incomplete = true
	_, err := New(dev, Config{Width: 800, Height: 600})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not complete")
	assert.Zero(t, dev.Count("framebuffer"))
}

func TestNewFailsOnRequiredShader(t *testing.T) {
	dev := gputest.New()
	dev.FailCompile = func(vs, fs string) bool {
		return strings.Contains(fs, "HDRTonemap") || strings.Contains(fs, "Combiner")
	}
	_, err := New(dev, Config{Width: 800, Height: 600})
	require.Error(t, err)
	assert.Contains(t, err.Error(), HDRTonemap)
	assert.Contains(t, err.Error(), Combiner)
	assert.Zero(t, dev.Count("program"))
}

func TestNewRejectsInvalidSize(t *testing.T) {
	_, err := New(gputest.New(), Config{Width: 0, Height: 600})
	assert.Error(t, err)
}

func TestOneStatePerNodeAcrossFrames(t *testing.T) {
	r, dev := newTestRenderer(t)
	g, box := testScene()

	stats := r.Render(g)
	assert.Equal(t, 1, stats.StatesCreated)
	assert.Equal(t, 1, stats.Nodes)
	st, ok := box.Metadata[r.ID()].(*ObjectState)
	require.True(t, ok)
	vaos, buffers := dev.Count("vao"), dev.Count("buffer")

	for i := 0; i < 5; i++ {
		stats = r.Render(g)
		assert.Zero(t, stats.StatesCreated)
		assert.Equal(t, 1, stats.Nodes)
	}
	assert.Same(t, st, box.Metadata[r.ID()])
	assert.Equal(t, vaos, dev.Count("vao"))
	assert.Equal(t, buffers, dev.Count("buffer"))
}

func TestSingletonUniforms(t *testing.T) {
	r, dev := newTestRenderer(t)
	g, _ := testScene()
	r.Render(g)

	prog := mustProgram(t, r, DefaultDeferred)
	u := dev.Programs[prog].Uniforms
	mv := u["ModelViewMatrix"].(mgl32.Mat4)
	assert.True(t, translation(mv).ApproxEqualThreshold(mgl32.Vec3{0, 0, -5}, 1e-5))

	proj := mgl32.Perspective(mgl32.DegToRad(FieldOfView), 800.0/600.0, 0.05, 1000)
	assert.True(t, u["ProjectionMatrix"].(mgl32.Mat4).ApproxEqualThreshold(proj, 1e-5))
	assert.True(t, u["MVP"].(mgl32.Mat4).ApproxEqualThreshold(proj.Mul4(mv), 1e-5))
	assert.Equal(t, int32(0), u["isBillboard"])
	assert.Equal(t, scene.DefaultMaterial().Diffuse, u["Material.Kd"])
	assert.Equal(t, int32(0), u["materialType"])
	assert.Equal(t, int32(4), u["ObjectTextures[4]"])

	draws := dev.DrawsWith(prog)
	require.Len(t, draws, 1)
	assert.Equal(t, r.Eye(0).Geometry.Handle(), draws[0].Framebuffer)
	assert.True(t, draws[0].Indexed)
	assert.Equal(t, 36, draws[0].Count)
	assert.Equal(t, gpu.CullBack, draws[0].Cull)
	assert.Equal(t, gpu.DepthLess, draws[0].Depth)
}

func TestNodeWithoutMaterialUsesPositionColor(t *testing.T) {
	r, dev := newTestRenderer(t)
	g := scene.NewGraph()
	g.Add(scene.NewCamera("camera"), scene.NoNode)
	n := scene.NewMesh("bare", scene.Plane(1, 1), nil)
	n.Position = mgl32.Vec3{1, 2, 3}
	g.Add(n, scene.NoNode)

	r.Render(g)
	u := dev.Programs[mustProgram(t, r, DefaultDeferred)].Uniforms
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, u["Material.Kd"])
}

func TestModelViewIPDOffset(t *testing.T) {
	r, dev := newTestRenderer(t, withVR(2))
	g, _ := testScene()
	r.Render(g)

	prog := mustProgram(t, r, DefaultDeferred)
	draws := dev.DrawsWith(prog)
	require.Len(t, draws, 2)
	assert.Equal(t, r.Eye(0).Geometry.Handle(), draws[0].Framebuffer)
	assert.Equal(t, r.Eye(1).Geometry.Handle(), draws[1].Framebuffer)

	// the recording keeps the last eye's value
	mv := dev.Programs[prog].Uniforms["ModelViewMatrix"].(mgl32.Mat4)
	assert.True(t, translation(mv).ApproxEqualThreshold(mgl32.Vec3{-0.025, 0, -5}, 1e-5))
}

func TestHDRToggleSkipsTonemap(t *testing.T) {
	r, dev := newTestRenderer(t)
	g, _ := testScene()
	eye := r.Eye(0)
	lighting := mustProgram(t, r, DeferredLighting)
	tonemap := mustProgram(t, r, HDRTonemap)
	geometry := mustProgram(t, r, DefaultDeferred)

	r.Render(g)
	ld := dev.DrawsWith(lighting)
	require.Len(t, ld, 1)
	assert.Equal(t, eye.HDR.Handle(), ld[0].Framebuffer)
	assert.Equal(t, eye.Geometry.Texture("Position"), ld[0].Textures[0])
	assert.Equal(t, eye.Geometry.Texture("Depth"), ld[0].Textures[eye.Geometry.TextureUnits()-1])
	td := dev.DrawsWith(tonemap)
	require.Len(t, td, 1)
	assert.Equal(t, eye.Combination.Handle(), td[0].Framebuffer)
	assert.Equal(t, eye.HDR.Texture("HDRBuffer"), td[0].Textures[0])
	gd := dev.DrawsWith(geometry)
	geometryTextures := []gpu.Handle{eye.Geometry.Texture("Position"), eye.Geometry.Texture("Normal")}

	require.NoError(t, r.Settings().Set(settings.HDRActive, false))
	dev.Reset()
	r.Render(g)
	ld = dev.DrawsWith(lighting)
	require.Len(t, ld, 1)
	assert.Equal(t, eye.Combination.Handle(), ld[0].Framebuffer)
	assert.Empty(t, dev.DrawsWith(tonemap))
	assert.Equal(t, gd, dev.DrawsWith(geometry))
	assert.Equal(t, geometryTextures, []gpu.Handle{eye.Geometry.Texture("Position"), eye.Geometry.Texture("Normal")})
}

func TestLightingUniforms(t *testing.T) {
	r, dev := newTestRenderer(t)
	g, _ := testScene()
	l := scene.NewPointLight("second", mgl32.Vec3{1, 0, 0}, 2)
	l.Position = mgl32.Vec3{0, 1, -2}
	g.Add(l, scene.NoNode)
	require.NoError(t, r.Settings().Set(settings.SSAOActive, true))

	r.Render(g)
	u := dev.Programs[mustProgram(t, r, DeferredLighting)].Uniforms
	assert.Equal(t, int32(2), u["numLights"])
	assert.Equal(t, mgl32.Vec3{1, 0, 0}, u["lights[1].Color"])
	assert.Equal(t, float32(2), u["lights[1].Intensity"])
	assert.True(t, u["lights[1].Position"].(mgl32.Vec3).ApproxEqualThreshold(mgl32.Vec3{0, 1, -2}, 1e-5))
	assert.Equal(t, int32(1), u["ssaoActive"])
	assert.Equal(t, int32(0), u["debugBuffers"])
	assert.Equal(t, int32(0), u["Position"])
	assert.Equal(t, int32(3), u["Depth"])
}

func TestReshapeSingleEye(t *testing.T) {
	r, _ := newTestRenderer(t)

	r.Reshape(1024, 768)
	for _, f := range []*Framebuffer{r.Eye(0).Geometry, r.Eye(0).HDR, r.Eye(0).Combination} {
		w, h := f.Size()
		assert.Equal(t, 1024, w)
		assert.Equal(t, 768, h)
	}
	w, h := r.Eye(1).Geometry.Size()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
	w, _ = r.Eye(1).HDR.Size()
	assert.Equal(t, 800, w)
}

func TestReshapeVR(t *testing.T) {
	r, _ := newTestRenderer(t, withVR(2))
	w, _ := r.Eye(0).Geometry.Size()
	assert.Equal(t, 400, w)

	r.Reshape(1024, 768)
	for i := 0; i < 2; i++ {
		for _, f := range []*Framebuffer{r.Eye(i).Geometry, r.Eye(i).HDR} {
			w, h := f.Size()
			assert.Equal(t, 512, w)
			assert.Equal(t, 768, h)
		}
	}
}

func TestReshapeDuringFrameIsDeferred(t *testing.T) {
	r, _ := newTestRenderer(t)
	g, _ := testScene()

	r.mu.Lock()
	r.inFrame = true
	r.mu.Unlock()
	r.Reshape(640, 480)
	w, _ := r.Eye(0).Geometry.Size()
	assert.Equal(t, 800, w)
	r.endFrame()

	r.Render(g)
	w, h := r.Eye(0).Geometry.Size()
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
}

func TestReshapeFromAnotherGoroutine(t *testing.T) {
	r, _ := newTestRenderer(t)
	g, _ := testScene()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 50; i++ {
			r.Reshape(400+i, 300)
		}
	}()
	for i := 0; i < 20; i++ {
		r.Render(g)
	}
	<-done

	// a size requested during the last frame is applied by the next one
	r.Render(g)
	w, h := r.Eye(0).Geometry.Size()
	assert.Equal(t, 450, w)
	assert.Equal(t, 300, h)
}

func TestVRToggleAppliedAtFrameStart(t *testing.T) {
	r, dev := newTestRenderer(t)
	g, _ := testScene()
	r.Render(g)

	_, err := r.Settings().Toggle(settings.VRActive)
	require.NoError(t, err)
	dev.Reset()
	r.Render(g)

	for i := 0; i < 2; i++ {
		w, _ := r.Eye(i).Combination.Size()
		assert.Equal(t, 400, w)
	}
	assert.Len(t, dev.DrawsWith(mustProgram(t, r, DefaultDeferred)), 2)
	u := dev.Programs[mustProgram(t, r, Combiner)].Uniforms
	assert.Equal(t, int32(1), u["vrActive"])
	assert.Equal(t, int32(0), u["anaglyphActive"])
}

func TestAnaglyphMasksLightingPerEye(t *testing.T) {
	r, dev := newTestRenderer(t, withVR(2), func(c *Config) {
		_ = c.Settings.Set(settings.VRAnaglyph, true)
		_ = c.Settings.Set(settings.HDRActive, false)
	})
	g, _ := testScene()
	r.Render(g)

	ld := dev.DrawsWith(mustProgram(t, r, DeferredLighting))
	require.Len(t, ld, 2)
	assert.Equal(t, gpu.ColorMask{R: true, A: true}, ld[0].Mask)
	assert.Equal(t, gpu.ColorMask{G: true, B: true, A: true}, ld[1].Mask)

	cd := dev.DrawsWith(mustProgram(t, r, Combiner))
	require.Len(t, cd, 1)
	assert.Equal(t, gpu.AllChannels, cd[0].Mask)
	assert.Equal(t, gpu.NoHandle, cd[0].Framebuffer)
	assert.Equal(t, [4]int{0, 0, 800, 600}, cd[0].Viewport)
	assert.Equal(t, r.Eye(0).Combination.Texture("Color"), cd[0].Textures[0])
	assert.Equal(t, r.Eye(1).Combination.Texture("Color"), cd[0].Textures[1])
	assert.Equal(t, int32(1), dev.Programs[mustProgram(t, r, Combiner)].Uniforms["anaglyphActive"])
}

func TestSkyboxStateIsPerDraw(t *testing.T) {
	r, dev := newTestRenderer(t)
	g := scene.NewGraph()
	g.Add(scene.NewCamera("camera"), scene.NoNode)
	g.Add(scene.NewSkybox("sky", scene.Box(mgl32.Vec3{100, 100, 100}), scene.DefaultMaterial()), scene.NoNode)
	m := scene.DefaultMaterial()
	m.DoubleSided = true
	g.Add(scene.NewMesh("leaf", scene.Plane(1, 1), m), scene.NoNode)
	g.Add(scene.NewMesh("box", scene.Box(mgl32.Vec3{1, 1, 1}), scene.DefaultMaterial()), scene.NoNode)

	r.Render(g)
	draws := dev.DrawsWith(mustProgram(t, r, DefaultDeferred))
	require.Len(t, draws, 3)
	assert.Equal(t, gpu.CullFront, draws[0].Cull)
	assert.Equal(t, gpu.DepthLEqual, draws[0].Depth)
	assert.Equal(t, gpu.CullNone, draws[1].Cull)
	assert.Equal(t, gpu.DepthLess, draws[1].Depth)
	assert.Equal(t, gpu.CullBack, draws[2].Cull)
	assert.Equal(t, gpu.DepthLess, draws[2].Depth)
}

func TestInstancedGroup(t *testing.T) {
	r, dev := newTestRenderer(t)
	g := scene.NewGraph()
	g.Add(scene.NewCamera("camera"), scene.NoNode)
	tmpl := scene.NewMesh("template", scene.Box(mgl32.Vec3{1, 1, 1}), scene.DefaultMaterial())
	tmplID := g.Add(tmpl, scene.NoNode)
	for i := 0; i < 3; i++ {
		inst := scene.NewInstance("instance", tmplID)
		inst.Position = mgl32.Vec3{float32(i), 0, -5}
		g.Add(inst, scene.NoNode)
	}

	stats := r.Render(g)
	assert.Equal(t, 1, stats.InstanceGroups)
	assert.Equal(t, 3, stats.Instances)
	assert.Zero(t, stats.Nodes)
	assert.Equal(t, 1, stats.StatesCreated)

	assert.Empty(t, dev.DrawsWith(mustProgram(t, r, DefaultDeferred)))
	draws := dev.DrawsWith(mustProgram(t, r, DefaultDeferredInstanced))
	require.Len(t, draws, 1)
	assert.Equal(t, 3, draws[0].Instances)
	assert.Equal(t, 36, draws[0].Count)

	st := tmpl.Metadata[r.ID()].(*ObjectState)
	require.Len(t, st.Auxiliary, 3)
	model := dev.Buffers[st.Auxiliary[ModelBuffer]]
	require.Len(t, model.Floats, 3*16)
	assert.Equal(t, gpu.DynamicDraw, model.Usage)
	assert.Equal(t, []float32{2, 0, -5, 1}, model.Floats[2*16+12:2*16+16])
	assert.Len(t, dev.Buffers[st.Auxiliary[MVPBuffer]].Floats, 3*16)

	locations := map[uint32]gpu.Handle{}
	for _, a := range dev.Attribs {
		if a.Divisor == 1 {
			locations[a.Location] = a.Buffer
			assert.Equal(t, 4, a.Size)
		}
	}
	require.Len(t, locations, 12)
	assert.Equal(t, st.Auxiliary[ModelBuffer], locations[3])
	assert.Equal(t, st.Auxiliary[ModelViewBuffer], locations[7])
	assert.Equal(t, st.Auxiliary[MVPBuffer], locations[14])

	for i := 0; i < 2; i++ {
		_, ok := g.Node(scene.ID(2 + i)).Metadata[r.ID()]
		assert.False(t, ok, "instances share the template state")
	}
}

func TestAuxiliaryBuffersCreatedOnce(t *testing.T) {
	r, dev := newTestRenderer(t)
	g := scene.NewGraph()
	g.Add(scene.NewCamera("camera"), scene.NoNode)
	tmplID := g.Add(scene.NewMesh("template", scene.Box(mgl32.Vec3{1, 1, 1}), nil), scene.NoNode)
	g.Add(scene.NewInstance("a", tmplID), scene.NoNode)

	r.Render(g)
	buffers := dev.Count("buffer")
	for i := 0; i < 10; i++ {
		g.Add(scene.NewInstance("more", tmplID), scene.NoNode)
		stats := r.Render(g)
		assert.Equal(t, i+2, stats.Instances)
	}
	assert.Equal(t, buffers, dev.Count("buffer"))

	st := g.Node(tmplID).Metadata[r.ID()].(*ObjectState)
	assert.Zero(t, r.instancer.CreateAuxiliaryBuffers(st))
	assert.Len(t, dev.Buffers[st.Auxiliary[ModelViewBuffer]].Floats, 11*16)
}

func TestTemplateDrawnAloneSwitchesToInstancedProgram(t *testing.T) {
	r, dev := newTestRenderer(t)
	g := scene.NewGraph()
	g.Add(scene.NewCamera("camera"), scene.NoNode)
	tmplID := g.Add(scene.NewMesh("template", scene.Box(mgl32.Vec3{1, 1, 1}), nil), scene.NoNode)

	r.Render(g)
	assert.Len(t, dev.DrawsWith(mustProgram(t, r, DefaultDeferred)), 1)

	g.Add(scene.NewInstance("a", tmplID), scene.NoNode)
	dev.Reset()
	r.Render(g)
	assert.Empty(t, dev.DrawsWith(mustProgram(t, r, DefaultDeferred)))
	assert.Len(t, dev.DrawsWith(mustProgram(t, r, DefaultDeferredInstanced)), 1)
}

func TestInstancesOfMissingTemplateAreSkipped(t *testing.T) {
	r, _ := newTestRenderer(t)
	g, _ := testScene()
	g.Add(scene.NewInstance("orphan", scene.ID(99)), scene.NoNode)

	stats := r.Render(g)
	assert.Equal(t, 1, stats.Nodes)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.InstanceGroups)
}

func TestGeometryUpdateReusesBuffers(t *testing.T) {
	r, dev := newTestRenderer(t)
	g, box := testScene()

	r.Render(g)
	st := box.Metadata[r.ID()].(*ObjectState)
	assert.Equal(t, 24, st.VertexCount)
	vbuf := st.Buffers[VertexBuffer]
	buffers := dev.Count("buffer")
	assert.Contains(t, dev.Enabled[st.VAO], uint32(normalLocation))
	assert.Contains(t, dev.Enabled[st.VAO], uint32(texCoordLocation))

	geo := scene.NewGeometry()
	geo.Vertices = make([]float32, 30)
	box.Geometry = geo
	box.Dirty = true
	dev.Reset()
	r.Render(g)

	assert.False(t, box.Dirty)
	assert.Equal(t, 10, st.VertexCount)
	assert.Zero(t, st.IndexCount)
	assert.Equal(t, vbuf, st.Buffers[VertexBuffer])
	assert.Equal(t, buffers, dev.Count("buffer"))
	assert.Equal(t, 2, dev.Buffers[vbuf].Uploads)
	assert.Len(t, dev.Buffers[vbuf].Floats, 30)
	// attributes dropped by the update no longer read the old buffers
	assert.Equal(t, map[uint32]gpu.Handle{positionLocation: vbuf}, dev.Enabled[st.VAO])

	draws := dev.DrawsWith(mustProgram(t, r, DefaultDeferred))
	require.Len(t, draws, 1)
	assert.False(t, draws[0].Indexed)
	assert.Equal(t, 10, draws[0].Count)
}

func TestDynamicGeometryUsage(t *testing.T) {
	r, dev := newTestRenderer(t)
	g, box := testScene()
	box.DynamicGeometry = true
	r.Render(g)
	st := box.Metadata[r.ID()].(*ObjectState)
	assert.Equal(t, gpu.DynamicDraw, dev.Buffers[st.Buffers[VertexBuffer]].Usage)
}

func TestBufferTextureSharedAndReloadReset(t *testing.T) {
	r, dev := newTestRenderer(t)
	g, box := testScene()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	box.Material.SetTexture(scene.DiffuseTexture, scene.BufferTexture("checker", img))

	other := scene.NewMesh("other", scene.Box(mgl32.Vec3{1, 1, 1}), scene.DefaultMaterial())
	other.Material.SetTexture(scene.DiffuseTexture, scene.BufferTexture("checker", img))
	g.Add(other, scene.NoNode)

	textures := dev.Count("texture")
	stats := r.Render(g)
	assert.Equal(t, 2, stats.Nodes)
	assert.False(t, box.Material.NeedsReload)
	assert.False(t, other.Material.NeedsReload)
	assert.Equal(t, textures+1, dev.Count("texture"))

	a := box.Metadata[r.ID()].(*ObjectState).Textures[scene.DiffuseTexture]
	b := other.Metadata[r.ID()].(*ObjectState).Textures[scene.DiffuseTexture]
	assert.NotEqual(t, gpu.NoHandle, a)
	assert.Equal(t, a, b)

	prog := mustProgram(t, r, DefaultDeferred)
	assert.Equal(t, int32(2), dev.Programs[prog].Uniforms["materialType"])
	draws := dev.DrawsWith(prog)
	assert.Equal(t, a, draws[1].Textures[1])
	assert.Equal(t, r.Textures().Default(), draws[1].Textures[0])
}

func TestReloadedBufferTextureGetsNewPixels(t *testing.T) {
	r, dev := newTestRenderer(t)
	g, box := testScene()
	box.Material.SetTexture(scene.DiffuseTexture, scene.BufferTexture("live", solid(color.RGBA{255, 0, 0, 255})))

	r.Render(g)
	st := box.Metadata[r.ID()].(*ObjectState)
	before := st.Textures[scene.DiffuseTexture]
	assert.Equal(t, []byte{255, 0, 0, 255}, dev.Textures[before].Pixels)
	textures := dev.Count("texture")

	box.Material.SetTexture(scene.DiffuseTexture, scene.BufferTexture("live", solid(color.RGBA{0, 255, 0, 255})))
	r.Render(g)

	assert.False(t, box.Material.NeedsReload)
	assert.Equal(t, before, st.Textures[scene.DiffuseTexture])
	assert.Equal(t, []byte{0, 255, 0, 255}, dev.Textures[before].Pixels)
	assert.Equal(t, textures, dev.Count("texture"))
}

func TestLockedTextureStateSkipsNode(t *testing.T) {
	r, dev := newTestRenderer(t)
	g, box := testScene()
	r.Render(g)
	st := box.Metadata[r.ID()].(*ObjectState)

	st.loading.Lock()
	dev.Reset()
	stats := r.Render(g)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Nodes)
	assert.Empty(t, dev.DrawsWith(mustProgram(t, r, DefaultDeferred)))
	st.loading.Unlock()

	stats = r.Render(g)
	assert.Equal(t, 1, stats.Nodes)
}

func TestProgramPriority(t *testing.T) {
	shaders := fstest.MapFS{
		"Glow.frag":      {Data: []byte("// Glow\n")},
		"Preferred.frag": {Data: []byte("// Preferred\n")},
		"Assigned.frag":  {Data: []byte("// Assigned\n")},
		"Broken.frag":    {Data: []byte("// Broken\n")},
	}
	r, dev := newTestRenderer(t, func(c *Config) { c.Shaders = shaders })
	dev.FailCompile = func(vs, fs string) bool { return strings.Contains(fs, "Broken") }

	g := scene.NewGraph()
	g.Add(scene.NewCamera("camera"), scene.NoNode)
	add := func(name string, setup func(n *scene.Node)) *scene.Node {
		n := scene.NewMesh(name, scene.Plane(1, 1), scene.DefaultMaterial())
		setup(n)
		g.Add(n, scene.NoNode)
		return n
	}
	variant := add("variant", func(n *scene.Node) {
		n.Variant, n.UseVariantShader, n.ShaderPreference = "Glow", true, "Preferred"
	})
	preferred := add("preferred", func(n *scene.Node) {
		n.ShaderPreference = "Preferred"
		n.Material.Program = "Assigned"
	})
	assigned := add("assigned", func(n *scene.Node) {
		n.ShaderPreference = "Missing"
		n.Material.Program = "Assigned"
	})
	fallback := add("fallback", func(n *scene.Node) { n.ShaderPreference = "Broken" })
	ignored := add("ignored", func(n *scene.Node) { n.Variant = "Glow" })

	stats := r.Render(g)
	assert.Equal(t, 5, stats.Nodes)
	name := func(n *scene.Node) string { return n.Metadata[r.ID()].(*ObjectState).ProgramName }
	assert.Equal(t, "Glow", name(variant))
	assert.Equal(t, "Preferred", name(preferred))
	assert.Equal(t, "Assigned", name(assigned))
	assert.Equal(t, DefaultDeferred, name(fallback))
	assert.Equal(t, DefaultDeferred, name(ignored))

	glow := dev.ProgramWith("// Glow")
	require.NotEqual(t, gpu.NoHandle, glow)
	assert.Contains(t, dev.Programs[glow].Vertex, "vertexPosition")
}

func TestCustomPropertiesPushed(t *testing.T) {
	r, dev := newTestRenderer(t)
	g, box := testScene()
	calls := 0
	box.Variant = "Pulsing"
	box.Properties = scene.PropertyFunc(func() []scene.ShaderProperty {
		calls++
		return []scene.ShaderProperty{
			{Name: "pulse", Type: scene.PropertyFloat, Value: float32(calls)},
			{Name: "label", Type: scene.PropertyOther, Value: "text"},
			{Name: "tint", Type: scene.PropertyVec3, Value: mgl32.Vec3{0, 1, 0}},
		}
	})

	r.Render(g)
	r.Render(g)
	u := dev.Programs[mustProgram(t, r, DefaultDeferred)].Uniforms
	assert.Equal(t, float32(2), u["pulse"])
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, u["tint"])
	assert.NotContains(t, u, "label")
	require.Len(t, r.binder.schemas["Pulsing"], 3)
	assert.False(t, r.binder.schemas["Pulsing"][1].supported)
}

func TestHMDProjectionAndSubmit(t *testing.T) {
	r, dev := newTestRenderer(t, withVR(2))
	g, _ := testScene()
	hmd := &fakeHMD{ready: true, compositor: true, projection: mgl32.Scale3D(2, 2, 2)}
	r.SetHMD(hmd)

	r.Render(g)
	u := dev.Programs[mustProgram(t, r, DefaultDeferred)].Uniforms
	assert.Equal(t, hmd.projection, u["ProjectionMatrix"])
	mv := u["ModelViewMatrix"].(mgl32.Mat4)
	assert.True(t, translation(mv).ApproxEqualThreshold(mgl32.Vec3{0, 0, -5}, 1e-5), "no IPD shift with an HMD")

	require.Len(t, hmd.submitted, 1)
	assert.Equal(t, [2]gpu.Handle{r.Eye(0).Combination.Texture("Color"), r.Eye(1).Combination.Texture("Color")}, hmd.submitted[0])

	hmd.ready = false
	r.Render(g)
	assert.Len(t, hmd.submitted, 1)
	proj := mgl32.Perspective(mgl32.DegToRad(FieldOfView), 400.0/600.0, 0.05, 1000)
	assert.True(t, u["ProjectionMatrix"].(mgl32.Mat4).ApproxEqualThreshold(proj, 1e-5))
}

type failingHMD struct{ fakeHMD }

func (h *failingHMD) SubmitFrame(left, right gpu.Handle) error { return errors.New("compositor lost") }

func TestHMDSubmitErrorDoesNotStopFrames(t *testing.T) {
	r, _ := newTestRenderer(t, withVR(2))
	g, _ := testScene()
	r.SetHMD(&failingHMD{fakeHMD{ready: true, compositor: true, projection: mgl32.Ident4()}})
	assert.Equal(t, 1, r.Render(g).Nodes)
	assert.Equal(t, 1, r.Render(g).Nodes)
}

func TestScreenshot(t *testing.T) {
	r, dev := newTestRenderer(t)
	dev.ReadColor = [4]byte{10, 20, 30, 255}
	img := r.Screenshot()
	assert.Equal(t, image.Rect(0, 0, 800, 600), img.Bounds())
	assert.Equal(t, color.RGBA{10, 20, 30, 255}, img.RGBAAt(799, 0))
}

func TestCloseReleasesEverything(t *testing.T) {
	r, dev := newTestRenderer(t)
	g, box := testScene()
	box.Material.SetTexture(scene.DiffuseTexture, scene.BufferTexture("white", image.NewRGBA(image.Rect(0, 0, 1, 1))))
	tmplID := g.Add(scene.NewMesh("template", scene.Box(mgl32.Vec3{1, 1, 1}), nil), scene.NoNode)
	g.Add(scene.NewInstance("instance", tmplID), scene.NoNode)
	r.Render(g)

	r.Close()
	for _, kind := range []string{"vao", "buffer", "program", "texture", "framebuffer"} {
		assert.Zero(t, dev.Count(kind), kind)
	}
}

package deferred

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/gmlewis/deferred/gpu"
	"github.com/gmlewis/deferred/scene"
	"github.com/gmlewis/deferred/settings"
)

// MaxLights is the size of the lighting pass light array.
const MaxLights = 32

// frameSettings is the snapshot of the settings a frame reads.
type frameSettings struct {
	vr       bool
	anaglyph bool
	ipd      float32

	hdr      bool
	exposure float32
	gamma    float32

	ssao          bool
	ssaoRadius    float32
	ssaoThreshold float32
	ssaoAlgorithm int

	debug bool
}

func snapshot(s *settings.Store) frameSettings {
	return frameSettings{
		vr:            s.Bool(settings.VRActive),
		anaglyph:      s.Bool(settings.VRAnaglyph),
		ipd:           s.Float(settings.VRIPD),
		hdr:           s.Bool(settings.HDRActive),
		exposure:      s.Float(settings.HDRExposure),
		gamma:         s.Float(settings.HDRGamma),
		ssao:          s.Bool(settings.SSAOActive),
		ssaoRadius:    s.Float(settings.SSAORadius),
		ssaoThreshold: s.Float(settings.SSAODistanceThreshold),
		ssaoAlgorithm: s.Int(settings.SSAOAlgorithm),
		debug:         s.Bool(settings.DebugBuffers),
	}
}

// instanceGroup is a template and the visible instances drawing it.
type instanceGroup struct {
	template  scene.ID
	instances []*scene.Node
}

// partition splits nodes into singletons and instance groups, both in
// discovery order. Templates that have a group are not singletons.
func partition(nodes []*scene.Node) ([]*scene.Node, []*instanceGroup) {
	var groups []*instanceGroup
	byTemplate := map[scene.ID]*instanceGroup{}
	var candidates []*scene.Node
	for _, n := range nodes {
		if !n.IsInstance() {
			candidates = append(candidates, n)
			continue
		}
		g, ok := byTemplate[n.InstanceOf]
		if !ok {
			g = &instanceGroup{template: n.InstanceOf}
			byTemplate[n.InstanceOf] = g
			groups = append(groups, g)
		}
		g.instances = append(g.instances, n)
	}
	singles := candidates[:0:0]
	for _, n := range candidates {
		if _, ok := byTemplate[n.ID]; !ok {
			singles = append(singles, n)
		}
	}
	return singles, groups
}

// Render draws one frame of sc and returns its statistics. Failures of
// individual nodes are logged and the node is skipped.
func (r *Renderer) Render(sc Scene) FrameStats {
	snap := snapshot(r.settings)
	r.stats = FrameStats{}
	r.beginFrame(snap)
	defer r.endFrame()

	nodes := sc.Discover(func(n *scene.Node) bool { return n.Renderable() })
	cam := sc.ActiveCamera()
	lights := sc.Discover(func(n *scene.Node) bool { return n.IsLight() })
	var hmd HMD
	if r.hmd != nil && r.hmd.IsReady() {
		hmd = r.hmd
	}

	singles, groups := partition(nodes)

	eyes := r.eyeCount()
	views := make([]eyeView, eyes)
	for i := range views {
		w, h := r.eyes[i].Geometry.Size()
		views[i] = newEyeView(i, eyes, hmd, cam, float32(w)/float32(h), snap.ipd)
	}

	for i := 0; i < eyes; i++ {
		r.eyes[i].Geometry.BindForDrawing()
		r.dev.ColorMask(gpu.AllChannels)
		r.dev.ClearColor(0, 0, 0, 0)
		r.dev.Clear(true, true)
	}

	for _, n := range singles {
		r.drawSingle(sc, n, views)
	}
	for _, g := range groups {
		r.drawGroup(sc, g, views)
	}

	for i := 0; i < eyes; i++ {
		r.lightingPass(i, views[i], lights, snap)
	}
	r.composite(hmd, snap)

	return r.stats
}

// renderState fully specifies the raster state of a node's draw.
func (r *Renderer) renderState(n *scene.Node, m *scene.Material) {
	r.dev.ColorMask(gpu.AllChannels)
	switch {
	case n.Kind == scene.KindSkybox:
		r.dev.CullFace(gpu.CullFront)
		r.dev.DepthFunc(gpu.DepthLEqual)
		return
	case m != nil && m.DoubleSided:
		r.dev.CullFace(gpu.CullNone)
	default:
		r.dev.CullFace(gpu.CullBack)
	}
	r.dev.DepthFunc(gpu.DepthLess)
}

func (r *Renderer) drawSingle(sc Scene, n *scene.Node, views []eyeView) {
	if !r.ensureInitialized(sc, n, false) {
		r.stats.Skipped++
		return
	}
	st := r.state(sc, n)
	if !r.textures.Ensure(n.Name, st, n.Material) {
		r.stats.Skipped++
		return
	}
	r.updateGeometry(st, n)

	for _, ev := range views {
		r.eyes[ev.index].Geometry.BindForDrawing()
		r.binder.Use(st.Program)
		r.binder.Transforms(ev.transforms(n.World, n.Billboard), n.Billboard)
		r.binder.Material(n, n.Material, st, r.textures.Default())
		r.binder.Properties(n)
		r.renderState(n, n.Material)
		r.draw(st, 0)
	}
	r.stats.Nodes++
}

func (r *Renderer) drawGroup(sc Scene, g *instanceGroup, views []eyeView) {
	tmpl := sc.Node(g.template)
	if tmpl == nil || !tmpl.HasGeometry() {
		r.warn.Warn(fmt.Sprintf("template:%v", g.template), "instances reference a template without geometry",
			zap.Int("template", int(g.template)), zap.Int("instances", len(g.instances)))
		r.stats.Skipped += len(g.instances)
		return
	}
	if !r.ensureInitialized(sc, tmpl, true) {
		r.stats.Skipped += len(g.instances)
		return
	}
	st := r.state(sc, tmpl)
	r.instancer.CreateAuxiliaryBuffers(st)
	if !r.textures.Ensure(tmpl.Name, st, tmpl.Material) {
		r.stats.Skipped += len(g.instances)
		return
	}
	r.updateGeometry(st, tmpl)

	for _, inst := range g.instances {
		sc.UpdateWorld(inst)
	}

	for _, ev := range views {
		st.instances = st.instances[:0]
		for _, inst := range g.instances {
			t := ev.transforms(inst.World, inst.Billboard || tmpl.Billboard)
			st.instances = append(st.instances, InstanceMatrices{Model: t.Model, ModelView: t.ModelView, MVP: t.MVP})
		}
		r.instancer.UpdateAndBind(st, st.instances)

		r.eyes[ev.index].Geometry.BindForDrawing()
		r.binder.Use(st.Program)
		r.binder.Transforms(ev.transforms(tmpl.World, tmpl.Billboard), tmpl.Billboard)
		r.binder.Material(tmpl, tmpl.Material, st, r.textures.Default())
		r.binder.Properties(tmpl)
		r.renderState(tmpl, tmpl.Material)
		r.draw(st, len(g.instances))
	}
	r.stats.InstanceGroups++
	r.stats.Instances += len(g.instances)
}

// draw issues the draw call of st; instances > 0 selects an instanced draw.
func (r *Renderer) draw(st *ObjectState, instances int) {
	r.dev.BindVertexArray(st.VAO)
	switch {
	case instances > 0 && st.IndexCount > 0:
		r.dev.DrawElementsInstanced(st.Primitive, st.IndexCount, instances)
	case instances > 0:
		r.dev.DrawArraysInstanced(st.Primitive, 0, st.VertexCount, instances)
	case st.IndexCount > 0:
		r.dev.DrawElements(st.Primitive, st.IndexCount)
	default:
		r.dev.DrawArrays(st.Primitive, 0, st.VertexCount)
	}
	r.stats.DrawCalls++
}

// eyeMask returns the color channels eye writes.
func eyeMask(eye int, snap frameSettings) gpu.ColorMask {
	if !snap.vr || !snap.anaglyph {
		return gpu.AllChannels
	}
	if eye == 0 {
		return gpu.ColorMask{R: true, A: true}
	}
	return gpu.ColorMask{G: true, B: true, A: true}
}

func (r *Renderer) program(name string) (gpu.Handle, bool) {
	p, err := r.shaders.Program(name)
	if err != nil {
		r.warn.Warn("program:"+name, "composition pass skipped", zap.Error(err))
		return gpu.NoHandle, false
	}
	return p, true
}

// lightingPass shades eye from its geometry buffer into the HDR buffer, or
// into the combination buffer when HDR is off, and tonemaps HDR into the
// combination buffer.
func (r *Renderer) lightingPass(eye int, ev eyeView, lights []*scene.Node, snap frameSettings) {
	eb := r.eyes[eye]
	mask := eyeMask(eye, snap)

	target := eb.Combination
	if snap.hdr {
		target = eb.HDR
	}
	prog, ok := r.program(DeferredLighting)
	if !ok {
		return
	}
	target.BindForDrawing()
	r.dev.ColorMask(mask)
	r.dev.Clear(true, true)
	r.binder.Use(prog)

	eb.Geometry.BindAttachmentsForSampling(0)
	for i, s := range eb.Geometry.Specs() {
		r.binder.set(s.Name, int32(i))
	}

	if len(lights) > MaxLights {
		r.warn.Warn("lights", "too many point lights", zap.Int("lights", len(lights)), zap.Int("max", MaxLights))
		lights = lights[:MaxLights]
	}
	r.binder.set("numLights", int32(len(lights)))
	for i, l := range lights {
		p := ev.view.Mul4x1(l.WorldPosition().Vec4(1)).Vec3()
		prefix := fmt.Sprintf("lights[%d].", i)
		r.binder.set(prefix+"Position", p)
		r.binder.set(prefix+"Color", l.Light.Color)
		r.binder.set(prefix+"Intensity", l.Light.Intensity)
		r.binder.set(prefix+"Linear", l.Light.Linear)
		r.binder.set(prefix+"Quadratic", l.Light.Quadratic)
	}
	r.binder.set("ssaoActive", snap.ssao)
	r.binder.set("ssaoRadius", snap.ssaoRadius)
	r.binder.set("ssaoDistanceThreshold", snap.ssaoThreshold)
	r.binder.set("ssaoAlgorithm", int32(snap.ssaoAlgorithm))
	r.binder.set("debugBuffers", snap.debug)
	r.quad.draw(r.dev)
	r.stats.DrawCalls++

	if !snap.hdr {
		return
	}
	prog, ok = r.program(HDRTonemap)
	if !ok {
		return
	}
	eb.Combination.BindForDrawing()
	r.dev.ColorMask(mask)
	r.dev.Clear(true, true)
	r.binder.Use(prog)
	r.dev.BindTexture(0, eb.HDR.Texture("HDRBuffer"))
	r.binder.set("hdrBuffer", int32(0))
	r.binder.set("exposure", snap.exposure)
	r.binder.set("gamma", snap.gamma)
	r.quad.draw(r.dev)
	r.stats.DrawCalls++
}

// composite draws the eyes' combination buffers to the display and hands
// them to the HMD compositor when there is one.
func (r *Renderer) composite(hmd HMD, snap frameSettings) {
	prog, ok := r.program(Combiner)
	if !ok {
		return
	}
	r.dev.BindFramebuffer(gpu.NoHandle)
	r.dev.Viewport(0, 0, r.width, r.height)
	r.dev.ColorMask(gpu.AllChannels)
	r.dev.Clear(true, true)
	r.binder.Use(prog)

	left := r.eyes[0].Combination.Texture("Color")
	right := left
	if r.vrActive {
		right = r.eyes[1].Combination.Texture("Color")
	}
	r.dev.BindTexture(0, left)
	r.dev.BindTexture(1, right)
	r.binder.set("leftEye", int32(0))
	r.binder.set("rightEye", int32(1))
	r.binder.set("vrActive", r.vrActive)
	r.binder.set("anaglyphActive", r.vrActive && snap.anaglyph)
	r.quad.draw(r.dev)
	r.stats.DrawCalls++

	if hmd != nil && r.vrActive && hmd.HasCompositor() {
		if err := hmd.SubmitFrame(left, right); err != nil {
			r.warn.Warn("hmd-submit", "HMD frame submission failed", zap.Error(err))
		}
	}
}

// Package deferred implements a deferred-shading pipeline over a scene
// graph: geometry passes into per-eye geometry buffers, a lighting pass, HDR
// tonemapping and a final stereo-aware composite.
//
// A Renderer and the gpu.Device it drives must only be used from the
// goroutine owning the graphics context.
package deferred

import (
	"fmt"
	"image"
	"io/fs"
	"sync"

	"github.com/anthonynsimon/bild/transform"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gmlewis/deferred/gpu"
	"github.com/gmlewis/deferred/scene"
	"github.com/gmlewis/deferred/settings"
)

// Config configures a Renderer.
type Config struct {
	// Width and Height are the size of the display surface in pixels.
	Width, Height int
	// Settings is read at the start of every frame. Defaults are used when
	// nil.
	Settings *settings.Store
	Logger   *zap.Logger
	// Shaders overrides or adds shader sets; see ShaderLibrary.
	Shaders fs.FS
	// LoadWorkers bounds concurrent texture decodes. Defaults to 2.
	LoadWorkers int
}

// FrameStats summarizes one rendered frame.
type FrameStats struct {
	Nodes          int
	InstanceGroups int
	Instances      int
	DrawCalls      int
	Skipped        int
	StatesCreated  int
}

// Renderer draws scenes through a gpu.Device.
type Renderer struct {
	id       string
	dev      gpu.Device
	log      *zap.Logger
	warn     *onceLog
	settings *settings.Store

	shaders   *ShaderLibrary
	binder    *Binder
	textures  *TextureCache
	instancer *Instancer
	quad      *quad

	eyes     [2]*EyeBuffers
	width    int
	height   int
	vrActive bool
	hmd      HMD

	mu      sync.Mutex
	inFrame bool
	pending *[2]int

	states []*ObjectState
	stats  FrameStats
}

// New creates a renderer. It fails when a built-in shader set does not
// compile or the eye framebuffers are incomplete.
func New(dev gpu.Device, cfg Config) (*Renderer, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("deferred.New: invalid size %vx%v", cfg.Width, cfg.Height)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	store := cfg.Settings
	if store == nil {
		store = settings.New()
	}
	workers := cfg.LoadWorkers
	if workers <= 0 {
		workers = 2
	}

	r := &Renderer{
		id:        uuid.NewString(),
		dev:       dev,
		log:       log,
		warn:      newOnceLog(log),
		settings:  store,
		shaders:   NewShaderLibrary(dev, cfg.Shaders),
		instancer: NewInstancer(dev),
		width:     cfg.Width,
		height:    cfg.Height,
		vrActive:  store.Bool(settings.VRActive),
	}
	r.binder = newBinder(dev, r.warn)

	var err error
	for _, name := range requiredShaders {
		if _, e := r.shaders.Program(name); e != nil {
			err = multierr.Append(err, e)
		}
	}
	if err != nil {
		r.shaders.release()
		return nil, fmt.Errorf("deferred.New: %w", err)
	}

	eyeWidth := r.eyeWidth(cfg.Width)
	for i := range r.eyes {
		eb, err := newEyeBuffers(dev, eyeWidth, cfg.Height)
		if err != nil {
			for _, e := range r.eyes[:i] {
				e.Delete()
			}
			r.shaders.release()
			return nil, fmt.Errorf("deferred.New: eye %v: %w", i, err)
		}
		r.eyes[i] = eb
	}

	r.quad = newQuad(dev)
	r.textures = newTextureCache(dev, log, r.warn, newLoader(workers, 64))
	log.Info("deferred renderer created",
		zap.String("id", r.id), zap.Int("width", cfg.Width), zap.Int("height", cfg.Height), zap.Bool("vr", r.vrActive))
	return r, nil
}

// ID returns the renderer identity, the key of its node metadata.
func (r *Renderer) ID() string { return r.id }

// Settings returns the store read every frame.
func (r *Renderer) Settings() *settings.Store { return r.settings }

// Textures returns the renderer's texture cache.
func (r *Renderer) Textures() *TextureCache { return r.textures }

// Eye returns the framebuffers of eye 0 or 1.
func (r *Renderer) Eye(i int) *EyeBuffers { return r.eyes[i] }

// Stats returns the statistics of the last frame.
func (r *Renderer) Stats() FrameStats { return r.stats }

// SetHMD registers a head-mounted display. Pass nil to remove it.
func (r *Renderer) SetHMD(h HMD) { r.hmd = h }

func (r *Renderer) eyeWidth(width int) int {
	if !r.vrActive {
		return width
	}
	div := r.settings.Int(settings.VREyeDivisor)
	if div < 1 {
		div = 1
	}
	return max(width/div, 1)
}

func (r *Renderer) eyeCount() int {
	if r.vrActive {
		return 2
	}
	return 1
}

// Reshape resizes the display surface. The eye width is the display width,
// divided by vr.EyeDivisor when VR is active; only the eyes in use are
// resized. Calls made while a frame is rendering take effect at the start
// of the next frame. Reshape may be called from another goroutine than
// Render: the resize then holds off the next frame until it is done. With
// a device bound to one thread, such as OpenGL, call it from that thread.
func (r *Renderer) Reshape(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFrame {
		r.pending = &[2]int{width, height}
		return
	}
	r.reshape(width, height)
}

func (r *Renderer) reshape(width, height int) {
	if width <= 0 || height <= 0 {
		r.log.Warn("ignoring reshape", zap.Int("width", width), zap.Int("height", height))
		return
	}
	r.width, r.height = width, height
	ew := r.eyeWidth(width)
	for i := 0; i < r.eyeCount(); i++ {
		if err := r.eyes[i].Resize(ew, height); err != nil {
			r.log.Error("resizing eye buffers", zap.Int("eye", i), zap.Error(err))
		}
	}
	r.log.Debug("reshape", zap.Int("width", width), zap.Int("height", height), zap.Int("eyeWidth", ew))
}

// beginFrame applies a pending reshape and VR toggle.
func (r *Renderer) beginFrame(snap frameSettings) {
	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	r.inFrame = true
	r.mu.Unlock()

	width, height := r.width, r.height
	if pending != nil {
		width, height = pending[0], pending[1]
	}
	if snap.vr != r.vrActive {
		r.vrActive = snap.vr
		r.log.Info("VR mode changed", zap.Bool("vr", snap.vr))
		pending = &[2]int{width, height}
	}
	if pending != nil {
		r.reshape(width, height)
	}
}

func (r *Renderer) endFrame() {
	r.mu.Lock()
	r.inFrame = false
	r.mu.Unlock()
}

// state returns the object state of n, creating it on first use. Instances
// resolve to their template's state; nil means the template is missing.
func (r *Renderer) state(sc Scene, n *scene.Node) *ObjectState {
	if n.IsInstance() {
		t := sc.Node(n.InstanceOf)
		if t == nil {
			return nil
		}
		n = t
	}
	if st, ok := n.Metadata[r.id].(*ObjectState); ok {
		return st
	}
	st := newObjectState()
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	n.Metadata[r.id] = st
	r.states = append(r.states, st)
	r.stats.StatesCreated++
	return st
}

// ensureInitialized allocates the GPU state of n on first use. A node that
// failed once is never retried. Templates drawn instanced switch from the
// default program to the instanced one.
func (r *Renderer) ensureInitialized(sc Scene, n *scene.Node, instanced bool) bool {
	st := r.state(sc, n)
	if st == nil || st.Failed {
		return false
	}
	if st.Initialized {
		if instanced && !st.instanced && st.defaultProgram {
			if p, err := r.shaders.Program(DefaultDeferredInstanced); err == nil {
				st.Program, st.ProgramName = p, DefaultDeferredInstanced
			}
		}
		st.instanced = st.instanced || instanced
		return true
	}

	prog, name, err := r.resolveProgram(n, instanced)
	if err != nil {
		st.Failed = true
		r.log.Error("node cannot be drawn", zap.String("node", n.Name), zap.Error(err))
		return false
	}
	st.Program, st.ProgramName = prog, name
	st.defaultProgram = name == DefaultDeferred || name == DefaultDeferredInstanced
	st.instanced = instanced
	st.Dynamic = n.DynamicGeometry
	st.VAO = r.dev.CreateVertexArray()
	if n.HasGeometry() {
		st.upload(r.dev, n.Geometry)
		n.Dirty = false
	}
	st.Initialized = true
	r.log.Debug("node initialized", zap.String("node", n.Name), zap.String("program", name))
	return true
}

// resolveProgram picks the first shader set that compiles among: the
// node's variant set (when requested), its shader preference, the program
// assigned to its material and the default.
func (r *Renderer) resolveProgram(n *scene.Node, instanced bool) (gpu.Handle, string, error) {
	var candidates []string
	if n.UseVariantShader && n.Variant != "" {
		candidates = append(candidates, n.Variant)
	}
	if n.ShaderPreference != "" {
		candidates = append(candidates, n.ShaderPreference)
	}
	if n.Material != nil && n.Material.Program != "" {
		candidates = append(candidates, n.Material.Program)
	}
	def := DefaultDeferred
	if instanced {
		def = DefaultDeferredInstanced
	}
	candidates = append(candidates, def)

	var errs error
	for _, name := range candidates {
		p, err := r.shaders.Program(name)
		if err == nil {
			return p, name, nil
		}
		r.warn.Warn("program:"+n.Name+":"+name, "falling back from shader set",
			zap.String("node", n.Name), zap.Error(err))
		errs = multierr.Append(errs, err)
	}
	return gpu.NoHandle, "", errs
}

// updateGeometry re-uploads the geometry of a dirty node into its existing
// buffers.
func (r *Renderer) updateGeometry(st *ObjectState, n *scene.Node) {
	if !n.Dirty || !n.HasGeometry() {
		return
	}
	st.upload(r.dev, n.Geometry)
	n.Dirty = false
}

// Screenshot reads back the final color of eye 0.
func (r *Renderer) Screenshot() *image.RGBA {
	fb := r.eyes[0].Combination
	w, h := fb.Size()
	r.dev.BindFramebuffer(fb.Handle())
	pix := r.dev.ReadPixels(0, 0, w, h)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(img.Pix, pix)
	// rows come back bottom first
	return transform.FlipV(img)
}

// Close waits for pending texture decodes and releases every GPU object
// the renderer created.
func (r *Renderer) Close() {
	r.textures.release()
	for _, st := range r.states {
		st.release(r.dev)
	}
	r.states = nil
	for _, e := range r.eyes {
		e.Delete()
	}
	r.quad.release(r.dev)
	r.shaders.release()
	r.log.Info("deferred renderer closed", zap.String("id", r.id))
}

package deferred

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"os"
	"sort"
	"sync"

	"github.com/anthonynsimon/bild/transform"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/gmlewis/deferred/gpu"
	"github.com/gmlewis/deferred/scene"
)

// ErrNotReady is returned by TextureCache.Load while a texture is still
// being decoded.
var ErrNotReady = errors.New("texture not ready")

// textureSlots lists the material texture slots in sampler order:
// slot i is bound to texture unit i and sets bit i of materialType.
var textureSlots = []scene.TextureType{
	scene.AmbientTexture,
	scene.DiffuseTexture,
	scene.SpecularTexture,
	scene.NormalTexture,
	scene.DisplacementTexture,
}

func slotIndex(t scene.TextureType) (int, bool) {
	for i, s := range textureSlots {
		if s == t {
			return i, true
		}
	}
	return 0, false
}

type decoded struct {
	img  *image.RGBA
	err  error
	done bool
}

// TextureCache shares GPU textures between nodes by source ID. Files are
// decoded on the loader pool; uploads happen on the render goroutine.
type TextureCache struct {
	dev    gpu.Device
	log    *zap.Logger
	warn   *onceLog
	loader *loader

	textures map[string]gpu.Handle
	owned    []gpu.Handle
	white    gpu.Handle

	mu      sync.Mutex
	pending map[string]*decoded
}

func newTextureCache(dev gpu.Device, log *zap.Logger, warn *onceLog, l *loader) *TextureCache {
	c := &TextureCache{
		dev:      dev,
		log:      log,
		warn:     warn,
		loader:   l,
		textures: map[string]gpu.Handle{},
		pending:  map[string]*decoded{},
	}
	c.white = dev.CreateTexture(1, 1, gpu.RGBA8, []byte{255, 255, 255, 255})
	c.owned = append(c.owned, c.white)
	return c
}

// Default returns the 1x1 white texture bound to empty slots.
func (c *TextureCache) Default() gpu.Handle { return c.white }

// Load returns the texture for src, uploading it on first use. Sources with
// the same ID share one texture. File sources are decoded asynchronously:
// until the decode finishes Load returns ErrNotReady. A source that cannot
// be decoded resolves to the default texture and a non-nil error.
func (c *TextureCache) Load(t scene.TextureType, src scene.TextureSource) (gpu.Handle, error) {
	return c.load(t, src, false)
}

// Reload is like Load but reads the pixels of src again, even when it is
// cached. A cached texture keeps its handle and receives the new pixels; a
// source cached as the default gets a texture of its own. When the file can
// no longer be decoded the previous texture is kept.
func (c *TextureCache) Reload(t scene.TextureType, src scene.TextureSource) (gpu.Handle, error) {
	return c.load(t, src, true)
}

func (c *TextureCache) load(t scene.TextureType, src scene.TextureSource, refresh bool) (gpu.Handle, error) {
	if _, ok := slotIndex(t); !ok {
		return gpu.NoHandle, fmt.Errorf("unknown texture type %q", t)
	}
	id := src.ID()
	cached, hit := c.textures[id]
	if hit && !refresh {
		return cached, nil
	}

	if src.IsBuffer() {
		if src.Image == nil {
			if !hit {
				cached = c.white
				c.textures[id] = cached
			}
			return cached, fmt.Errorf("texture %v: no image", id)
		}
		return c.upload(id, transform.FlipV(src.Image)), nil
	}

	c.mu.Lock()
	d, ok := c.pending[id]
	if !ok {
		d = &decoded{}
		if !c.loader.submit(func() { c.decode(src.Path, d) }) {
			c.mu.Unlock()
			return gpu.NoHandle, ErrNotReady
		}
		c.pending[id] = d
	}
	done, img, err := d.done, d.img, d.err
	if done {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	switch {
	case !done:
		return gpu.NoHandle, ErrNotReady
	case err != nil:
		if !hit {
			cached = c.white
			c.textures[id] = cached
		}
		return cached, fmt.Errorf("texture %v: %w", id, err)
	}
	return c.upload(id, img), nil
}

func (c *TextureCache) decode(path string, d *decoded) {
	img, err := decodeFile(path)
	c.mu.Lock()
	d.img, d.err, d.done = img, err, true
	c.mu.Unlock()
}

// upload stores img as the texture of id, re-specifying the cached texture
// when there is one other than the default.
func (c *TextureCache) upload(id string, img *image.RGBA) gpu.Handle {
	b := img.Bounds()
	if h, ok := c.textures[id]; ok && h != c.white {
		c.dev.UpdateTexture(h, b.Dx(), b.Dy(), gpu.RGBA8, img.Pix)
		c.log.Debug("texture reloaded", zap.String("source", id), zap.Int("width", b.Dx()), zap.Int("height", b.Dy()))
		return h
	}
	h := c.dev.CreateTexture(b.Dx(), b.Dy(), gpu.RGBA8, img.Pix)
	c.textures[id] = h
	c.owned = append(c.owned, h)
	c.log.Debug("texture uploaded", zap.String("source", id), zap.Int("width", b.Dx()), zap.Int("height", b.Dy()))
	return h
}

// decodeFile reads an image file and flips it so that the first row is
// the bottom one, as GL texture coordinates expect.
func decodeFile(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %v: %w", path, err)
	}
	return transform.FlipV(img), nil
}

// Ensure resolves the texture slots of m into st. It returns false when the
// node must be skipped this frame: another caller holds the state's lock
// or a texture is still decoding. Slots are only resolved again when
// m.NeedsReload is set, which is reset once every slot has a texture. A
// flagged material that was serviced before has the pixels of each source
// read again, once per reload.
func (c *TextureCache) Ensure(node string, st *ObjectState, m *scene.Material) bool {
	if !st.loading.TryLock() {
		return false
	}
	defer st.loading.Unlock()

	if m == nil || (st.texturesLoaded && !m.NeedsReload) {
		return true
	}
	reload := st.texturesLoaded
	if reload && st.reloaded == nil {
		st.reloaded = map[string]bool{}
	}

	types := make([]scene.TextureType, 0, len(m.Textures))
	for t := range m.Textures {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	ready := true
	resolved := make(map[scene.TextureType]gpu.Handle, len(types))
	for _, t := range types {
		src := m.Textures[t]
		refresh := reload && !st.reloaded[src.ID()]
		h, err := c.load(t, src, refresh)
		if refresh && !errors.Is(err, ErrNotReady) {
			st.reloaded[src.ID()] = true
		}
		switch {
		case errors.Is(err, ErrNotReady):
			ready = false
			continue
		case h == gpu.NoHandle:
			c.warn.Warn("slot:"+node+":"+string(t), "skipping texture slot", zap.String("node", node), zap.Error(err))
			continue
		case err != nil:
			c.warn.Warn("texture:"+src.ID(), "using default texture", zap.String("node", node), zap.Error(err))
		}
		resolved[t] = h
	}
	if !ready {
		return false
	}
	st.Textures = resolved
	st.texturesLoaded = true
	st.reloaded = nil
	m.NeedsReload = false
	return true
}

// Wait blocks until all queued decodes have finished.
func (c *TextureCache) Wait() { c.loader.Wait() }

func (c *TextureCache) release() {
	c.loader.close()
	for _, h := range c.owned {
		c.dev.DeleteTexture(h)
	}
	c.owned = nil
	c.textures = map[string]gpu.Handle{}
}

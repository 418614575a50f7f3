// Command deferred-demo renders a small lit scene with the deferred renderer.
//
// Keys: V toggles VR, A anaglyph, H HDR, O SSAO, B the geometry buffer debug
// view, F fullscreen, P saves a screenshot, Escape quits.
package main

import (
	"flag"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/gmlewis/deferred/deferred"
	"github.com/gmlewis/deferred/gpu/opengl"
	"github.com/gmlewis/deferred/scene"
	"github.com/gmlewis/deferred/settings"
)

func main() {
	var (
		width      = flag.Int("width", 1280, "window width")
		height     = flag.Int("height", 720, "window height")
		configFile = flag.String("settings", "", "YAML settings file")
		textureDir = flag.String("textures", "", "directory holding diffuse.png for the boxes")
		grid       = flag.Int("grid", 8, "instanced boxes per side")
		screenshot = flag.String("screenshot", "screenshot.png", "file written by the P key")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	cfg := zap.NewDevelopmentConfig()
	if !*verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	opengl.SetLogger(logger)

	store := settings.New()
	if *configFile != "" {
		if err := store.Load(*configFile); err != nil {
			logger.Fatal("loading settings", zap.Error(err))
		}
	}

	win, err := opengl.NewWindow(*width, *height, "Deferred Demo", true)
	if err != nil {
		logger.Fatal("creating window", zap.Error(err))
	}
	defer win.Close()

	fbWidth, fbHeight := win.FramebufferSize()
	r, err := deferred.New(&opengl.Device{}, deferred.Config{
		Width:    fbWidth,
		Height:   fbHeight,
		Settings: store,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("creating renderer", zap.Error(err))
	}
	defer r.Close()

	g, spinner := buildScene(*grid, *textureDir)

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		toggles := map[glfw.Key]string{
			glfw.KeyV: settings.VRActive,
			glfw.KeyA: settings.VRAnaglyph,
			glfw.KeyH: settings.HDRActive,
			glfw.KeyO: settings.SSAOActive,
			glfw.KeyB: settings.DebugBuffers,
			glfw.KeyF: settings.WantsFullscreen,
		}
		switch key {
		case glfw.KeyEscape:
			win.SetShouldClose(true)
		case glfw.KeyP:
			if err := imgio.Save(*screenshot, r.Screenshot(), imgio.PNGEncoder()); err != nil {
				logger.Error("saving screenshot", zap.Error(err))
				return
			}
			logger.Info("screenshot saved", zap.String("file", *screenshot))
		default:
			if k, ok := toggles[key]; ok {
				v, _ := store.Toggle(k)
				logger.Info("setting toggled", zap.String("key", k), zap.Bool("value", v))
			}
		}
	})

	start := glfw.GetTime()
	for !win.ShouldClose() {
		if want := store.Bool(settings.WantsFullscreen); want != win.Fullscreen() {
			win.SetFullscreen(want)
			_ = store.Set(settings.IsFullscreen, want)
		}
		if w, h := win.FramebufferSize(); w != fbWidth || h != fbHeight {
			fbWidth, fbHeight = w, h
			r.Reshape(w, h)
		}

		angle := float32(glfw.GetTime() - start)
		spinner.Rotation = mgl32.QuatRotate(angle, mgl32.Vec3{0, 1, 0})
		g.UpdateAll()

		stats := r.Render(g)
		if stats.Skipped > 0 {
			logger.Debug("nodes skipped", zap.Int("skipped", stats.Skipped))
		}
		win.Present()
	}
}

// buildScene returns a floor, a spinning box, a grid of instanced boxes,
// two lights and a camera.
func buildScene(grid int, textureDir string) (*scene.Graph, *scene.Node) {
	g := scene.NewGraph()

	cam := scene.NewCamera("camera")
	cam.Position = mgl32.Vec3{0, 3, 10}
	cam.Camera.Forward = mgl32.Vec3{0, -0.3, -1}.Normalize()
	g.Add(cam, scene.NoNode)

	floorMat := scene.DefaultMaterial()
	floorMat.Diffuse = mgl32.Vec3{0.8, 0.8, 0.8}
	floorMat.SetTexture(scene.DiffuseTexture, scene.BufferTexture("checker", checker(256, 32)))
	g.Add(scene.NewMesh("floor", scene.Plane(40, 40), floorMat), scene.NoNode)

	boxMat := scene.DefaultMaterial()
	if textureDir != "" {
		path := filepath.Join(textureDir, "diffuse.png")
		if _, err := os.Stat(path); err == nil {
			boxMat.SetTexture(scene.DiffuseTexture, scene.FileTexture(path))
		}
	}

	spinner := scene.NewMesh("spinner", scene.Box(mgl32.Vec3{1.5, 1.5, 1.5}), boxMat)
	spinner.Position = mgl32.Vec3{0, 1, 0}
	g.Add(spinner, scene.NoNode)

	small := scene.NewMesh("small-box", scene.Box(mgl32.Vec3{0.4, 0.4, 0.4}), boxMat)
	small.Position = mgl32.Vec3{0, -100, 0}
	tmpl := g.Add(small, scene.NoNode)
	for i := 0; i < grid; i++ {
		for j := 0; j < grid; j++ {
			inst := scene.NewInstance("small-box", tmpl)
			x := float32(i) - float32(grid-1)/2
			z := float32(j) - float32(grid-1)/2
			inst.Position = mgl32.Vec3{x * 1.5, 0.2, z*1.5 - 6}
			g.Add(inst, scene.NoNode)
		}
	}

	for i, c := range []mgl32.Vec3{{1, 0.9, 0.8}, {0.4, 0.5, 1}} {
		l := scene.NewPointLight("light", c, 3)
		a := float64(i) * math.Pi
		l.Position = mgl32.Vec3{float32(4 * math.Cos(a)), 3, float32(4 * math.Sin(a))}
		l.Light.Linear, l.Light.Quadratic = 0.09, 0.032
		g.Add(l, scene.NoNode)
	}
	return g, spinner
}

func checker(size, cell int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.RGBA{60, 60, 60, 255}
			if (x/cell+y/cell)%2 == 0 {
				c = color.RGBA{200, 200, 200, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

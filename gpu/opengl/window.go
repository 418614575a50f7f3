// Package opengl implements the gpu.Device call list on OpenGL 4.1 core
// and provides the GLFW window that owns the context.
package opengl

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"go.uber.org/zap"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

var loggerPtr atomic.Pointer[zap.Logger]

// SetLogger sets the logger used for GL diagnostics. Pass nil to silence it.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	loggerPtr.Store(l)
}

func logger() *zap.Logger {
	if l := loggerPtr.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// Window is a GLFW window owning the current OpenGL context.
type Window struct {
	*glfw.Window

	fullscreen bool
	// windowed geometry restored when leaving fullscreen
	x, y, width, height int
}

// NewWindow creates a window and makes its OpenGL 4.1 core context current.
// When visible is false the window is hidden, which is useful for offscreen
// rendering.
func NewWindow(width, height int, title string, visible bool) (*Window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw.Init: %v", err)
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	if !visible {
		glfw.WindowHint(glfw.Visible, glfw.False)
	}
	w, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("CreateWindow(%v,%v): %v", width, height, err)
	}
	w.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("gl.Init: %v", err)
	}

	version := gl.GoStr(gl.GetString(gl.VERSION))
	logger().Info("OpenGL context created", zap.String("version", version))

	return &Window{Window: w, width: width, height: height}, nil
}

// FramebufferSize returns the size of the default framebuffer in pixels.
func (w *Window) FramebufferSize() (int, int) {
	return w.GetFramebufferSize()
}

// Fullscreen reports whether the window currently covers the primary monitor.
func (w *Window) Fullscreen() bool { return w.fullscreen }

// SetFullscreen moves the window to the primary monitor, or back to its
// previous windowed geometry. Must be called between frames.
func (w *Window) SetFullscreen(on bool) {
	if on == w.fullscreen {
		return
	}
	if on {
		w.x, w.y = w.GetPos()
		w.width, w.height = w.GetSize()
		monitor := glfw.GetPrimaryMonitor()
		mode := monitor.GetVideoMode()
		w.SetMonitor(monitor, 0, 0, mode.Width, mode.Height, mode.RefreshRate)
	} else {
		w.SetMonitor(nil, w.x, w.y, w.width, w.height, glfw.DontCare)
	}
	w.fullscreen = on
	logger().Debug("fullscreen toggled", zap.Bool("fullscreen", on))
}

// Present swaps buffers and processes pending window events.
func (w *Window) Present() {
	w.SwapBuffers()
	glfw.PollEvents()
}

// Close destroys the window and terminates GLFW.
func (w *Window) Close() {
	if w.Window != nil {
		w.Destroy()
		w.Window = nil
	}
	glfw.Terminate()
}

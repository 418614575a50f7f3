package deferred

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/gmlewis/deferred/gpu"
)

// Names of the built-in shader sets.
const (
	DefaultDeferred          = "DefaultDeferred"
	DefaultDeferredInstanced = "DefaultDeferredInstanced"
	DeferredLighting         = "DeferredLighting"
	HDRTonemap               = "HDRTonemap"
	Combiner                 = "Combiner"
)

// requiredShaders must compile for a renderer to be created.
var requiredShaders = []string{
	DefaultDeferred,
	DefaultDeferredInstanced,
	DeferredLighting,
	HDRTonemap,
	Combiner,
}

//go:embed shaders/*.vert shaders/*.frag
var embedded embed.FS

// ShaderLibrary compiles named shader sets. A set is the pair
// <name>.vert and <name>.frag; a set without a vertex stage uses
// DefaultDeferred.vert. Sources are looked up in the user file system
// first, then in the built-in sets.
type ShaderLibrary struct {
	dev     gpu.Device
	sources []fs.FS

	programs map[string]gpu.Handle
	failed   map[string]error
}

// NewShaderLibrary returns a library reading user overrides from fsys,
// which may be nil.
func NewShaderLibrary(dev gpu.Device, fsys fs.FS) *ShaderLibrary {
	builtin, err := fs.Sub(embedded, "shaders")
	if err != nil {
		panic(err)
	}
	l := &ShaderLibrary{
		dev:      dev,
		programs: map[string]gpu.Handle{},
		failed:   map[string]error{},
	}
	if fsys != nil {
		l.sources = append(l.sources, fsys)
	}
	l.sources = append(l.sources, builtin)
	return l
}

// Program returns the compiled program of the named set. Results, including
// failures, are cached.
func (l *ShaderLibrary) Program(name string) (gpu.Handle, error) {
	if p, ok := l.programs[name]; ok {
		return p, nil
	}
	if err, ok := l.failed[name]; ok {
		return gpu.NoHandle, err
	}
	p, err := l.compile(name)
	if err != nil {
		err = fmt.Errorf("shader set %q: %w", name, err)
		l.failed[name] = err
		return gpu.NoHandle, err
	}
	l.programs[name] = p
	return p, nil
}

func (l *ShaderLibrary) compile(name string) (gpu.Handle, error) {
	frag, err := l.read(name + ".frag")
	if err != nil {
		return gpu.NoHandle, err
	}
	vert, err := l.read(name + ".vert")
	if errors.Is(err, fs.ErrNotExist) {
		vert, err = l.read(DefaultDeferred + ".vert")
	}
	if err != nil {
		return gpu.NoHandle, err
	}
	return l.dev.CompileProgram(vert, frag)
}

func (l *ShaderLibrary) read(file string) (string, error) {
	for _, fsys := range l.sources {
		b, err := fs.ReadFile(fsys, file)
		if err == nil {
			return string(b), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("%v: %w", file, fs.ErrNotExist)
}

func (l *ShaderLibrary) release() {
	for name, p := range l.programs {
		l.dev.DeleteProgram(p)
		delete(l.programs, name)
	}
}

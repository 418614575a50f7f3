// Package settings is a flat key/value store of typed renderer settings
// with defaults. Writes are last-write-wins.
package settings

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

// Keys read by the renderer.
const (
	SSAOActive            = "ssao.Active"
	SSAORadius            = "ssao.Radius"
	SSAODistanceThreshold = "ssao.DistanceThreshold"
	SSAOAlgorithm         = "ssao.Algorithm"

	VRActive     = "vr.Active"
	VRAnaglyph   = "vr.DoAnaglyph"
	VRIPD        = "vr.IPD"
	VREyeDivisor = "vr.EyeDivisor"

	HDRActive   = "hdr.Active"
	HDRExposure = "hdr.Exposure"
	HDRGamma    = "hdr.Gamma"

	WantsFullscreen = "renderer.WantsFullscreen"
	IsFullscreen    = "renderer.IsFullscreen"

	DebugBuffers = "debug.DebugDeferredBuffers"
)

// Defaults returns the default value of every known key.
func Defaults() map[string]any {
	return map[string]any{
		SSAOActive:            false,
		SSAORadius:            float32(0.1),
		SSAODistanceThreshold: float32(5.0),
		SSAOAlgorithm:         1,

		VRActive:     false,
		VRAnaglyph:   false,
		VRIPD:        float32(0.05),
		VREyeDivisor: 2,

		HDRActive:   true,
		HDRExposure: float32(1.0),
		HDRGamma:    float32(2.2),

		WantsFullscreen: false,
		IsFullscreen:    false,

		DebugBuffers: false,
	}
}

// Store holds settings values.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// New returns a store populated with Defaults.
func New() *Store {
	return &Store{values: Defaults()}
}

// Get returns the value of key as T. Missing keys and values of another type
// yield the zero value of T.
func Get[T any](s *Store, key string) T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, _ := s.values[key].(T)
	return v
}

// Lookup returns the raw value of key.
func (s *Store) Lookup(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key. A key that already exists keeps its type:
// setting a value of a different type is an error.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.values[key]; ok {
		if err := sameType(key, old, value); err != nil {
			return err
		}
	}
	s.values[key] = value
	return nil
}

// Toggle flips a boolean setting and returns the new value.
func (s *Store) Toggle(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key].(bool)
	if !ok {
		return false, fmt.Errorf("settings: %v is not a boolean", key)
	}
	s.values[key] = !v
	return !v, nil
}

// Keys returns all keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Bool, Int, Float and Vec3 are shorthands for Get.
func (s *Store) Bool(key string) bool       { return Get[bool](s, key) }
func (s *Store) Int(key string) int         { return Get[int](s, key) }
func (s *Store) Float(key string) float32   { return Get[float32](s, key) }
func (s *Store) Vec3(key string) mgl32.Vec3 { return Get[mgl32.Vec3](s, key) }

func sameType(key string, old, value any) error {
	if fmt.Sprintf("%T", old) != fmt.Sprintf("%T", value) {
		return fmt.Errorf("settings: %v holds %T, cannot set %T", key, old, value)
	}
	return nil
}

// Load reads a flat YAML mapping of keys to values from path and applies it
// on top of the current values. Values of known keys are converted to the
// type of their default.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("settings.Load: %w", err)
	}
	return s.Parse(data)
}

// Parse applies YAML-encoded settings, see Load.
func (s *Store) Parse(data []byte) error {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := raw[k]
		if old, ok := s.Lookup(k); ok {
			cv, err := convert(old, v)
			if err != nil {
				return fmt.Errorf("settings: %v: %w", k, err)
			}
			v = cv
		}
		if err := s.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}

func convert(like, v any) (any, error) {
	switch like.(type) {
	case bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case int:
		switch n := v.(type) {
		case int:
			return n, nil
		case float64:
			if n == float64(int(n)) {
				return int(n), nil
			}
		}
	case float32:
		switch n := v.(type) {
		case int:
			return float32(n), nil
		case float64:
			return float32(n), nil
		}
	case mgl32.Vec3:
		if seq, ok := v.([]any); ok && len(seq) == 3 {
			var out mgl32.Vec3
			for i, e := range seq {
				f, err := convert(float32(0), e)
				if err != nil {
					return nil, err
				}
				out[i] = f.(float32)
			}
			return out, nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("cannot use %v (%T) as %T", v, v, like)
}

package deferred

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/gmlewis/deferred/gpu"
	"github.com/gmlewis/deferred/scene"
)

// Binder pushes uniform values to the program in use.
type Binder struct {
	dev  gpu.Device
	warn *onceLog

	program   gpu.Handle
	locations map[gpu.Handle]map[string]int32
	schemas   map[string][]propertySlot
}

// propertySlot is one entry of a variant's cached property schema.
type propertySlot struct {
	name      string
	typ       scene.PropertyType
	supported bool
}

// NewBinder returns a binder issuing calls on dev.
func NewBinder(dev gpu.Device, log *zap.Logger) *Binder {
	return newBinder(dev, newOnceLog(log))
}

func newBinder(dev gpu.Device, warn *onceLog) *Binder {
	return &Binder{
		dev:       dev,
		warn:      warn,
		locations: map[gpu.Handle]map[string]int32{},
		schemas:   map[string][]propertySlot{},
	}
}

// Use makes program current.
func (b *Binder) Use(program gpu.Handle) {
	b.dev.UseProgram(program)
	b.program = program
}

// Program returns the program in use.
func (b *Binder) Program() gpu.Handle { return b.program }

func (b *Binder) location(name string) int32 {
	locs, ok := b.locations[b.program]
	if !ok {
		locs = map[string]int32{}
		b.locations[b.program] = locs
	}
	loc, ok := locs[name]
	if !ok {
		loc = b.dev.UniformLocation(b.program, name)
		locs[name] = loc
	}
	return loc
}

// SetUniform sets the named uniform of the program in use. Names the
// program does not use are ignored.
func (b *Binder) SetUniform(name string, value any) error {
	loc := b.location(name)
	switch v := value.(type) {
	case int:
		b.dev.Uniform1i(loc, int32(v))
	case int32:
		b.dev.Uniform1i(loc, v)
	case bool:
		var i int32
		if v {
			i = 1
		}
		b.dev.Uniform1i(loc, i)
	case float32:
		b.dev.Uniform1f(loc, v)
	case float64:
		b.dev.Uniform1f(loc, float32(v))
	case mgl32.Vec2:
		b.dev.Uniform2f(loc, v)
	case mgl32.Vec3:
		b.dev.Uniform3f(loc, v)
	case mgl32.Vec4:
		b.dev.Uniform4f(loc, v)
	case mgl32.Mat3:
		b.dev.UniformMatrix3(loc, v)
	case mgl32.Mat4:
		b.dev.UniformMatrix4(loc, v)
	default:
		return fmt.Errorf("uniform %q: unsupported type %T", name, value)
	}
	return nil
}

func (b *Binder) set(name string, value any) {
	if err := b.SetUniform(name, value); err != nil {
		b.warn.Warn("uniform:"+name, "uniform not set", zap.Error(err))
	}
}

// Transforms pushes the per-node matrices.
func (b *Binder) Transforms(t Transforms, billboard bool) {
	b.set("ModelMatrix", t.Model)
	b.set("ModelViewMatrix", t.ModelView)
	b.set("ProjectionMatrix", t.Projection)
	b.set("MVP", t.MVP)
	b.set("isBillboard", billboard)
}

// Material pushes material colors, or the node position as color when n
// has no material, and binds the texture slots of st starting at unit 0.
// Empty slots get fallback.
func (b *Binder) Material(n *scene.Node, m *scene.Material, st *ObjectState, fallback gpu.Handle) {
	if m != nil {
		b.set("Material.Ka", m.Ambient)
		b.set("Material.Kd", m.Diffuse)
		b.set("Material.Ks", m.Specular)
	} else {
		pos := n.WorldPosition()
		b.set("Material.Ka", pos)
		b.set("Material.Kd", pos)
		b.set("Material.Ks", pos)
	}

	var mask int32
	for i, t := range textureSlots {
		tex, ok := st.Textures[t]
		if ok {
			mask |= 1 << i
		} else {
			tex = fallback
		}
		b.dev.BindTexture(i, tex)
		b.set(fmt.Sprintf("ObjectTextures[%d]", i), int32(i))
	}
	b.set("materialType", mask)
}

// Properties pushes the custom shader properties of n. The property schema
// is resolved on the first node of each Variant and reused afterwards;
// entries of unsupported type are logged once and skipped.
func (b *Binder) Properties(n *scene.Node) {
	if n.Properties == nil {
		return
	}
	props := n.Properties.ShaderProperties()
	schema, ok := b.schemas[n.Variant]
	if !ok {
		schema = make([]propertySlot, len(props))
		for i, p := range props {
			schema[i] = propertySlot{name: p.Name, typ: p.Type, supported: supportedProperty(p)}
			if !schema[i].supported {
				b.warn.Warn("property:"+n.Variant+"."+p.Name, "unsupported shader property type",
					zap.String("variant", n.Variant), zap.String("property", p.Name), zap.String("type", fmt.Sprintf("%T", p.Value)))
			}
		}
		b.schemas[n.Variant] = schema
	}
	if len(props) != len(schema) {
		b.warn.Warn("schema:"+n.Variant, "shader properties do not match the variant schema",
			zap.String("node", n.Name), zap.String("variant", n.Variant))
	}
	for i, slot := range schema {
		if !slot.supported || i >= len(props) {
			continue
		}
		b.set(slot.name, props[i].Value)
	}
}

func supportedProperty(p scene.ShaderProperty) bool {
	var ok bool
	switch p.Type {
	case scene.PropertyInt:
		switch p.Value.(type) {
		case int, int32:
			ok = true
		}
	case scene.PropertyBool:
		_, ok = p.Value.(bool)
	case scene.PropertyFloat:
		switch p.Value.(type) {
		case float32, float64:
			ok = true
		}
	case scene.PropertyVec2:
		_, ok = p.Value.(mgl32.Vec2)
	case scene.PropertyVec3:
		_, ok = p.Value.(mgl32.Vec3)
	case scene.PropertyVec4:
		_, ok = p.Value.(mgl32.Vec4)
	case scene.PropertyMat3:
		_, ok = p.Value.(mgl32.Mat3)
	case scene.PropertyMat4:
		_, ok = p.Value.(mgl32.Mat4)
	}
	return ok
}

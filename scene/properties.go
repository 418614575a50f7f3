package scene

// PropertyType tags the value of a shader property.
type PropertyType byte

const (
	PropertyInt PropertyType = iota
	PropertyBool
	PropertyFloat
	PropertyVec2
	PropertyVec3
	PropertyVec4
	PropertyMat3
	PropertyMat4
	// PropertyOther marks values the renderer cannot push to a shader.
	PropertyOther
)

// ShaderProperty is a named value a node exposes to its shader.
type ShaderProperty struct {
	Name  string
	Type  PropertyType
	Value any
}

// PropertySource is implemented by node variants exposing custom shader
// properties. The names and types it returns must be the same, in the same
// order, for every node of one Variant; only the values may change.
type PropertySource interface {
	ShaderProperties() []ShaderProperty
}

// PropertyFunc adapts a function to a PropertySource.
type PropertyFunc func() []ShaderProperty

func (f PropertyFunc) ShaderProperties() []ShaderProperty { return f() }

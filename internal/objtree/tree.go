// Package objtree implements the ObjectTreeCompiler: it consumes an
// already-parsed declarative object tree (the source parser is an
// external collaborator per spec.md §1), validates it, synthesizes
// per-instance meta-descriptors via MetaBuilder, and emits a linear
// instruction stream consumed by an object-construction VM.
package objtree

// PropertyType identifies a declared property's static type, per
// spec.md §4.9's literal-assignment rule table.
type PropertyType int

const (
	TypeInvalid PropertyType = iota
	TypeBool
	TypeInt
	TypeUInt
	TypeReal
	TypeString
	TypeUrl
	TypeByteArray
	TypeStringList
	TypeUrlList
	TypeColor
	TypeDate
	TypeTime
	TypeDateTime
	TypePoint
	TypePointF
	TypeSize
	TypeSizeF
	TypeRect
	TypeRectF
	TypeVector3D
	TypeVector4D
	TypeEnum
	TypeVariant
	TypeObject
	TypeList
	TypeRegExp
	TypeAlias
)

// ValueKind classifies what shape a PropertyValue carries.
type ValueKind int

const (
	ValueLiteral ValueKind = iota
	ValueObject
	ValueBinding
	ValueSignalHandler
	ValueScriptString
)

// Literal is a parsed literal value attached to a PropertyValue of
// kind ValueLiteral.
type Literal struct {
	IsString bool
	String   string

	IsNumber bool
	Number   float64

	IsBool bool
	Bool   bool

	// QualifiedEnum holds a "<Type>.<Enumerator>" reference, resolved
	// against the import table during literal coercion.
	QualifiedEnum string
}

// PropertyValue is one value assigned to a property: either a literal,
// a nested object (for object/list-typed properties), a binding
// expression, a signal handler script, or a script-string property.
type PropertyValue struct {
	Kind ValueKind

	Literal Literal
	Object  *Node
	Script  string

	Line, Column int
}

// PropertyAssignment is one `name: value[, value...]` assignment found
// on an object in the source tree. Multiple Values means a list
// property literal (§4.9's "List properties accept multiple object
// literals").
type PropertyAssignment struct {
	Name         string
	Line, Column int
	Values       []*PropertyValue

	// IsAttached is true for "Type.property: value" attached-property
	// syntax; AttachedType names Type.
	IsAttached   bool
	AttachedType string

	// GroupPath holds the dotted path for a grouped-property
	// assignment ("anchors.left: ...") — empty for a plain property.
	GroupPath []string
}

// DynamicPropertyDecl is a `property <type> <name>[: default]` or
// `property alias <name>: <id>[.<prop>[.<subProp>]]` declaration.
type DynamicPropertyDecl struct {
	Name         string
	Type         PropertyType
	IsAlias      bool
	AliasExpr    string
	Default      *PropertyValue
	Line, Column int
}

// SignalDecl is a `signal <name>(<params>)` declaration.
type SignalDecl struct {
	Name         string
	Params       []PropertyType
	Line, Column int
}

// MethodDecl is a `function <name>(<params>) { ... }` declaration.
type MethodDecl struct {
	Name         string
	Params       []PropertyType
	Body         string
	Line, Column int
}

// Node is one object literal in the parsed tree.
type Node struct {
	TypeName     string
	Line, Column int

	Id string // declared `id: foo`, empty if none

	Properties        []*PropertyAssignment
	DynamicProperties []*DynamicPropertyDecl
	Signals           []*SignalDecl
	Methods           []*MethodDecl

	// DefaultChildren holds object literals assigned to the type's
	// default property (bare child objects with no property name).
	DefaultChildren []*Node

	// IsComponent marks the "Component" pseudo-element (spec.md §6
	// glossary): its body is a deferred, re-instantiable sub-tree.
	IsComponent bool

	// Deferred marks a property assignment deferred via
	// `Component.onCompleted`-style deferred execution (spec.md §4.9
	// step 6 / SPEC_FULL.md deferred-properties feature). Carried at
	// the node level because only whole sub-objects are deferred.
	// ObjectTreeCompiler does not read this field: a Deferred node is
	// compiled like any other, with no Defer/DeferInit/Done region.
	Deferred bool

	// synthesized is true for nodes inserted by wrapInComponent; it is
	// not part of the input tree, only compiler output bookkeeping.
	synthesized bool
}

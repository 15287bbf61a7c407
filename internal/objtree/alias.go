package objtree

import (
	"fmt"
	"strings"
)

// valueTypeSubIndex maps a grouped/value-type property's sub-property
// name to its packed sub-index, per spec.md §4.10's EncodedPropIdx
// layout. Only the value types with named sub-properties appear here;
// others cannot be the target of a three-segment alias.
var valueTypeSubIndex = map[PropertyType]map[string]int{
	TypePoint:  {"x": 0, "y": 1},
	TypePointF: {"x": 0, "y": 1},
	TypeSize:   {"width": 0, "height": 1},
	TypeSizeF:  {"width": 0, "height": 1},
	TypeRect:   {"x": 0, "y": 1, "width": 2, "height": 3},
	TypeRectF:  {"x": 0, "y": 1, "width": 2, "height": 3},
}

// valueTypeElementType gives the scalar type of a grouped/value-type
// property's named sub-properties (all of them share one element
// type: integral for Point/Size/Rect, real for their F-suffixed
// counterparts), used to coerce a grouped-property literal.
var valueTypeElementType = map[PropertyType]PropertyType{
	TypePoint:  TypeInt,
	TypePointF: TypeReal,
	TypeSize:   TypeInt,
	TypeSizeF:  TypeReal,
	TypeRect:   TypeInt,
	TypeRectF:  TypeReal,
}

// AliasTarget is a parsed `<id>[.<property>[.<subProperty>]]` alias
// expression, per spec.md §4.9 step 5.
type AliasTarget struct {
	ID          string
	Property    string
	SubProperty string
}

// ParseAliasExpr splits an alias expression into its id/property/
// sub-property components.
func ParseAliasExpr(expr string) (AliasTarget, error) {
	parts := strings.Split(strings.TrimSpace(expr), ".")
	switch len(parts) {
	case 0:
		return AliasTarget{}, fmt.Errorf("empty alias expression")
	case 1:
		return AliasTarget{ID: parts[0]}, nil
	case 2:
		return AliasTarget{ID: parts[0], Property: parts[1]}, nil
	case 3:
		return AliasTarget{ID: parts[0], Property: parts[1], SubProperty: parts[2]}, nil
	default:
		return AliasTarget{}, fmt.Errorf("alias expression %q has too many segments", expr)
	}
}

// ObjectRecord is one compiled object: its declared id (if any), its
// resolved type, and the meta-object being synthesized for it. The
// compiler builds one per object in tree-walk order.
type ObjectRecord struct {
	Node *Node
	Type TypeInfo
	Meta *MetaBuilder

	// PropertyIndex maps a declared property's name to its index in
	// Meta's property table, recorded as properties are added during
	// meta synthesis (spec.md §4.9 step 3).
	PropertyIndex map[string]int

	// AliasDecls holds this object's own `property alias` declarations,
	// to be resolved once every id in the component is known.
	AliasDecls []*DynamicPropertyDecl

	// Cache is the resulting property cache: one entry per declared
	// property (built-in or dynamic), with IsAlias set by alias
	// resolution for alias-typed properties.
	Cache []PropertyCacheEntry
}

// PropertyCacheEntry is one slot of an object's property cache, per
// spec.md §4.9 step 5's "mark referencing properties as aliases in the
// resulting property cache."
type PropertyCacheEntry struct {
	Name    string
	IsAlias bool
}

// AliasResolver runs the component-wide alias-resolution pass after
// every object has been visited and every id recorded, per spec.md
// §4.9 step 5 and §5's ordering guarantee ("ids are numbered in
// tree-walk order").
type AliasResolver struct {
	byID  map[string]*ObjectRecord
	order []string
}

// NewAliasResolver returns an empty resolver.
func NewAliasResolver() *AliasResolver {
	return &AliasResolver{byID: make(map[string]*ObjectRecord)}
}

// RegisterID records obj under id in tree-walk order and returns its
// id index (the TargetID an AliasRecord references).
func (r *AliasResolver) RegisterID(id string, obj *ObjectRecord) int {
	idx := len(r.order)
	r.order = append(r.order, id)
	r.byID[id] = obj
	return idx
}

// idIndex returns id's tree-walk-order index, or -1 if unregistered.
func (r *AliasResolver) idIndex(id string) int {
	for i, s := range r.order {
		if s == id {
			return i
		}
	}
	return -1
}

// ResolveAll resolves every registered object's pending alias
// declarations. It must run only after every id in the component has
// been registered (spec.md §5's ordering guarantee).
func (r *AliasResolver) ResolveAll() error {
	for _, id := range r.order {
		obj := r.byID[id]
		for _, decl := range obj.AliasDecls {
			if err := r.resolveOne(obj, decl); err != nil {
				return fmt.Errorf("alias %q: %w", decl.Name, err)
			}
		}
	}
	return nil
}

func (r *AliasResolver) resolveOne(obj *ObjectRecord, decl *DynamicPropertyDecl) error {
	target, err := ParseAliasExpr(decl.AliasExpr)
	if err != nil {
		return err
	}
	targetIdx := r.idIndex(target.ID)
	if targetIdx < 0 {
		return fmt.Errorf("alias target not found: id %q is not in scope", target.ID)
	}
	targetObj := r.byID[target.ID]

	var encoded uint32
	var flags AliasFlag
	if target.Property == "" {
		// Whole-object alias: targets the object itself, not one of
		// its properties.
		encoded = EncodePropIdx(-1, 0, 0)
		flags = AliasWritable
	} else {
		propIdx, ok := targetObj.PropertyIndex[target.Property]
		if !ok {
			return fmt.Errorf("alias target not found: %q has no property %q", target.ID, target.Property)
		}
		rec := targetObj.Meta.Properties()[propIdx]
		if rec.Flags&PropWritable != 0 {
			flags |= AliasWritable
		}
		if rec.Flags&PropResettable != 0 {
			flags |= AliasResettable
		}

		if target.SubProperty == "" {
			encoded = EncodePropIdx(propIdx, 0, 0)
		} else {
			subTable, ok := valueTypeSubIndex[rec.Type]
			if !ok {
				return fmt.Errorf("property %q is not a value type with named sub-properties", target.Property)
			}
			subIdx, ok := subTable[target.SubProperty]
			if !ok {
				return fmt.Errorf("value type has no sub-property %q", target.SubProperty)
			}
			encoded = EncodePropIdx(propIdx, int(rec.Type), subIdx)
		}
	}

	obj.Meta.AddAlias(targetIdx, encoded, flags)
	for i := range obj.Cache {
		if obj.Cache[i].Name == decl.Name {
			obj.Cache[i].IsAlias = true
		}
	}
	return nil
}

package objtree

import "testing"

func itemType() TypeInfo {
	return TypeInfo{
		Name:      "Item",
		Native:    true,
		Creatable: true,
		Properties: map[string]PropertyType{
			"data": TypeList,
		},
		Final:           map[string]bool{},
		DefaultProperty: "data",
	}
}

func fooType() TypeInfo {
	return TypeInfo{
		Name:      "Foo",
		Native:    true,
		Creatable: true,
		Properties: map[string]PropertyType{
			"orientation": TypeInt,
		},
		Final: map[string]bool{},
	}
}

// itemWithPosType is itemType plus a PointF-typed "pos" property, for
// grouped-property assignment tests ("pos.x: ...").
func itemWithPosType() TypeInfo {
	ti := itemType()
	ti.Properties = map[string]PropertyType{
		"data": TypeList,
		"pos":  TypePointF,
	}
	return ti
}

// layoutAttachedType is a small attached-property namespace, for
// attached-property assignment tests ("Layout.margin: ...").
func layoutAttachedType() TypeInfo {
	return TypeInfo{
		Name: "Layout",
		Properties: map[string]PropertyType{
			"margin": TypeInt,
		},
		PropertyIndex: map[string]int{
			"margin": 0,
		},
	}
}

// TestCompileAliasComponent covers seed scenario S5: a component with
// an alias must emit exactly two synthesized meta-objects, one alias
// entry targeting child.x through id index 1, and the root property
// cache must flag the x slot as an alias.
func TestCompileAliasComponent(t *testing.T) {
	types := NewStaticTypeTable()
	types.Types["Item"] = itemType()

	child := &Node{
		TypeName: "Item", Line: 3, Column: 1, Id: "child",
		DynamicProperties: []*DynamicPropertyDecl{
			{Name: "x", Type: TypeInt, Default: &PropertyValue{Kind: ValueLiteral, Literal: Literal{IsNumber: true, Number: 7}}},
		},
	}
	root := &Node{
		TypeName: "Item", Line: 1, Column: 1, Id: "root",
		DynamicProperties: []*DynamicPropertyDecl{
			{Name: "x", IsAlias: true, AliasExpr: "child.x"},
		},
		DefaultChildren: []*Node{child},
	}

	c := NewObjectTreeCompiler("test.qml", types)
	unit, errs := c.Compile(root)
	if len(errs) > 0 {
		t.Fatalf("Compile errors: %v", errs)
	}

	metaCount := 0
	for _, in := range unit.Instructions {
		if in.Op == OpStoreMetaObject {
			metaCount++
		}
	}
	if metaCount != 2 {
		t.Errorf("synthesized meta-object count = %d, want 2", metaCount)
	}

	cache := unit.PropertyCaches[unit.RootPropertyCache]
	found := false
	for _, e := range cache {
		if e.Name == "x" {
			found = true
			if !e.IsAlias {
				t.Errorf("root's x property cache entry not flagged IsAlias")
			}
		}
	}
	if !found {
		t.Fatalf("root's property cache has no x entry: %+v", cache)
	}
}

// TestCompileQualifiedEnum covers seed scenario S6: `orientation:
// Qt.Horizontal` with Qt.Horizontal==1 emits a StoreInteger with
// value 1.
func TestCompileQualifiedEnum(t *testing.T) {
	types := NewStaticTypeTable()
	types.Types["Foo"] = fooType()
	types.Enums["Qt.Horizontal"] = 1

	root := &Node{
		TypeName: "Foo", Line: 1, Column: 1,
		Properties: []*PropertyAssignment{
			{
				Name: "orientation", Line: 1, Column: 10,
				Values: []*PropertyValue{{Kind: ValueLiteral, Literal: Literal{QualifiedEnum: "Qt.Horizontal"}}},
			},
		},
	}

	c := NewObjectTreeCompiler("test.qml", types)
	unit, errs := c.Compile(root)
	if len(errs) > 0 {
		t.Fatalf("Compile errors: %v", errs)
	}

	found := false
	for _, in := range unit.Instructions {
		if in.Op == OpStoreInteger && in.Args[1] == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("no StoreInteger{value: 1} instruction emitted for the qualified enum assignment")
	}
}

// TestCompileGroupedProperty covers a "pos.x: 5.5" grouped/value-type
// property assignment: it must fetch the value-type slot, store the
// literal at the sub-property's packed index, and pop the slot.
func TestCompileGroupedProperty(t *testing.T) {
	types := NewStaticTypeTable()
	types.Types["Item"] = itemWithPosType()

	root := &Node{
		TypeName: "Item", Line: 1, Column: 1,
		Properties: []*PropertyAssignment{
			{
				Name: "x", GroupPath: []string{"pos"}, Line: 1, Column: 5,
				Values: []*PropertyValue{{Kind: ValueLiteral, Literal: Literal{IsNumber: true, Number: 5.5}}},
			},
		},
	}

	c := NewObjectTreeCompiler("test.qml", types)
	unit, errs := c.Compile(root)
	if len(errs) > 0 {
		t.Fatalf("Compile errors: %v", errs)
	}

	var sawFetch, sawStore, sawPop bool
	for _, in := range unit.Instructions {
		switch in.Op {
		case OpFetchValueType:
			sawFetch = true
		case OpStoreDouble:
			sawStore = true
			if in.Args[0] != 0 {
				t.Errorf("StoreDouble sub-index = %d, want 0 (pos.x)", in.Args[0])
			}
		case OpPopValueType:
			sawPop = true
		}
	}
	if !sawFetch || !sawStore || !sawPop {
		t.Fatalf("expected FetchValueType/StoreDouble/PopValueType, got %+v", unit.Instructions)
	}
}

// TestCompileAttachedProperty covers a "Layout.margin: 5" attached
// property assignment: it must fetch the attached object, store the
// literal at the host-assigned index, and pop the fetched object.
func TestCompileAttachedProperty(t *testing.T) {
	types := NewStaticTypeTable()
	types.Types["Item"] = itemType()
	types.AttachedTypes["Layout"] = layoutAttachedType()

	root := &Node{
		TypeName: "Item", Line: 1, Column: 1,
		Properties: []*PropertyAssignment{
			{
				Name: "margin", IsAttached: true, AttachedType: "Layout", Line: 1, Column: 5,
				Values: []*PropertyValue{{Kind: ValueLiteral, Literal: Literal{IsNumber: true, Number: 5}}},
			},
		},
	}

	c := NewObjectTreeCompiler("test.qml", types)
	unit, errs := c.Compile(root)
	if len(errs) > 0 {
		t.Fatalf("Compile errors: %v", errs)
	}

	var sawFetch, sawStore, sawPop bool
	for _, in := range unit.Instructions {
		switch in.Op {
		case OpFetchAttached:
			sawFetch = true
		case OpStoreInteger:
			sawStore = true
			if in.Args[0] != 0 || in.Args[1] != 5 {
				t.Errorf("StoreInteger args = %v, want [0 5]", in.Args)
			}
		case OpPopFetchedObject:
			sawPop = true
		}
	}
	if !sawFetch || !sawStore || !sawPop {
		t.Fatalf("expected FetchAttached/StoreInteger/PopFetchedObject, got %+v", unit.Instructions)
	}
}

// TestCompileDuplicateIDFails covers seed scenario S8.
func TestCompileDuplicateIDFails(t *testing.T) {
	types := NewStaticTypeTable()
	types.Types["Item"] = itemType()

	child1 := &Node{TypeName: "Item", Line: 2, Column: 3, Id: "dup"}
	child2 := &Node{TypeName: "Item", Line: 3, Column: 3, Id: "dup"}
	root := &Node{
		TypeName:        "Item",
		Line:            1,
		Column:          1,
		Id:              "dup",
		DefaultChildren: []*Node{child1, child2},
	}

	c := NewObjectTreeCompiler("test.qml", types)
	_, errs := c.Compile(root)
	if len(errs) == 0 {
		t.Fatal("expected a compile error for duplicate ids")
	}
	// root claims "dup" first, so each child reports its own duplicate
	// at its own location.
	want := [][2]int{{2, 3}, {3, 3}}
	var got [][2]int
	for _, e := range errs {
		if e.Message == "id is not unique" {
			got = append(got, [2]int{e.Line, e.Column})
		}
	}
	if len(got) == 0 {
		t.Errorf("no \"id is not unique\" error in %v", errs)
	} else if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("\"id is not unique\" error locations = %v, want %v", got, want)
	}
}

func TestCompileInvalidIDFails(t *testing.T) {
	types := NewStaticTypeTable()
	types.Types["Item"] = itemType()
	root := &Node{TypeName: "Item", Line: 1, Column: 1, Id: "Invalid"}

	c := NewObjectTreeCompiler("test.qml", types)
	_, errs := c.Compile(root)
	if len(errs) == 0 {
		t.Fatal("expected a compile error for an id starting with an uppercase letter")
	}
}

func TestCompileUnknownTypeFails(t *testing.T) {
	types := NewStaticTypeTable()
	root := &Node{TypeName: "Nonexistent", Line: 1, Column: 1}

	c := NewObjectTreeCompiler("test.qml", types)
	_, errs := c.Compile(root)
	if len(errs) == 0 {
		t.Fatal("expected a compile error for an unresolvable type")
	}
}

// TestCompileDeterminism covers seed scenario S9 end to end: compiling
// the same tree twice yields byte-identical instruction streams.
func TestCompileDeterminism(t *testing.T) {
	types := NewStaticTypeTable()
	types.Types["Item"] = itemType()
	build := func() *Node {
		return &Node{
			TypeName: "Item", Line: 1, Column: 1, Id: "root",
			DynamicProperties: []*DynamicPropertyDecl{
				{Name: "count", Type: TypeInt, Default: &PropertyValue{Kind: ValueLiteral, Literal: Literal{IsNumber: true, Number: 3}}},
			},
		}
	}

	c1 := NewObjectTreeCompiler("test.qml", types)
	u1, errs1 := c1.Compile(build())
	if len(errs1) > 0 {
		t.Fatalf("Compile errors: %v", errs1)
	}
	c2 := NewObjectTreeCompiler("test.qml", types)
	u2, errs2 := c2.Compile(build())
	if len(errs2) > 0 {
		t.Fatalf("Compile errors: %v", errs2)
	}

	if len(u1.Instructions) != len(u2.Instructions) {
		t.Fatalf("instruction counts differ: %d vs %d", len(u1.Instructions), len(u2.Instructions))
	}
	for i := range u1.Instructions {
		if u1.Instructions[i].Op != u2.Instructions[i].Op {
			t.Fatalf("instruction %d op differs", i)
		}
		a1, a2 := u1.Instructions[i].Args, u2.Instructions[i].Args
		if len(a1) != len(a2) {
			t.Fatalf("instruction %d operand count differs: %d vs %d", i, len(a1), len(a2))
		}
		for j := range a1 {
			if a1[j] != a2[j] {
				t.Fatalf("instruction %d operand %d differs: %d vs %d", i, j, a1[j], a2[j])
			}
		}
	}
}

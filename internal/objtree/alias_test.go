package objtree

import "testing"

func TestParseAliasExpr(t *testing.T) {
	cases := []struct {
		expr string
		want AliasTarget
	}{
		{"child", AliasTarget{ID: "child"}},
		{"child.x", AliasTarget{ID: "child", Property: "x"}},
		{"child.anchors.left", AliasTarget{ID: "child", Property: "anchors", SubProperty: "left"}},
	}
	for _, tc := range cases {
		got, err := ParseAliasExpr(tc.expr)
		if err != nil {
			t.Fatalf("ParseAliasExpr(%q): %v", tc.expr, err)
		}
		if got != tc.want {
			t.Errorf("ParseAliasExpr(%q) = %+v, want %+v", tc.expr, got, tc.want)
		}
	}
}

func TestParseAliasExprTooManySegments(t *testing.T) {
	if _, err := ParseAliasExpr("a.b.c.d"); err == nil {
		t.Fatal("expected error for a 4-segment alias expression")
	}
}

// TestAliasResolverMarksPropertyCacheEntry covers seed scenario S10:
// the property cache entry's IsAlias flag is set iff the source
// declared an Alias-typed dynamic property referencing an in-scope id.
func TestAliasResolverMarksPropertyCacheEntry(t *testing.T) {
	r := NewAliasResolver()

	child := &ObjectRecord{
		Meta:          NewMetaBuilder("Item"),
		PropertyIndex: map[string]int{},
	}
	xIdx := child.Meta.AddProperty("x", TypeInt, PropWritable|PropResettable)
	child.PropertyIndex["x"] = xIdx
	child.Cache = []PropertyCacheEntry{{Name: "x"}}
	r.RegisterID("child", child)

	root := &ObjectRecord{
		Meta:          NewMetaBuilder("Item"),
		PropertyIndex: map[string]int{},
	}
	aliasIdx := root.Meta.AddProperty("x", TypeAlias, PropWritable|PropResettable)
	root.PropertyIndex["x"] = aliasIdx
	root.Cache = []PropertyCacheEntry{{Name: "x"}}
	root.AliasDecls = []*DynamicPropertyDecl{{Name: "x", IsAlias: true, AliasExpr: "child.x"}}
	rootIdx := r.RegisterID("root", root)
	_ = rootIdx

	if err := r.ResolveAll(); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}

	if len(root.Meta.Aliases()) != 1 {
		t.Fatalf("alias count = %d, want 1", len(root.Meta.Aliases()))
	}
	if root.Meta.Aliases()[0].TargetID != r.idIndex("child") {
		t.Errorf("alias TargetID = %d, want child's id index %d", root.Meta.Aliases()[0].TargetID, r.idIndex("child"))
	}
	if !root.Cache[0].IsAlias {
		t.Errorf("root's x property cache entry not flagged IsAlias")
	}
	if child.Cache[0].IsAlias {
		t.Errorf("child's own x property cache entry must not be flagged IsAlias")
	}
}

func TestAliasTargetNotFoundFails(t *testing.T) {
	r := NewAliasResolver()
	root := &ObjectRecord{
		Meta:          NewMetaBuilder("Item"),
		PropertyIndex: map[string]int{},
		AliasDecls:    []*DynamicPropertyDecl{{Name: "x", IsAlias: true, AliasExpr: "nonexistent.x"}},
	}
	root.Cache = []PropertyCacheEntry{{Name: "x"}}
	r.RegisterID("root", root)
	if err := r.ResolveAll(); err == nil {
		t.Fatal("expected an error for an alias target that is not in scope")
	}
}

package objtree

import (
	"fmt"
	"regexp"
	"unicode"
)

// CompileError is one compile-time diagnostic, per spec.md §7: every
// kind carries the source URL plus a location and message.
type CompileError struct {
	URL          string
	Line, Column int
	Message      string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.URL, e.Line, e.Column, e.Message)
}

var idRe = regexp.MustCompile(`^[_a-z][_A-Za-z0-9]*$`)

// illegalIDs names are reserved and may never be used as an id value,
// per spec.md §4.9's ID property rule.
var illegalIDs = map[string]bool{
	"id": true, "this": true, "parent": true, "eval": true,
	"true": true, "false": true, "null": true, "undefined": true,
}

// scope is one component's id namespace: ids are unique only within
// the component that declares them, per spec.md §4.9's ID property
// rule and §4.10's alias targets being id-indexed per component.
type scope struct {
	ids     map[string]*ObjectRecord
	aliases *AliasResolver
}

func newScope() *scope {
	return &scope{ids: make(map[string]*ObjectRecord), aliases: NewAliasResolver()}
}

// ObjectTreeCompiler validates a parsed declarative object tree,
// synthesizes per-instance meta-descriptors, and emits a linear
// instruction stream, per spec.md §4.9.
type ObjectTreeCompiler struct {
	url   string
	types TypeTable
	w     *Writer

	errors []*CompileError

	scopes []*scope // innermost last; Component nodes push a fresh one

	objectStackDepth, maxObjectStackDepth int
	listStackDepth, maxListStackDepth     int
	bindingCount, parserStatusCount       int
}

// NewObjectTreeCompiler returns a compiler for one document identified
// by url (used in CompileError locations), resolving types against
// types.
func NewObjectTreeCompiler(url string, types TypeTable) *ObjectTreeCompiler {
	return &ObjectTreeCompiler{url: url, types: types}
}

func (c *ObjectTreeCompiler) fail(line, column int, format string, args ...interface{}) {
	c.errors = append(c.errors, &CompileError{URL: c.url, Line: line, Column: column, Message: fmt.Sprintf(format, args...)})
}

func (c *ObjectTreeCompiler) top() *scope { return c.scopes[len(c.scopes)-1] }

func (c *ObjectTreeCompiler) pushScope() { c.scopes = append(c.scopes, newScope()) }
func (c *ObjectTreeCompiler) popScope() *scope {
	s := c.top()
	c.scopes = c.scopes[:len(c.scopes)-1]
	return s
}

// Compile runs the full pipeline over root and returns the emitted
// unit, or nil plus the accumulated errors if compilation failed.
// Per spec.md §7, compile errors are recovered at the unit boundary:
// the unit is reset and returned empty.
func (c *ObjectTreeCompiler) Compile(root *Node) (*CompiledUnit, []*CompileError) {
	c.errors = nil
	c.w = NewWriter()
	c.scopes = nil
	c.objectStackDepth, c.maxObjectStackDepth = 0, 0
	c.listStackDepth, c.maxListStackDepth = 0, 0
	c.bindingCount, c.parserStatusCount = 0, 0

	c.pushScope()
	rec := c.compileObject(root, true)
	s := c.popScope()
	if err := s.aliases.ResolveAll(); err != nil {
		c.fail(root.Line, root.Column, "%v", err)
	}

	if len(c.errors) > 0 {
		return nil, c.errors
	}

	c.w.Init(c.bindingCount, c.parserStatusCount, c.maxObjectStackDepth, c.maxListStackDepth)
	if rec != nil {
		c.w.SetRootPropertyCache(c.w.AddPropertyCache(rec.Cache))
	}
	c.w.Done()

	unit, err := c.w.Finalize()
	if err != nil {
		c.fail(root.Line, root.Column, "%v", err)
		return nil, c.errors
	}
	return unit, nil
}

// compileObject resolves n's type, synthesizes its meta-object,
// records its id (if any), recurses into its property bindings, and
// emits the corresponding Create*/Store*/Complete* instructions. It
// returns nil if n could not be compiled (errors have been recorded).
func (c *ObjectTreeCompiler) compileObject(n *Node, isRoot bool) *ObjectRecord {
	if n.IsComponent {
		return c.compileComponent(n, isRoot)
	}

	ti, ok := c.types.ResolveType(n.TypeName)
	if !ok {
		c.fail(n.Line, n.Column, "%s is not a type", n.TypeName)
		return nil
	}
	if !ti.Creatable {
		c.fail(n.Line, n.Column, "element %s is not creatable", n.TypeName)
		return nil
	}

	rec := &ObjectRecord{Node: n, Type: ti, Meta: NewMetaBuilder(n.TypeName), PropertyIndex: make(map[string]int)}
	declaredNames := make(map[string]bool)

	if n.Id != "" {
		c.validateID(n, rec, declaredNames)
	}

	for _, p := range n.DynamicProperties {
		c.declareProperty(rec, p, declaredNames)
	}
	for _, s := range n.Signals {
		c.declareSignal(rec, s, declaredNames)
	}
	for _, m := range n.Methods {
		c.declareMethod(rec, m, declaredNames)
	}

	typeIdx := c.w.InternType(n.TypeName)

	c.objectStackDepth++
	if c.objectStackDepth > c.maxObjectStackDepth {
		c.maxObjectStackDepth = c.objectStackDepth
	}

	if ti.Native {
		c.w.CreateCppObject(typeIdx, n.Line, n.Column)
	} else {
		c.w.CreateQMLObject(typeIdx, isRoot, 0)
	}
	if rec.Meta.PropertyCount()+rec.Meta.SignalCount()+rec.Meta.MethodCount() > 0 {
		metaBlob := rec.Meta.Build().Marshal()
		dataIdx := c.w.InternByteArray(metaBlob)
		c.w.StoreMetaObject(dataIdx, dataIdx, -1)
	}
	if n.Id != "" {
		c.w.SetId(c.w.InternPrimitive(n.Id), c.objectStackDepth-1)
	}

	for _, pa := range n.Properties {
		c.bindProperty(rec, pa)
	}
	for _, child := range n.DefaultChildren {
		c.bindDefaultChild(rec, child)
	}

	if !ti.Native {
		c.w.CompleteQMLObject()
	}
	c.objectStackDepth--

	return rec
}

// compileComponent handles the "Component" pseudo-element: a fresh
// compile state (new id scope) that still threads into the parent's
// stack-depth accounting, per spec.md §4.9 step 2.
func (c *ObjectTreeCompiler) compileComponent(n *Node, isRoot bool) *ObjectRecord {
	for _, p := range n.Properties {
		if p.Name != "id" {
			c.fail(p.Line, p.Column, "Component elements may not contain properties other than id")
		}
	}
	if len(n.DynamicProperties) > 0 {
		c.fail(n.Line, n.Column, "Component objects cannot declare new properties.")
	}
	if len(n.Signals) > 0 {
		c.fail(n.Line, n.Column, "Component objects cannot declare new signals.")
	}
	if len(n.Methods) > 0 {
		c.fail(n.Line, n.Column, "Component objects cannot declare new functions.")
	}
	if len(n.DefaultChildren) != 1 {
		c.fail(n.Line, n.Column, "Component elements must contain exactly one child object")
		return nil
	}

	c.pushScope()
	count := 0
	c.w.CreateComponent(n.Line, n.Column, n.Line, isRoot, count)
	body := c.compileObject(n.DefaultChildren[0], false)
	s := c.popScope()
	if err := s.aliases.ResolveAll(); err != nil {
		c.fail(n.Line, n.Column, "%v", err)
	}
	c.w.Done()
	return body
}

// wrapInComponent inserts a synthetic Component node around n. Its
// location mirrors n's own so error messages stay accurate, per
// spec.md §9's Open Question on automatic Component insertion.
func wrapInComponent(n *Node) *Node {
	return &Node{
		TypeName:        "Component",
		Line:            n.Line,
		Column:          n.Column,
		IsComponent:     true,
		DefaultChildren: []*Node{n},
		synthesized:     true,
	}
}

func (c *ObjectTreeCompiler) validateID(n *Node, rec *ObjectRecord, declared map[string]bool) {
	if !idRe.MatchString(n.Id) {
		c.fail(n.Line, n.Column, "invalid id specification: %q", n.Id)
		return
	}
	if illegalIDs[n.Id] {
		c.fail(n.Line, n.Column, "invalid id specification: %q is reserved", n.Id)
		return
	}
	s := c.top()
	if _, dup := s.ids[n.Id]; dup {
		c.fail(n.Line, n.Column, "id is not unique")
		return
	}
	s.ids[n.Id] = rec
	s.aliases.RegisterID(n.Id, rec)
}

func lowerFirst(s string) bool {
	for _, r := range s {
		return unicode.IsLower(r) || r == '_'
	}
	return false
}

func (c *ObjectTreeCompiler) declareProperty(rec *ObjectRecord, p *DynamicPropertyDecl, declared map[string]bool) {
	if !lowerFirst(p.Name) {
		c.fail(p.Line, p.Column, "property names must begin with a lower case letter")
		return
	}
	if declared[p.Name] {
		c.fail(p.Line, p.Column, "duplicate property name %q", p.Name)
		return
	}
	if rec.Type.Final[p.Name] {
		c.fail(p.Line, p.Column, "cannot override FINAL property %q", p.Name)
		return
	}
	declared[p.Name] = true

	if p.IsAlias {
		idx := rec.Meta.AddProperty(p.Name, TypeAlias, PropWritable|PropResettable)
		rec.PropertyIndex[p.Name] = idx
		rec.AliasDecls = append(rec.AliasDecls, p)
		rec.Cache = append(rec.Cache, PropertyCacheEntry{Name: p.Name})
		return
	}

	idx := rec.Meta.AddProperty(p.Name, p.Type, PropWritable|PropResettable)
	rec.PropertyIndex[p.Name] = idx
	rec.Cache = append(rec.Cache, PropertyCacheEntry{Name: p.Name})

	if p.Default != nil {
		c.bindProperty(rec, &PropertyAssignment{Name: p.Name, Line: p.Line, Column: p.Column, Values: []*PropertyValue{p.Default}})
	}
}

func (c *ObjectTreeCompiler) declareSignal(rec *ObjectRecord, s *SignalDecl, declared map[string]bool) {
	if !lowerFirst(s.Name) {
		c.fail(s.Line, s.Column, "signal names must begin with a lower case letter")
		return
	}
	if declared[s.Name] {
		c.fail(s.Line, s.Column, "duplicate signal name %q", s.Name)
		return
	}
	declared[s.Name] = true
	rec.Meta.AddSignal(s.Name, s.Params)
}

func (c *ObjectTreeCompiler) declareMethod(rec *ObjectRecord, m *MethodDecl, declared map[string]bool) {
	if declared[m.Name] {
		c.fail(m.Line, m.Column, "duplicate method name %q", m.Name)
		return
	}
	declared[m.Name] = true
	bodyIdx := c.w.InternPrimitive(m.Body)
	rec.Meta.AddMethod(m.Name, m.Params, bodyIdx)
}

// propertySlot resolves name against rec's declared (dynamic) or
// native properties, lazily admitting native properties into the
// instance's own meta-object the first time they're bound.
func (c *ObjectTreeCompiler) propertySlot(rec *ObjectRecord, name string) (idx int, typ PropertyType, found bool) {
	if idx, ok := rec.PropertyIndex[name]; ok {
		return idx, rec.Meta.Properties()[idx].Type, true
	}
	if typ, ok := rec.Type.Properties[name]; ok {
		flags := PropResettable
		if !rec.Type.Final[name] {
			flags |= PropWritable
		}
		idx := rec.Meta.AddProperty(name, typ, flags)
		rec.PropertyIndex[name] = idx
		rec.Cache = append(rec.Cache, PropertyCacheEntry{Name: name})
		return idx, typ, true
	}
	return 0, TypeInvalid, false
}

var signalHandlerRe = regexp.MustCompile(`^on[A-Z]`)

func (c *ObjectTreeCompiler) bindProperty(rec *ObjectRecord, pa *PropertyAssignment) {
	if pa.Name == "id" {
		// id is consumed directly by compileObject/validateID; assigning
		// it again inside a sub-context (grouped property) is forbidden.
		if len(pa.GroupPath) > 0 {
			c.fail(pa.Line, pa.Column, "invalid use of id property in a grouped property scope")
		}
		return
	}

	if pa.IsAttached {
		c.bindAttachedProperty(rec, pa)
		return
	}
	if len(pa.GroupPath) > 0 {
		c.bindGroupedProperty(rec, pa)
		return
	}

	if signalHandlerRe.MatchString(pa.Name) {
		c.bindSignalHandler(rec, pa)
		return
	}

	idx, typ, found := c.propertySlot(rec, pa.Name)
	if !found {
		c.fail(pa.Line, pa.Column, "cannot assign to non-existent property %q", pa.Name)
		return
	}

	if len(pa.Values) == 0 {
		c.fail(pa.Line, pa.Column, "empty property assignment")
		return
	}
	if len(pa.Values) > 1 {
		if typ != TypeList && typ != TypeObject {
			c.fail(pa.Line, pa.Column, "a primitive list assignment is not supported for property %q", pa.Name)
			return
		}
		for _, v := range pa.Values {
			c.bindPropertyValue(rec, idx, typ, pa.Name, v, true)
		}
		return
	}
	c.bindPropertyValue(rec, idx, typ, pa.Name, pa.Values[0], false)
}

func (c *ObjectTreeCompiler) bindPropertyValue(rec *ObjectRecord, idx int, typ PropertyType, propName string, v *PropertyValue, isListElement bool) {
	switch v.Kind {
	case ValueLiteral:
		if typ == TypeList {
			c.fail(v.Line, v.Column, "a primitive is not accepted for list property")
			return
		}
		lit, err := CoerceLiteral(v.Literal, typ, c.types)
		if err != nil {
			c.fail(v.Line, v.Column, "invalid property assignment: %v", err)
			return
		}
		if err := c.w.StoreLiteral(idx, lit); err != nil {
			c.fail(v.Line, v.Column, "%v", err)
		}

	case ValueObject:
		if typ != TypeObject && typ != TypeList && typ != TypeVariant {
			c.fail(v.Line, v.Column, "unsupported property type for object assignment")
			return
		}
		child := v.Object
		// Automatic Component wrapping: a bare object literal assigned
		// to a property of component type becomes a synthetic Component.
		if typ == TypeObject && rec.Type.ComponentProperties[propName] {
			child = wrapInComponent(child)
		}
		if isListElement {
			c.listStackDepth++
			if c.listStackDepth > c.maxListStackDepth {
				c.maxListStackDepth = c.listStackDepth
			}
			c.w.FetchQList(idx)
		}
		if c.compileObject(child, false) != nil {
			if isListElement {
				c.w.StoreObjectQList(idx)
			} else if typ == TypeVariant {
				c.w.StoreVariantObject(idx)
			} else {
				c.w.StoreObject(idx)
			}
		}
		if isListElement {
			c.w.PopQList()
			c.listStackDepth--
		}

	case ValueBinding:
		c.bindingCount++
		bindingIdx := c.w.InternPrimitive(v.Script)
		c.w.StoreBinding(idx, bindingIdx)

	case ValueScriptString:
		c.w.StoreScriptString(idx, c.w.InternPrimitive(v.Script))

	default:
		c.fail(v.Line, v.Column, "unsupported property value")
	}
}

func (c *ObjectTreeCompiler) bindDefaultChild(rec *ObjectRecord, child *Node) {
	if rec.Type.DefaultProperty == "" {
		c.fail(child.Line, child.Column, "cannot assign to non-existent default property")
		return
	}
	name := rec.Type.DefaultProperty
	idx, typ, found := c.propertySlot(rec, name)
	if !found {
		c.fail(child.Line, child.Column, "cannot assign to non-existent default property")
		return
	}
	c.bindPropertyValue(rec, idx, typ, name, &PropertyValue{Kind: ValueObject, Object: child, Line: child.Line, Column: child.Column}, typ == TypeList)
}

func (c *ObjectTreeCompiler) bindSignalHandler(rec *ObjectRecord, pa *PropertyAssignment) {
	signalName := lowerFirstRune(pa.Name[2:])
	sigIdx := -1
	for i, s := range rec.Meta.Signals() {
		if c.signalName(rec, i) == signalName {
			sigIdx = i
			_ = s
			break
		}
	}
	if sigIdx < 0 {
		c.fail(pa.Line, pa.Column, "no matching signal %q", signalName)
		return
	}
	if len(pa.Values) != 1 || pa.Values[0].Kind != ValueBinding {
		c.fail(pa.Line, pa.Column, "cannot assign a value to a signal (expecting a script to be run)")
		return
	}
	scriptIdx := c.w.InternPrimitive(pa.Values[0].Script)
	c.w.StoreSignal(sigIdx, scriptIdx)
}

// signalName resolves signal i's name back from the string table, for
// "on<Signal>" handler matching.
func (c *ObjectTreeCompiler) signalName(rec *ObjectRecord, i int) string {
	ref := rec.Meta.Signals()[i].NameRef
	strs := rec.Meta.strings.strings
	if ref < 0 || ref >= len(strs) {
		return ""
	}
	return strs[ref]
}

func lowerFirstRune(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

func (c *ObjectTreeCompiler) bindAttachedProperty(rec *ObjectRecord, pa *PropertyAssignment) {
	ati, ok := c.types.AttachedType(pa.AttachedType)
	if !ok {
		c.fail(pa.Line, pa.Column, "non-existent attached object")
		return
	}
	subName := pa.Name
	typ, ok := ati.Properties[subName]
	if !ok {
		c.fail(pa.Line, pa.Column, "%q is not an attached property", subName)
		return
	}
	propIdx, ok := ati.PropertyIndex[subName]
	if !ok {
		c.fail(pa.Line, pa.Column, "attached property %q has no host-assigned index", subName)
		return
	}

	typeIdx := c.w.InternType(pa.AttachedType)
	c.w.FetchAttached(typeIdx)
	for _, v := range pa.Values {
		if v.Kind != ValueLiteral {
			c.fail(v.Line, v.Column, "unsupported attached property value")
			continue
		}
		lit, err := CoerceLiteral(v.Literal, typ, c.types)
		if err != nil {
			c.fail(v.Line, v.Column, "invalid property assignment: %v", err)
			continue
		}
		if err := c.w.StoreLiteral(propIdx, lit); err != nil {
			c.fail(v.Line, v.Column, "%v", err)
		}
	}
	c.w.PopFetchedObject()
}

func (c *ObjectTreeCompiler) bindGroupedProperty(rec *ObjectRecord, pa *PropertyAssignment) {
	groupName := pa.GroupPath[0]
	idx, typ, found := c.propertySlot(rec, groupName)
	if !found {
		c.fail(pa.Line, pa.Column, "cannot assign to non-existent property %q", groupName)
		return
	}
	subTable, ok := valueTypeSubIndex[typ]
	if !ok {
		c.fail(pa.Line, pa.Column, "property %q is not a grouped/value-type property", groupName)
		return
	}
	subIdx, ok := subTable[pa.Name]
	if !ok {
		c.fail(pa.Line, pa.Column, "value type %q has no sub-property %q", groupName, pa.Name)
		return
	}
	subType := valueTypeElementType[typ]

	c.w.FetchValueType(idx)
	for _, v := range pa.Values {
		if v.Kind != ValueLiteral {
			c.fail(v.Line, v.Column, "unsupported grouped property value")
			continue
		}
		lit, err := CoerceLiteral(v.Literal, subType, c.types)
		if err != nil {
			c.fail(v.Line, v.Column, "invalid property assignment: %v", err)
			continue
		}
		if err := c.w.StoreLiteral(subIdx, lit); err != nil {
			c.fail(v.Line, v.Column, "%v", err)
		}
	}
	c.w.PopValueType()
}

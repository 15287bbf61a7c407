package objtree

import (
	"encoding/binary"
	"errors"

	"github.com/dolthub/maphash"
)

var errShortMeta = errors.New("objtree: truncated meta blob")

// PropertyFlag bits per spec.md §4.10.
type PropertyFlag uint8

const (
	PropWritable PropertyFlag = 1 << iota
	PropResettable
)

// PropertyRecord is one property entry in a synthesized meta-object.
type PropertyRecord struct {
	NameRef     int
	Type        PropertyType
	Flags       PropertyFlag
	NotifyIndex int // index of the synthesized <name>Changed signal, or -1
}

// SignalRecord is one signal entry.
type SignalRecord struct {
	NameRef int
	Params  []PropertyType
}

// MethodRecord is one method (function) entry.
type MethodRecord struct {
	NameRef    int
	Params     []PropertyType
	BodyOffset int
}

// AliasFlag bits mirror PropertyFlag, carried separately because an
// alias's writable/resettable status is derived from its target
// property rather than declared directly.
type AliasFlag uint8

const (
	AliasWritable AliasFlag = 1 << iota
	AliasResettable
)

// AliasRecord is one alias-table entry, per spec.md §4.10: EncodedPropIdx
// packs propertyIndex | (valueTypeKind<<24) | (valueTypeSubIndex<<16)
// for an alias that reaches through a value-type sub-property.
type AliasRecord struct {
	TargetID       int
	EncodedPropIdx uint32
	Flags          AliasFlag
}

// EncodePropIdx packs an alias's target property index together with
// an optional value-type sub-property reference, per spec.md §4.10.
func EncodePropIdx(propertyIndex int, valueTypeKind, valueTypeSubIndex int) uint32 {
	return uint32(propertyIndex) | uint32(valueTypeKind)<<24 | uint32(valueTypeSubIndex)<<16
}

// stringTable interns strings for a meta-object blob. Lookups hash each
// string with a maphash.Hasher[string] (the pack's high-fan-in
// string-interning library, see SPEC_FULL.md's DOMAIN STACK) and key
// on the 64-bit hash instead of a string-keyed map, since MetaBuilder's property/
// signal/method names are exactly that workload: many short,
// frequently-repeated strings interned during a single compile.
type stringTable struct {
	hasher  maphash.Hasher[string]
	byHash  map[uint64][]int
	strings []string
}

func newStringTable() *stringTable {
	return &stringTable{
		hasher: maphash.NewHasher[string](),
		byHash: make(map[uint64][]int),
	}
}

// intern returns s's index in the table, adding it if not already
// present.
func (t *stringTable) intern(s string) int {
	h := t.hasher.Hash(s)
	for _, idx := range t.byHash[h] {
		if t.strings[idx] == s {
			return idx
		}
	}
	idx := len(t.strings)
	t.strings = append(t.strings, s)
	t.byHash[h] = append(t.byHash[h], idx)
	return idx
}

// MetaBuilder synthesizes a binary meta-descriptor blob for one
// object's properties, signals, methods and aliases, per spec.md
// §4.10.
type MetaBuilder struct {
	className string
	strings   *stringTable

	properties []PropertyRecord
	signals    []SignalRecord
	methods    []MethodRecord
	aliases    []AliasRecord
}

// NewMetaBuilder starts a meta-object for className.
func NewMetaBuilder(className string) *MetaBuilder {
	mb := &MetaBuilder{className: className, strings: newStringTable()}
	mb.strings.intern(className)
	return mb
}

// AddProperty registers a property and its synthesized <name>Changed
// signal (placed immediately after the property's own name in the
// string table, per spec.md §4.10), returning the property's index.
func (mb *MetaBuilder) AddProperty(name string, typ PropertyType, flags PropertyFlag) int {
	nameRef := mb.strings.intern(name)
	mb.strings.intern(name + "Changed")
	idx := len(mb.properties)
	notifyIdx := mb.addSignal(name+"Changed", nil)
	mb.properties = append(mb.properties, PropertyRecord{
		NameRef: nameRef, Type: typ, Flags: flags, NotifyIndex: notifyIdx,
	})
	return idx
}

// AddSignal registers a user-declared signal and returns its index.
func (mb *MetaBuilder) AddSignal(name string, params []PropertyType) int {
	return mb.addSignal(name, params)
}

func (mb *MetaBuilder) addSignal(name string, params []PropertyType) int {
	nameRef := mb.strings.intern(name)
	idx := len(mb.signals)
	mb.signals = append(mb.signals, SignalRecord{NameRef: nameRef, Params: append([]PropertyType(nil), params...)})
	return idx
}

// AddMethod registers a method and returns its index.
func (mb *MetaBuilder) AddMethod(name string, params []PropertyType, bodyOffset int) int {
	nameRef := mb.strings.intern(name)
	idx := len(mb.methods)
	mb.methods = append(mb.methods, MethodRecord{NameRef: nameRef, Params: append([]PropertyType(nil), params...), BodyOffset: bodyOffset})
	return idx
}

// AddAlias registers an alias-table entry targeting the id-indexed
// object's property.
func (mb *MetaBuilder) AddAlias(targetID int, encodedPropIdx uint32, flags AliasFlag) int {
	idx := len(mb.aliases)
	mb.aliases = append(mb.aliases, AliasRecord{TargetID: targetID, EncodedPropIdx: encodedPropIdx, Flags: flags})
	return idx
}

// PropertyCount, SignalCount, MethodCount, AliasCount report the
// synthesized meta-object's table sizes.
func (mb *MetaBuilder) PropertyCount() int { return len(mb.properties) }
func (mb *MetaBuilder) SignalCount() int   { return len(mb.signals) }
func (mb *MetaBuilder) MethodCount() int   { return len(mb.methods) }
func (mb *MetaBuilder) AliasCount() int    { return len(mb.aliases) }

// Properties, Signals, Methods, Aliases expose the recorded tables for
// inspection by the alias-resolution pass and tests.
func (mb *MetaBuilder) Properties() []PropertyRecord { return mb.properties }
func (mb *MetaBuilder) Signals() []SignalRecord      { return mb.signals }
func (mb *MetaBuilder) Methods() []MethodRecord      { return mb.methods }
func (mb *MetaBuilder) Aliases() []AliasRecord { return mb.aliases }

// Meta is the finished, packed meta-descriptor blob plus its string
// table, ready for StoreMetaObject bytecode emission.
type Meta struct {
	ClassName  string
	Strings    []string
	Properties []PropertyRecord
	Signals    []SignalRecord
	Methods    []MethodRecord
	Aliases    []AliasRecord
}

// Build finalizes the meta-object. Building twice from the same inputs
// yields a byte-identical result (seed scenario S9's "meta determinism"),
// since string interning and table order are both purely a function of
// call order.
func (mb *MetaBuilder) Build() *Meta {
	return &Meta{
		ClassName:  mb.className,
		Strings:    append([]string(nil), mb.strings.strings...),
		Properties: append([]PropertyRecord(nil), mb.properties...),
		Signals:    append([]SignalRecord(nil), mb.signals...),
		Methods:    append([]MethodRecord(nil), mb.methods...),
		Aliases:    append([]AliasRecord(nil), mb.aliases...),
	}
}

// Marshal packs Meta into the binary blob layout spec.md §4.10
// describes: a string table, then fixed-width property/signal/method/
// alias records referencing it by index.
func (m *Meta) Marshal() []byte {
	var buf []byte
	putU32 := func(v uint32) { buf = binary.LittleEndian.AppendUint32(buf, v) }

	putU32(uint32(len(m.Strings)))
	for _, s := range m.Strings {
		putU32(uint32(len(s)))
		buf = append(buf, s...)
	}

	putU32(uint32(len(m.Properties)))
	for _, p := range m.Properties {
		putU32(uint32(p.NameRef))
		putU32(uint32(p.Type))
		buf = append(buf, byte(p.Flags))
		putU32(uint32(int32(p.NotifyIndex)))
	}

	putU32(uint32(len(m.Signals)))
	for _, s := range m.Signals {
		putU32(uint32(s.NameRef))
		putU32(uint32(len(s.Params)))
		for _, p := range s.Params {
			putU32(uint32(p))
		}
	}

	putU32(uint32(len(m.Methods)))
	for _, meth := range m.Methods {
		putU32(uint32(meth.NameRef))
		putU32(uint32(meth.BodyOffset))
		putU32(uint32(len(meth.Params)))
		for _, p := range meth.Params {
			putU32(uint32(p))
		}
	}

	putU32(uint32(len(m.Aliases)))
	for _, a := range m.Aliases {
		putU32(uint32(a.TargetID))
		putU32(a.EncodedPropIdx)
		buf = append(buf, byte(a.Flags))
	}

	return buf
}

// UnmarshalMeta reverses Marshal, for the object-construction VM and
// for tests verifying seed scenario S9's "recompiling the same tree
// yields byte-identical meta-data" property.
func UnmarshalMeta(data []byte) (*Meta, error) {
	r := &byteReader{data: data}
	m := &Meta{}

	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	m.Strings = make([]string, n)
	for i := range m.Strings {
		sl, err := r.u32()
		if err != nil {
			return nil, err
		}
		s, err := r.bytes(int(sl))
		if err != nil {
			return nil, err
		}
		m.Strings[i] = string(s)
	}

	n, err = r.u32()
	if err != nil {
		return nil, err
	}
	m.Properties = make([]PropertyRecord, n)
	for i := range m.Properties {
		nameRef, err := r.u32()
		if err != nil {
			return nil, err
		}
		typ, err := r.u32()
		if err != nil {
			return nil, err
		}
		flags, err := r.u8()
		if err != nil {
			return nil, err
		}
		notify, err := r.u32()
		if err != nil {
			return nil, err
		}
		m.Properties[i] = PropertyRecord{
			NameRef: int(nameRef), Type: PropertyType(typ),
			Flags: PropertyFlag(flags), NotifyIndex: int(int32(notify)),
		}
	}

	n, err = r.u32()
	if err != nil {
		return nil, err
	}
	m.Signals = make([]SignalRecord, n)
	for i := range m.Signals {
		nameRef, err := r.u32()
		if err != nil {
			return nil, err
		}
		pc, err := r.u32()
		if err != nil {
			return nil, err
		}
		params := make([]PropertyType, pc)
		for j := range params {
			p, err := r.u32()
			if err != nil {
				return nil, err
			}
			params[j] = PropertyType(p)
		}
		m.Signals[i] = SignalRecord{NameRef: int(nameRef), Params: params}
	}

	n, err = r.u32()
	if err != nil {
		return nil, err
	}
	m.Methods = make([]MethodRecord, n)
	for i := range m.Methods {
		nameRef, err := r.u32()
		if err != nil {
			return nil, err
		}
		bodyOffset, err := r.u32()
		if err != nil {
			return nil, err
		}
		pc, err := r.u32()
		if err != nil {
			return nil, err
		}
		params := make([]PropertyType, pc)
		for j := range params {
			p, err := r.u32()
			if err != nil {
				return nil, err
			}
			params[j] = PropertyType(p)
		}
		m.Methods[i] = MethodRecord{NameRef: int(nameRef), BodyOffset: int(bodyOffset), Params: params}
	}

	n, err = r.u32()
	if err != nil {
		return nil, err
	}
	m.Aliases = make([]AliasRecord, n)
	for i := range m.Aliases {
		targetID, err := r.u32()
		if err != nil {
			return nil, err
		}
		encoded, err := r.u32()
		if err != nil {
			return nil, err
		}
		flags, err := r.u8()
		if err != nil {
			return nil, err
		}
		m.Aliases[i] = AliasRecord{TargetID: int(targetID), EncodedPropIdx: encoded, Flags: AliasFlag(flags)}
	}

	return m, nil
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, errShortMeta
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) u8() (byte, error) {
	if r.pos+1 > len(r.data) {
		return 0, errShortMeta
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, errShortMeta
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

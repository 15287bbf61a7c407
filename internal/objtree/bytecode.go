package objtree

import "fmt"

// Op is a bytecode-stream opcode, per spec.md §6's representative
// opcode list.
type Op byte

const (
	OpInit Op = iota
	OpCreateSimpleObject
	OpCreateCppObject
	OpCreateQMLObject
	OpCompleteQMLObject
	OpStoreMetaObject
	OpSetId
	OpBeginObject
	OpStoreInteger
	OpStoreDouble
	OpStoreString
	OpStoreBool
	OpStoreUrl
	OpStoreColor
	OpStoreDate
	OpStoreTime
	OpStoreDateTime
	OpStorePoint
	OpStorePointF
	OpStoreSize
	OpStoreSizeF
	OpStoreRect
	OpStoreRectF
	OpStoreVector3D
	OpStoreVector4D
	OpStoreStringList
	OpStoreByteArray
	OpStoreVariantInteger
	OpStoreVariantDouble
	OpStoreVariantBool
	OpStoreVariantObject
	OpStoreVariantString
	OpStoreObject
	OpStoreInterface
	OpAssignObjectList
	OpStoreObjectQList
	OpFetchObject
	OpFetchValueType
	OpPopFetchedObject
	OpPopValueType
	OpFetchQList
	OpPopQList
	OpFetchAttached
	OpStoreSignal
	OpAssignSignalObject
	OpStoreScriptString
	OpStoreTrString
	OpStoreTrIdString
	OpStoreV4Binding
	OpStoreV8Binding
	OpStoreBinding
	OpStoreValueSource
	OpStoreValueInterceptor
	OpCreateComponent
	OpDefer
	OpDeferInit
	OpDone
)

var opNames = [...]string{
	"Init", "CreateSimpleObject", "CreateCppObject", "CreateQMLObject",
	"CompleteQMLObject", "StoreMetaObject", "SetId", "BeginObject",
	"StoreInteger", "StoreDouble", "StoreString", "StoreBool", "StoreUrl",
	"StoreColor", "StoreDate", "StoreTime", "StoreDateTime", "StorePoint",
	"StorePointF", "StoreSize", "StoreSizeF", "StoreRect", "StoreRectF",
	"StoreVector3D", "StoreVector4D", "StoreStringList", "StoreByteArray",
	"StoreVariantInteger", "StoreVariantDouble", "StoreVariantBool",
	"StoreVariantObject", "StoreVariantString", "StoreObject",
	"StoreInterface", "AssignObjectList", "StoreObjectQList", "FetchObject",
	"FetchValueType", "PopFetchedObject", "PopValueType", "FetchQList",
	"PopQList", "FetchAttached", "StoreSignal", "AssignSignalObject",
	"StoreScriptString", "StoreTrString", "StoreTrIdString",
	"StoreV4Binding", "StoreV8Binding", "StoreBinding", "StoreValueSource",
	"StoreValueInterceptor", "CreateComponent", "Defer", "DeferInit", "Done",
}

// String renders op's mnemonic, for bytecode dumps (cmd/qmlc's shell).
func (op Op) String() string {
	if int(op) < 0 || int(op) >= len(opNames) {
		return fmt.Sprintf("Op(%d)", int(op))
	}
	return opNames[op]
}

// Instruction is one emitted, tag-prefixed bytecode record.
type Instruction struct {
	Op   Op
	Args []int64
}

// CompiledUnit is the linear instruction stream plus its side tables,
// matching the §3 CompiledObjectTree data model.
type CompiledUnit struct {
	TypeRefs          []string
	Primitives        []string
	URLs              []string
	ByteArrays        [][]byte
	Instructions      []Instruction
	PropertyCaches    [][]PropertyCacheEntry
	RootPropertyCache int
}

// Writer accumulates a CompiledUnit's instruction stream and side
// tables, per spec.md §4.9 step 6.
type Writer struct {
	instrs     []Instruction
	typeRefs   []string
	typeIdx    map[string]int
	primitives []string
	primIdx    map[string]int
	urls       []string
	urlIdx     map[string]int
	byteArrays [][]byte

	propertyCaches    [][]PropertyCacheEntry
	rootPropertyCache int

	// deferPatches records the instruction index of a Defer op awaiting
	// its instruction-count back-patch once the matching Done is emitted.
	deferPatches []int
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{
		typeIdx: make(map[string]int),
		primIdx: make(map[string]int),
		urlIdx:  make(map[string]int),
	}
}

func (w *Writer) emit(op Op, args ...int64) int {
	idx := len(w.instrs)
	w.instrs = append(w.instrs, Instruction{Op: op, Args: append([]int64(nil), args...)})
	return idx
}

// InternType returns name's index in the type-reference table.
func (w *Writer) InternType(name string) int {
	if idx, ok := w.typeIdx[name]; ok {
		return idx
	}
	idx := len(w.typeRefs)
	w.typeRefs = append(w.typeRefs, name)
	w.typeIdx[name] = idx
	return idx
}

// InternPrimitive returns s's index in the primitive (general string/
// script) pool.
func (w *Writer) InternPrimitive(s string) int {
	if idx, ok := w.primIdx[s]; ok {
		return idx
	}
	idx := len(w.primitives)
	w.primitives = append(w.primitives, s)
	w.primIdx[s] = idx
	return idx
}

// InternURL returns s's index in the URL pool.
func (w *Writer) InternURL(s string) int {
	if idx, ok := w.urlIdx[s]; ok {
		return idx
	}
	idx := len(w.urls)
	w.urls = append(w.urls, s)
	w.urlIdx[s] = idx
	return idx
}

// InternByteArray appends data to the byte-array pool and returns its
// index.
func (w *Writer) InternByteArray(data []byte) int {
	idx := len(w.byteArrays)
	w.byteArrays = append(w.byteArrays, append([]byte(nil), data...))
	return idx
}

// AddPropertyCache records obj's property cache and returns its index,
// for StoreMetaObject / RootPropertyCache.
func (w *Writer) AddPropertyCache(entries []PropertyCacheEntry) int {
	idx := len(w.propertyCaches)
	w.propertyCaches = append(w.propertyCaches, append([]PropertyCacheEntry(nil), entries...))
	return idx
}

// SetRootPropertyCache records the root object's property cache index.
func (w *Writer) SetRootPropertyCache(idx int) { w.rootPropertyCache = idx }

// Init reserves the bytecode interpreter's binding/parser-status
// counters and object/list stack depths, per spec.md §4.9 step 6.
func (w *Writer) Init(bindingCount, parserStatusCount, objectStackDepth, listStackDepth int) {
	w.emit(OpInit, int64(bindingCount), int64(parserStatusCount), int64(objectStackDepth), int64(listStackDepth))
}

// CreateSimpleObject emits a native-type construction record with no
// QML-specific meta/complete pairing.
func (w *Writer) CreateSimpleObject(createFn uintptr, typeSize, typeIdx, line, column int) {
	w.emit(OpCreateSimpleObject, int64(createFn), int64(typeSize), int64(typeIdx), int64(line), int64(column))
}

// CreateCppObject emits a native-type construction record.
func (w *Writer) CreateCppObject(typeIdx, line, column int) {
	w.emit(OpCreateCppObject, int64(typeIdx), int64(line), int64(column))
}

// CreateQMLObject emits a component-type construction record; it must
// be paired with a later CompleteQMLObject once property stores for
// this object have been emitted.
func (w *Writer) CreateQMLObject(typeIdx int, isRoot bool, bindingBits uint64) {
	w.emit(OpCreateQMLObject, int64(typeIdx), boolArg(isRoot), int64(bindingBits))
}

// CompleteQMLObject closes a CreateQMLObject.
func (w *Writer) CompleteQMLObject() { w.emit(OpCompleteQMLObject) }

// StoreMetaObject attaches a synthesized meta-descriptor and property
// cache to the most recently created object.
func (w *Writer) StoreMetaObject(dataIdx, aliasDataIdx, propertyCacheIdx int) {
	w.emit(OpStoreMetaObject, int64(dataIdx), int64(aliasDataIdx), int64(propertyCacheIdx))
}

// SetId records that the object at the given object-stack index bears
// the string-table id stringIdx.
func (w *Writer) SetId(stringIdx, index int) { w.emit(OpSetId, int64(stringIdx), int64(index)) }

// BeginObject marks the start of property stores for an object whose
// value must be cast to castValue's vtable before use.
func (w *Writer) BeginObject(castValue int) { w.emit(OpBeginObject, int64(castValue)) }

func boolArg(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// StoreLiteral emits the Store<Type> instruction matching lit's type,
// per spec.md §6's opcode list.
func (w *Writer) StoreLiteral(propertyIndex int, lit CoercedLiteral) error {
	switch lit.Type {
	case TypeInt:
		w.emit(OpStoreInteger, int64(propertyIndex), lit.Int)
	case TypeUInt:
		w.emit(OpStoreInteger, int64(propertyIndex), int64(lit.UInt))
	case TypeReal:
		w.emit(OpStoreDouble, int64(propertyIndex), int64(w.InternPrimitive(fmt.Sprintf("%g", lit.Real))))
	case TypeBool:
		w.emit(OpStoreBool, int64(propertyIndex), boolArg(lit.Bool))
	case TypeString:
		w.emit(OpStoreString, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypeUrl:
		w.emit(OpStoreUrl, int64(propertyIndex), int64(w.InternURL(lit.Str)))
	case TypeColor:
		w.emit(OpStoreColor, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypeDate:
		w.emit(OpStoreDate, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypeTime:
		w.emit(OpStoreTime, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypeDateTime:
		w.emit(OpStoreDateTime, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypePoint:
		w.emit(OpStorePoint, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypePointF:
		w.emit(OpStorePointF, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypeSize:
		w.emit(OpStoreSize, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypeSizeF:
		w.emit(OpStoreSizeF, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypeRect:
		w.emit(OpStoreRect, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypeRectF:
		w.emit(OpStoreRectF, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypeVector3D:
		w.emit(OpStoreVector3D, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypeVector4D:
		w.emit(OpStoreVector4D, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypeStringList:
		w.emit(OpStoreStringList, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
	case TypeByteArray:
		w.emit(OpStoreByteArray, int64(propertyIndex), int64(w.InternByteArray([]byte(lit.Str))))
	case TypeVariant:
		switch {
		case lit.IsBool:
			w.emit(OpStoreVariantBool, int64(propertyIndex), boolArg(lit.Bool))
		case lit.Str != "":
			w.emit(OpStoreVariantString, int64(propertyIndex), int64(w.InternPrimitive(lit.Str)))
		default:
			w.emit(OpStoreVariantDouble, int64(propertyIndex), int64(w.InternPrimitive(fmt.Sprintf("%g", lit.Real))))
		}
	default:
		return fmt.Errorf("objtree: no Store opcode for literal type %d", lit.Type)
	}
	return nil
}

// StoreObject, StoreInterface, StoreVariantObject emit the
// corresponding object-valued property store for the most recently
// completed child object.
func (w *Writer) StoreObject(propertyIndex int)        { w.emit(OpStoreObject, int64(propertyIndex)) }
func (w *Writer) StoreInterface(propertyIndex int)     { w.emit(OpStoreInterface, int64(propertyIndex)) }
func (w *Writer) StoreVariantObject(propertyIndex int) { w.emit(OpStoreVariantObject, int64(propertyIndex)) }

// AssignObjectList and StoreObjectQList emit list-property stores.
func (w *Writer) AssignObjectList()             { w.emit(OpAssignObjectList) }
func (w *Writer) StoreObjectQList(propertyIndex int) { w.emit(OpStoreObjectQList, int64(propertyIndex)) }

// FetchObject/FetchValueType/PopFetchedObject/PopValueType/FetchQList/
// PopQList implement the object/value-type/list construction stack
// described by spec.md §6.
func (w *Writer) FetchObject(propertyIndex int)    { w.emit(OpFetchObject, int64(propertyIndex)) }
func (w *Writer) FetchValueType(propertyIndex int) { w.emit(OpFetchValueType, int64(propertyIndex)) }
func (w *Writer) PopFetchedObject()                { w.emit(OpPopFetchedObject) }
func (w *Writer) PopValueType()                    { w.emit(OpPopValueType) }
func (w *Writer) FetchQList(propertyIndex int)      { w.emit(OpFetchQList, int64(propertyIndex)) }
func (w *Writer) PopQList()                         { w.emit(OpPopQList) }

// FetchAttached pushes the attached-property object for typeIdx onto
// the object stack.
func (w *Writer) FetchAttached(typeIdx int) { w.emit(OpFetchAttached, int64(typeIdx)) }

// StoreSignal and AssignSignalObject emit signal-handler stores.
func (w *Writer) StoreSignal(signalIndex, handlerScriptIdx int) {
	w.emit(OpStoreSignal, int64(signalIndex), int64(handlerScriptIdx))
}
func (w *Writer) AssignSignalObject(signalIndex int) { w.emit(OpAssignSignalObject, int64(signalIndex)) }

// StoreScriptString, StoreTrString, StoreTrIdString emit the
// remaining literal-ish property store kinds spec.md §6 lists.
func (w *Writer) StoreScriptString(propertyIndex, scriptIdx int) {
	w.emit(OpStoreScriptString, int64(propertyIndex), int64(scriptIdx))
}
func (w *Writer) StoreTrString(propertyIndex, stringIdx int) {
	w.emit(OpStoreTrString, int64(propertyIndex), int64(stringIdx))
}
func (w *Writer) StoreTrIdString(propertyIndex, idIdx int) {
	w.emit(OpStoreTrIdString, int64(propertyIndex), int64(idIdx))
}

// StoreV4Binding, StoreV8Binding and StoreBinding emit a binding
// expression store, per spec.md §4.9 step 4's three binding-emission
// strategies (optimized expression compiler, shared JS program, or
// per-binding script).
func (w *Writer) StoreV4Binding(propertyIndex, bindingIdx int) {
	w.emit(OpStoreV4Binding, int64(propertyIndex), int64(bindingIdx))
}
func (w *Writer) StoreV8Binding(propertyIndex, bindingIdx int) {
	w.emit(OpStoreV8Binding, int64(propertyIndex), int64(bindingIdx))
}
func (w *Writer) StoreBinding(propertyIndex, bindingIdx int) {
	w.emit(OpStoreBinding, int64(propertyIndex), int64(bindingIdx))
}

// StoreValueSource and StoreValueInterceptor attach a property
// value-source or interceptor object to the property.
func (w *Writer) StoreValueSource(propertyIndex, objectTypeIdx int) {
	w.emit(OpStoreValueSource, int64(propertyIndex), int64(objectTypeIdx))
}
func (w *Writer) StoreValueInterceptor(propertyIndex, objectTypeIdx int) {
	w.emit(OpStoreValueInterceptor, int64(propertyIndex), int64(objectTypeIdx))
}

// CreateComponent emits a Component boundary record.
func (w *Writer) CreateComponent(line, column, endLine int, isRoot bool, count int) {
	w.emit(OpCreateComponent, int64(line), int64(column), int64(endLine), boolArg(isRoot), int64(count))
}

// BeginDefer emits a Defer instruction with a placeholder instruction count
// and returns a token to pass to EndDefer once the deferred region has
// been emitted, per spec.md §4.9 step 6's "size of the deferred region
// back-patched" requirement.
func (w *Writer) BeginDefer() int {
	idx := w.emit(OpDefer, 0)
	w.deferPatches = append(w.deferPatches, idx)
	w.emit(OpDeferInit)
	return idx
}

// EndDefer closes the deferred region started by token and back-patches
// its Defer instruction with the number of instructions that follow it
// (DeferInit through the closing Done).
func (w *Writer) EndDefer(token int) {
	w.emit(OpDone)
	size := len(w.instrs) - token - 1
	w.instrs[token].Args[0] = int64(size)
}

// Done emits the top-level Done instruction closing the unit.
func (w *Writer) Done() { w.emit(OpDone) }

// Finalize returns the completed CompiledUnit. It is an error for any
// BeginDefer to be missing its matching EndDefer.
func (w *Writer) Finalize() (*CompiledUnit, error) {
	for _, idx := range w.deferPatches {
		// EndDefer always patches at least 2 (DeferInit and Done), so a
		// zero count means the region was never closed.
		if w.instrs[idx].Args[0] == 0 {
			return nil, fmt.Errorf("objtree: Defer at instruction %d never closed with Done", idx)
		}
	}
	return &CompiledUnit{
		TypeRefs:          append([]string(nil), w.typeRefs...),
		Primitives:        append([]string(nil), w.primitives...),
		URLs:              append([]string(nil), w.urls...),
		ByteArrays:        append([][]byte(nil), w.byteArrays...),
		Instructions:      append([]Instruction(nil), w.instrs...),
		PropertyCaches:    append([][]PropertyCacheEntry(nil), w.propertyCaches...),
		RootPropertyCache: w.rootPropertyCache,
	}, nil
}

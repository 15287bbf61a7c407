package heap

// Layout constants for the managed heap. Slot size and chunk size
// are the two knobs the rest of the allocator is derived from: a
// Chunk holds exactly ChunkSize/SlotSize slots, of which the leading
// HeaderSlots are consumed by the four bitmaps.
const (
	SlotSizeShift  = 5      // 32 bytes per slot
	SlotSize       = 1 << SlotSizeShift
	ChunkSizeShift = 16     // 64 KiB per chunk
	ChunkSize      = 1 << ChunkSizeShift
	NumSlots       = ChunkSize / SlotSize // 2048

	// EntriesInBitmap is the number of uint64 words needed to hold
	// one bit per slot, for a single-unit chunk.
	EntriesInBitmap = NumSlots / 64 // 32

	// HeaderSlots is the number of leading slots consumed by the
	// four parallel bitmaps (objectBitmap, extendsBitmap,
	// blackBitmap, grayBitmap) of a single-unit chunk, rounded up
	// to a whole slot.
	headerBytes = 4 * EntriesInBitmap * 8
	HeaderSlots = (headerBytes + SlotSize - 1) / SlotSize

	// AvailableSlots is the number of slots usable for allocation
	// in a single-unit (non-huge) chunk.
	AvailableSlots = NumSlots - HeaderSlots

	// NumBins is the number of free-list size classes. Bin k (for
	// 1 <= k < NumBins-1) holds runs of exactly k slots; bin
	// NumBins-1 is the overflow bin for runs >= NumBins-1 slots.
	NumBins = 32
)

// VTable is the minimal virtual-method table every allocated object
// must carry as the first machine word of its first slot, per
// spec.md's HeapItem data model.
type VTable struct {
	Destroy     func(h *HeapItem)
	MarkObjects func(h *HeapItem, mark func(*HeapItem))
	MarkTable   MarkTable
}

// HeapItem is a slot-sized cell. A free cell links into a free-bin
// list via Next/AvailableSlots; an allocated cell carries a VTable
// pointer identifying its object layout.
type HeapItem struct {
	// Allocated-object fields. Words holds, for each machine word
	// beyond the VTable pointer, the value MarkTable entry i
	// describes (used when VT.MarkObjects is nil and the entry is
	// Value or Pointer). Array holds the {ptr, alloc} header a
	// MarkValueArray entry points at; at most one per object, since
	// ValueArray is terminal.
	VT    *VTable
	Words []Value
	Array *ValueArrayHeader

	// Free-run fields. AvailableSlots is only meaningful on the
	// head cell of a free run.
	AvailableSlots int
	Next           *HeapItem

	chunk *Chunk
	slot  int
}

// Chunk is a naturally-aligned span of slots carrying the four GC
// bitmaps. Ordinary allocations get a single-unit chunk (nUnits==1,
// NumSlots/AvailableSlots slots); HugeItemAllocator requests chunks
// spanning multiple units so one dedicated chunk can hold an object
// bigger than AvailableSlots, while keeping the "exactly one object,
// first bit only" invariant from spec.md §4.3.
//
// Bitmaps and slot storage are modeled as ordinary Go slices rather
// than bytes carved out of the mmap'd region: the mmap'd region (see
// page.go) demonstrates the real reserve/commit/decommit contract,
// while slot storage itself lives in normal Go-heap memory so the
// mark-sweep algorithms can be expressed and tested without unsafe
// pointer arithmetic over raw pages. See DESIGN.md.
type Chunk struct {
	segment *MemorySegment
	index   int // chunk-unit index within its segment
	nUnits  int // number of ChunkSize units this chunk spans

	objectBitmap  []uint64
	extendsBitmap []uint64
	blackBitmap   []uint64
	grayBitmap    []uint64

	slots []HeapItem

	pages []byte // backing pages, for commit/decommit on free
}

func newChunk(seg *MemorySegment, index, nUnits int, pages []byte) *Chunk {
	nSlots := nUnits*NumSlots - HeaderSlots
	words := (nSlots + 63) / 64
	c := &Chunk{
		segment:       seg,
		index:         index,
		nUnits:        nUnits,
		objectBitmap:  make([]uint64, words),
		extendsBitmap: make([]uint64, words),
		blackBitmap:   make([]uint64, words),
		grayBitmap:    make([]uint64, words),
		slots:         make([]HeapItem, nSlots),
		pages:         pages,
	}
	for i := range c.slots {
		c.slots[i] = HeapItem{chunk: c, slot: i}
	}
	return c
}

// AvailableSlotCount returns the number of allocatable slots in c.
func (c *Chunk) AvailableSlotCount() int { return len(c.slots) }

func testBit(bitmap []uint64, i int) bool {
	return bitmap[i/64]&(uint64(1)<<uint(i%64)) != 0
}

func setBit(bitmap []uint64, i int) {
	bitmap[i/64] |= uint64(1) << uint(i%64)
}

func clearBit(bitmap []uint64, i int) {
	bitmap[i/64] &^= uint64(1) << uint(i%64)
}

// item returns the HeapItem at slot index i (0-based into the
// allocatable region, i.e. not counting the header slots).
func (c *Chunk) item(i int) *HeapItem { return &c.slots[i] }

// slotOf returns the slot index of h within its chunk.
func (h *HeapItem) slotOf() int { return h.slot }

func (c *Chunk) isObject(i int) bool  { return testBit(c.objectBitmap, i) }
func (c *Chunk) isExtends(i int) bool { return testBit(c.extendsBitmap, i) }
func (c *Chunk) isBlack(i int) bool   { return testBit(c.blackBitmap, i) }
func (c *Chunk) isGray(i int) bool    { return testBit(c.grayBitmap, i) }

// checkInvariants validates the bitmap invariants from spec.md §3
// that hold unconditionally. It is used by tests, not on the
// allocation hot path.
func (c *Chunk) checkInvariants() error {
	for i := range c.objectBitmap {
		if c.objectBitmap[i]&c.extendsBitmap[i] != 0 {
			return errInvariant("objectBitmap and extendsBitmap overlap")
		}
		if c.blackBitmap[i]&^c.objectBitmap[i] != 0 {
			return errInvariant("blackBitmap not a subset of objectBitmap")
		}
	}
	return nil
}

type invariantError string

func (e invariantError) Error() string { return "heap: invariant violation: " + string(e) }

func errInvariant(msg string) error { return invariantError(msg) }

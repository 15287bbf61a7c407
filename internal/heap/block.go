package heap

// BlockAllocator serves normally-sized (<= one chunk) objects from a
// list of chunks, using size-class free-bins plus a bump pointer into
// the current chunk's untouched tail.
type BlockAllocator struct {
	chunkAlloc *ChunkAllocator
	collector  *CollectorCore // for allocation-during-GC pre-marking

	chunks []*Chunk

	freeBins [NumBins]*HeapItem

	bumpChunk *Chunk
	nextFree  int // slot index of the next free slot in bumpChunk
	nFree     int // slots remaining in the bump region
}

// NewBlockAllocator returns a BlockAllocator serving chunks from ca.
func NewBlockAllocator(ca *ChunkAllocator) *BlockAllocator {
	return &BlockAllocator{chunkAlloc: ca}
}

// Allocate serves size bytes (a positive multiple of SlotSize). If
// forceAllocation is false, Allocate never grows the chunk list; it
// returns nil if no existing chunk can satisfy the request.
func (b *BlockAllocator) Allocate(size int, forceAllocation bool) (*HeapItem, error) {
	if size <= 0 || size%SlotSize != 0 {
		panic("heap: BlockAllocator.Allocate: size must be a positive multiple of SlotSize")
	}
	slots := size / SlotSize

	if b.collector != nil && b.collector.forceGC {
		if err := b.collector.RunGC(nil); err != nil {
			return nil, err
		}
	}

	// Step 1: exact-size free bin.
	if slots < NumBins-1 && b.freeBins[slots] != nil {
		h := b.pop(slots)
		return b.commitAllocation(h, slots), nil
	}

	// Step 2: bump region.
	if b.nFree >= slots {
		h := b.bumpAllocate(slots)
		return b.commitAllocation(h, slots), nil
	}

	// Step 3: overflow bin, first run large enough.
	if h := b.splitFromBin(NumBins-1, slots); h != nil {
		return b.commitAllocation(h, slots), nil
	}

	// Step 4: split a bigger exact-size-class entry.
	if slots < NumBins-1 {
		for k := slots + 1; k < NumBins-1; k++ {
			if h := b.splitFromBin(k, slots); h != nil {
				return b.commitAllocation(h, slots), nil
			}
		}
	}

	// Step 5: grow.
	if !forceAllocation {
		return nil, nil
	}
	c, err := b.chunkAlloc.Allocate(ChunkSize)
	if err != nil {
		return nil, err
	}
	b.chunks = append(b.chunks, c)
	b.bumpChunk = c
	b.nextFree = 0
	b.nFree = c.AvailableSlotCount()
	h := b.bumpAllocate(slots)
	return b.commitAllocation(h, slots), nil
}

func (b *BlockAllocator) commitAllocation(h *HeapItem, slots int) *HeapItem {
	c := h.chunk
	i := h.slotOf()
	setBit(c.objectBitmap, i)
	for k := 1; k < slots; k++ {
		setBit(c.extendsBitmap, i+k)
	}
	if b.collector != nil && b.collector.markNewAllocations {
		c.markBlack(i)
	}
	h.AvailableSlots = 0
	h.Next = nil
	h.Words = nil
	h.Array = nil
	return h
}

// markBlack marks slot i (and only i; callers mark extents separately
// if needed) black without pushing it on a mark stack. Used both for
// allocation-during-incremental-GC pre-marking (spec.md §9's resolved
// open question) and is harmless when called outside a GC cycle.
func (c *Chunk) markBlack(i int) { setBit(c.blackBitmap, i) }

func (b *BlockAllocator) bumpAllocate(slots int) *HeapItem {
	h := b.bumpChunk.item(b.nextFree)
	b.nextFree += slots
	b.nFree -= slots
	return h
}

// pop removes and returns the head of freeBins[slots], which must be
// non-nil, clearing its free-run fields.
func (b *BlockAllocator) pop(slots int) *HeapItem {
	h := b.freeBins[slots]
	b.freeBins[slots] = h.Next
	h.Next = nil
	h.AvailableSlots = 0
	return h
}

// splitFromBin finds the first run in freeBins[bin] with at least
// slots slots, removes it, and threads any remainder back into the
// appropriate bin. Returns nil if no run in the bin is big enough.
func (b *BlockAllocator) splitFromBin(bin, slots int) *HeapItem {
	var prev *HeapItem
	for h := b.freeBins[bin]; h != nil; h = h.Next {
		if h.AvailableSlots >= slots {
			if prev == nil {
				b.freeBins[bin] = h.Next
			} else {
				prev.Next = h.Next
			}
			remaining := h.AvailableSlots - slots
			if remaining > 0 {
				rem := h.chunk.item(h.slotOf() + slots)
				rem.AvailableSlots = remaining
				b.threadIntoBin(rem)
			}
			h.Next = nil
			h.AvailableSlots = 0
			return h
		}
		prev = h
	}
	return nil
}

func (b *BlockAllocator) threadIntoBin(h *HeapItem) {
	bin := h.AvailableSlots
	if bin >= NumBins-1 {
		bin = NumBins - 1
	}
	h.Next = b.freeBins[bin]
	b.freeBins[bin] = h
}

// usedSlots returns the number of slots currently allocated across
// all owned chunks (used for GC policy accounting).
func (b *BlockAllocator) usedSlots() int {
	total := 0
	for _, c := range b.chunks {
		for i := range c.objectBitmap {
			total += popcount(c.objectBitmap[i]) // object heads
		}
		for i := range c.extendsBitmap {
			total += popcount(c.extendsBitmap[i]) // extents
		}
	}
	return total
}

// totalSlots returns the number of allocatable slots across all owned
// chunks.
func (b *BlockAllocator) totalSlots() int {
	total := 0
	for _, c := range b.chunks {
		total += len(c.slots)
	}
	return total
}

func popcount(x uint64) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}

// UsedMem returns the number of bytes currently allocated.
func (b *BlockAllocator) UsedMem() int64 { return int64(b.usedSlots()) * SlotSize }

// AllocatedMem returns the number of bytes reserved across all owned
// chunks, used or not.
func (b *BlockAllocator) AllocatedMem() int64 { return int64(b.totalSlots()) * SlotSize }

// Sweep clears bump state, reclaims every unmarked object (invoking
// its Destroy hook), promotes objectBitmap to the surviving
// blackBitmap, and re-bins the resulting free runs.
func (b *BlockAllocator) Sweep() {
	b.bumpChunk = nil
	b.nextFree = 0
	b.nFree = 0
	for i := range b.freeBins {
		b.freeBins[i] = nil
	}

	for _, c := range b.chunks {
		b.sweepChunk(c)
	}

	// Order chunks by descending largest single free run (mirrors the
	// original V4 allocator's post-sweep chunk sort). Allocate does not
	// consult chunk order: it serves from the free bins, and bump-
	// allocates only from a freshly grown chunk.
	sortChunksByLargestRun(b.chunks)
}

// sweepChunk reclaims every object in c whose head bit is set in
// objectBitmap but not in blackBitmap: this mirrors the original
// allocator's per-64-slot-word sweep, which destroys objects and
// clears their extent bits one machine word at a time, carrying into
// following words when an object's extent run crosses a word boundary
// (an object can span many slots, and a slot-word is only 64 slots).
func (b *BlockAllocator) sweepChunk(c *Chunk) {
	words := len(c.objectBitmap)
	for w := 0; w < words; w++ {
		toFree := c.objectBitmap[w] &^ c.blackBitmap[w]
		for toFree != 0 {
			bit := trailingZeros(toFree)
			toFree &^= uint64(1) << uint(bit)

			slot := w*64 + bit
			clearExtentRun(c.extendsBitmap, slot)

			h := c.item(slot)
			if h.VT != nil && h.VT.Destroy != nil {
				h.VT.Destroy(h)
			}
			h.VT = nil
			h.Words = nil
			h.Array = nil
		}
		c.objectBitmap[w] = c.blackBitmap[w]
		c.grayBitmap[w] = 0
	}

	binChunkFreeRuns(b, c)
}

// clearExtentRun clears the contiguous run of extendsBitmap bits
// following a freed object's head at global slot index head, using
// the subtract-trick within each word and carrying into the next word
// whenever the run continues past a word boundary.
//
// Derivation: within one word, mask covers bits [0, bit] (bit is the
// head's own bit position; head lives in objectBitmap, so ext's bit
// there is always 0 and untouched by the mask). (e|mask)+1 carries a
// 1 through every contiguous 1-bit starting at bit+1 and stops at the
// first 0 above it, landing exactly one past the run's end; ORing
// mask back in restores the untouched low bits, and ANDing with e
// keeps only the bits that survive, which is everything except the
// cleared run. If the run reaches bit 63 with no 0 above it, (e|mask)
// is all ones and the +1 wraps to 0 — that wraparound is the carry
// signal that the object's extent continues into the next word, which
// it resumes scanning as if the head were at bit -1 (mask=0, covering
// nothing, so the whole word is eligible to be part of the run).
func clearExtentRun(ext []uint64, head int) {
	word := head / 64
	bit := head % 64
	mask := (uint64(1) << uint(bit+1)) - 1
	for word < len(ext) {
		e := ext[word]
		carry := (e | mask) == ^uint64(0)
		ext[word] = e & (((e | mask) + 1) | mask)
		if !carry {
			return
		}
		word++
		mask = 0
	}
}

func binChunkFreeRuns(b *BlockAllocator, c *Chunk) {
	used := make([]uint64, len(c.objectBitmap))
	for i := range used {
		used[i] = c.objectBitmap[i] | c.extendsBitmap[i]
	}
	n := len(c.slots)
	i := 0
	for i < n {
		if testBit(used, i) {
			i++
			continue
		}
		start := i
		for i < n && !testBit(used, i) {
			i++
		}
		run := i - start
		h := c.item(start)
		h.AvailableSlots = run
		h.VT = nil
		b.threadIntoBin(h)
	}
}

func trailingZeros(x uint64) int {
	n := 0
	for x&1 == 0 {
		x >>= 1
		n++
	}
	return n
}

func sortChunksByLargestRun(chunks []*Chunk) {
	largest := make([]int, len(chunks))
	for i, c := range chunks {
		largest[i] = largestFreeRun(c)
	}
	for i := 1; i < len(chunks); i++ {
		for j := i; j > 0 && largest[j] > largest[j-1]; j-- {
			chunks[j], chunks[j-1] = chunks[j-1], chunks[j]
			largest[j], largest[j-1] = largest[j-1], largest[j]
		}
	}
}

func largestFreeRun(c *Chunk) int {
	used := make([]uint64, len(c.objectBitmap))
	for i := range used {
		used[i] = c.objectBitmap[i] | c.extendsBitmap[i]
	}
	best, run := 0, 0
	for i := 0; i < len(c.slots); i++ {
		if testBit(used, i) {
			run = 0
			continue
		}
		run++
		if run > best {
			best = run
		}
	}
	return best
}

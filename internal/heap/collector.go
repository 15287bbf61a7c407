package heap

import "os"

// State is the collector's coarse-grained phase.
type State int

const (
	Idle State = iota
	Marking
	Sweeping
)

// GC policy constants from spec.md §4.5.
const (
	// GCOverallocation is the default percentage overallocation
	// the GC tolerates before triggering (200%).
	GCOverallocation = 200

	// MinSlotsGCLimit is expressed as a multiple of a single
	// chunk's AvailableSlots; GC policy only kicks in once the
	// heap has grown past this floor.
	minSlotsGCLimitChunks = 16

	// incrementalCadence forces a full cycle every N incremental
	// cycles, a safety valve against pathological barrier traffic.
	incrementalCadence = 16

	minUnmanagedByteLimit = 128 * 1024
)

// CollectorCore owns root enumeration, the mark stack, sweep
// coordination, incremental barrier support and GC policy.
type CollectorCore struct {
	Block *BlockAllocator
	Huge  *HugeItemAllocator

	Persistent *PersistentValueStorage
	Weak       WeakTable
	Roots      RootsProvider
	StackRoots StackRootProvider

	state       State
	incremental bool
	cycleCount  int // incremental cycles since the last full cycle

	markStack []*HeapItem

	forceGC            bool // QMLCORE_GC_FORCE
	dumpStats          bool // QMLCORE_GC_STATS
	markNewAllocations bool // true from the start of marking to the end of sweeping, in every cycle

	unmanagedBytes     int64
	unmanagedByteLimit int64

	stats Stats
}

// Stats summarizes collector activity, per SPEC_FULL.md's supplemented
// GC-stats feature.
type Stats struct {
	FullCycles        int
	IncrementalCycles int
	LastUsedSlots     int
	LastTotalSlots    int
	LastDurationNS    int64
}

// NewCollectorCore wires a collector over the given block and huge
// allocators.
func NewCollectorCore(block *BlockAllocator, huge *HugeItemAllocator) *CollectorCore {
	c := &CollectorCore{
		Block:              block,
		Huge:               huge,
		Persistent:         NewPersistentValueStorage(),
		unmanagedByteLimit: minUnmanagedByteLimit,
	}
	block.collector = c
	huge.collector = c
	return c
}

// PolicyFromEnv reads the two environment variables spec.md §6 names
// and applies them: QMLCORE_GC_FORCE makes every allocation trigger a
// full collection first (for deterministic GC testing); QMLCORE_GC_STATS
// enables Stats() accumulation for cmd/qmlc's gcstats subcommand.
func (c *CollectorCore) PolicyFromEnv() {
	c.forceGC = os.Getenv("QMLCORE_GC_FORCE") != ""
	c.dumpStats = os.Getenv("QMLCORE_GC_STATS") != ""
}

// Stats returns a snapshot of the collector's counters, or the zero
// Stats if QMLCORE_GC_STATS was not set to enable their accumulation.
func (c *CollectorCore) Stats() Stats {
	if !c.dumpStats {
		return Stats{}
	}
	return c.stats
}

// DumpStats reports whether QMLCORE_GC_STATS enabled stats
// accumulation, for callers (cmd/qmlc's gcstats subcommand) that need
// to distinguish "stats are all zero" from "stats were never kept."
func (c *CollectorCore) DumpStats() bool { return c.dumpStats }

// ShouldCollect reports whether GC policy says a collection is due,
// per spec.md §4.5.
func (c *CollectorCore) ShouldCollect() bool {
	total := c.Block.totalSlots()
	if total <= AvailableSlots*minSlotsGCLimitChunks {
		return c.unmanagedBytes >= c.unmanagedByteLimit
	}
	used := c.Block.usedSlots()
	if used*GCOverallocation < total*100 {
		return true
	}
	return c.unmanagedBytes >= c.unmanagedByteLimit
}

// chooseIncremental decides, after each collection, whether the next
// cycle may run incrementally.
func (c *CollectorCore) chooseIncremental() bool {
	if c.cycleCount >= incrementalCadence {
		return false
	}
	total := c.Block.totalSlots()
	used := c.Block.usedSlots()
	return used*4 < total*3
}

// adjustUnmanagedLimit grows the unmanaged-byte limit when the heap
// is still mostly full after a collection, shrinks it when mostly
// empty, per spec.md §4.5.
func (c *CollectorCore) adjustUnmanagedLimit() {
	total := c.Block.totalSlots()
	if total == 0 {
		return
	}
	used := c.Block.usedSlots()
	fullPct := used * 100 / total
	switch {
	case fullPct > 75:
		c.unmanagedByteLimit *= 2
	case fullPct < 25 && c.unmanagedByteLimit > minUnmanagedByteLimit:
		c.unmanagedByteLimit /= 2
		if c.unmanagedByteLimit < minUnmanagedByteLimit {
			c.unmanagedByteLimit = minUnmanagedByteLimit
		}
	}
	c.unmanagedBytes = 0
}

// AddUnmanagedBytes accounts bytes allocated outside the managed
// heap (e.g. by a native helper) against the unmanaged-byte GC
// trigger.
func (c *CollectorCore) AddUnmanagedBytes(n int64) { c.unmanagedBytes += n }

// push adds h to the mark stack if it is not already black, and sets
// its black bit. Already-black objects are not re-pushed.
func (c *CollectorCore) push(h *HeapItem) {
	i := h.slotOf()
	if h.chunk.isBlack(i) {
		return
	}
	setBit(h.chunk.blackBitmap, i)
	c.markStack = append(c.markStack, h)
}

// RunGC performs one collection cycle. If full is non-nil and *full
// is true (or full is nil), a full cycle runs; otherwise an
// incremental cycle runs when the policy allows it.
func (c *CollectorCore) RunGC(full *bool) error {
	wantIncremental := false
	if full != nil && !*full {
		wantIncremental = c.incremental
	}
	c.state = Marking
	c.markNewAllocations = true
	if wantIncremental {
		c.markIncrementalSetup()
	} else {
		c.clearAllBlack()
	}
	c.visitRoots()
	c.drain()
	c.state = Sweeping
	c.sweep(wantIncremental)
	c.state = Idle
	c.markNewAllocations = false

	if c.dumpStats {
		c.stats.LastUsedSlots = c.Block.usedSlots()
		c.stats.LastTotalSlots = c.Block.totalSlots()
		if wantIncremental {
			c.stats.IncrementalCycles++
		} else {
			c.stats.FullCycles++
		}
	}
	if wantIncremental {
		c.cycleCount++
	} else {
		c.cycleCount = 0
	}
	c.incremental = c.chooseIncremental()
	c.adjustUnmanagedLimit()
	return nil
}

func (c *CollectorCore) clearAllBlack() {
	for _, ch := range c.Block.chunks {
		for i := range ch.blackBitmap {
			ch.blackBitmap[i] = 0
		}
	}
}

// markIncrementalSetup re-marks barrier-dirtied objects: any object
// that is both black (from a prior cycle) and gray (dirtied by a
// store since) is pushed back onto the mark stack for rescanning,
// per the Steele write barrier in spec.md §4.5.
func (c *CollectorCore) markIncrementalSetup() {
	for _, ch := range c.Block.chunks {
		for w := range ch.blackBitmap {
			toMark := ch.blackBitmap[w] & ch.grayBitmap[w]
			for toMark != 0 {
				bit := trailingZeros(toMark)
				toMark &^= uint64(1) << uint(bit)
				c.markStack = append(c.markStack, ch.item(w*64+bit))
			}
			ch.grayBitmap[w] = 0
		}
	}
}

func (c *CollectorCore) visitRoots() {
	if c.Roots != nil {
		c.Roots.VisitRoots(c.push)
	}
	if c.StackRoots != nil {
		c.StackRoots.VisitStackRoots(c.push)
	}
	c.Persistent.VisitRoots(c.push)
	c.Weak.visitMarkRoots(c.push)
}

func (c *CollectorCore) drain() {
	for len(c.markStack) > 0 {
		h := c.markStack[len(c.markStack)-1]
		c.markStack = c.markStack[:len(c.markStack)-1]
		vt := h.VT
		if vt == nil {
			continue
		}
		if vt.MarkObjects != nil {
			vt.MarkObjects(h, c.push)
			continue
		}
		c.scanByMarkTable(h, vt.MarkTable)
	}
}

// scanByMarkTable walks h's MarkTable two bits at a time, LSB first,
// one code per machine-word slot of h.Words. A Value entry marks the
// embedded tagged value if it carries a heap pointer; a Pointer entry
// marks the pointee if non-null; a ValueArray entry follows h.Array's
// {ptr, alloc} header and marks every contained value, and is
// terminal — scanning stops there regardless of what follows in mt.
func (c *CollectorCore) scanByMarkTable(h *HeapItem, mt MarkTable) {
	for i := 0; i < MaxMarkEntries; i++ {
		switch mt.At(i) {
		case NoMark:
		case MarkValue, MarkPointer:
			if i < len(h.Words) && h.Words[i].IsPointer() {
				c.push(h.Words[i].Ptr)
			}
		case MarkValueArray:
			if h.Array != nil {
				for _, v := range h.Array.Ptr {
					if v.IsPointer() {
						c.push(v.Ptr)
					}
				}
			}
			return
		}
	}
}

// WriteBarrier implements the Steele-style barrier from spec.md
// §4.5: when child is stored into parent and parent is already
// black, parent's gray bit is set so the next incremental mark pass
// re-scans it. Elided (a no-op) whenever the engine has no
// incremental cycle pending.
func (c *CollectorCore) WriteBarrier(parent *HeapItem) {
	if !c.incremental {
		return
	}
	i := parent.slotOf()
	if parent.chunk.isBlack(i) {
		setBit(parent.chunk.grayBitmap, i)
	}
}

func (c *CollectorCore) sweep(incremental bool) {
	c.Weak.sweep(func(h *HeapItem) bool { return h.chunk.isBlack(h.slotOf()) })
	c.Block.Sweep()
	_ = c.Huge.Sweep(incremental)
}

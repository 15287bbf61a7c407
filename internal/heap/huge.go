package heap

// HugeItemAllocator serves objects larger than a chunk's data area.
// Each allocation owns a dedicated chunk whose objectBitmap has
// exactly one bit set, the first.
type HugeItemAllocator struct {
	chunkAlloc *ChunkAllocator
	collector  *CollectorCore

	items []*HeapItem
}

// NewHugeItemAllocator returns a HugeItemAllocator serving chunks
// from ca.
func NewHugeItemAllocator(ca *ChunkAllocator) *HugeItemAllocator {
	return &HugeItemAllocator{chunkAlloc: ca}
}

// Allocate reserves a dedicated chunk of at least size bytes and
// returns its single HeapItem.
func (h *HugeItemAllocator) Allocate(size int) (*HeapItem, error) {
	if h.collector != nil && h.collector.forceGC {
		if err := h.collector.RunGC(nil); err != nil {
			return nil, err
		}
	}

	c, err := h.chunkAlloc.Allocate(size)
	if err != nil {
		return nil, err
	}
	item := c.item(0)
	setBit(c.objectBitmap, 0)

	// Open question resolved per spec.md §9: a huge item allocated
	// while an incremental cycle is in flight must be born pre-marked
	// so it survives this cycle's sweep even though it was never
	// visited by the mark phase that is already past its roots scan.
	if h.collector != nil && h.collector.markNewAllocations {
		c.markBlack(0)
	}

	h.items = append(h.items, item)
	return item, nil
}

// Sweep drops every huge chunk whose sole bit is not black;
// survivors have their black bit cleared in non-incremental mode, or
// retained in incremental mode (so a still-incremental collector
// doesn't need every huge object re-marked every cycle to survive).
func (h *HugeItemAllocator) Sweep(incremental bool) error {
	kept := h.items[:0]
	for _, item := range h.items {
		c := item.chunk
		if !c.isBlack(0) {
			if item.VT != nil && item.VT.Destroy != nil {
				item.VT.Destroy(item)
			}
			if err := h.chunkAlloc.Free(c); err != nil {
				return err
			}
			continue
		}
		if !incremental {
			clearBit(c.blackBitmap, 0)
		}
		kept = append(kept, item)
	}
	h.items = kept
	return nil
}

// UsedMem returns the combined size of all live huge chunks.
func (h *HugeItemAllocator) UsedMem() int64 {
	var total int64
	for _, item := range h.items {
		total += int64(item.chunk.nUnits) * ChunkSize
	}
	return total
}

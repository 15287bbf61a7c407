package heap

import "testing"

func TestHugeItemAllocatorLoneBit(t *testing.T) {
	h := NewHugeItemAllocator(newTestAllocator(t))
	item, err := h.Allocate(ChunkSize * 3)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	c := item.chunk
	if !c.isObject(0) {
		t.Fatalf("objectBitmap bit 0 not set on a huge allocation")
	}
	for i := range c.objectBitmap {
		want := uint64(0)
		if i == 0 {
			want = 1
		}
		if c.objectBitmap[i] != want {
			t.Errorf("objectBitmap[%d] = %#x, want %#x (only bit 0 set)", i, c.objectBitmap[i], want)
		}
	}
}

func TestHugeItemAllocatorSweepDropsUnmarked(t *testing.T) {
	h := NewHugeItemAllocator(newTestAllocator(t))
	item, err := h.Allocate(ChunkSize * 2)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	destroyed := false
	item.VT = &VTable{Destroy: func(*HeapItem) { destroyed = true }}

	if err := h.Sweep(false); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !destroyed {
		t.Errorf("Sweep(false) did not destroy an unmarked huge item")
	}
	if len(h.items) != 0 {
		t.Errorf("len(items) = %d after sweeping the only huge item, want 0", len(h.items))
	}
}

func TestHugeItemAllocatorSweepKeepsMarked(t *testing.T) {
	h := NewHugeItemAllocator(newTestAllocator(t))
	item, err := h.Allocate(ChunkSize * 2)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	item.chunk.markBlack(0)

	if err := h.Sweep(false); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(h.items) != 1 {
		t.Fatalf("len(items) = %d after sweeping a black huge item, want 1", len(h.items))
	}
	if item.chunk.isBlack(0) {
		t.Errorf("black bit still set after a non-incremental sweep of a surviving huge item")
	}
}

// TestHugeItemAllocatorForceGCRunsFirst covers the QMLCORE_GC_FORCE
// policy (spec.md §6's "every BlockAllocator.Allocate/
// HugeItemAllocator.Allocate call triggers a full collection first"):
// an unrooted BlockAllocator garbage object must already be swept by
// the time a HugeItemAllocator.Allocate call returns, because
// forceGC made it run a full GC ahead of its own chunk allocation.
func TestHugeItemAllocatorForceGCRunsFirst(t *testing.T) {
	ca := newTestAllocator(t)
	block := NewBlockAllocator(ca)
	huge := NewHugeItemAllocator(ca)
	c := NewCollectorCore(block, huge)
	c.forceGC = true

	garbage, err := block.Allocate(SlotSize, true)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	destroyed := false
	garbage.VT = &VTable{Destroy: func(*HeapItem) { destroyed = true }}

	if _, err := huge.Allocate(ChunkSize * 2); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !destroyed {
		t.Errorf("unrooted block object survived a HugeItemAllocator.Allocate call with forceGC set")
	}
}

func TestHugeItemAllocatorIncrementalSweepKeepsBlackBit(t *testing.T) {
	h := NewHugeItemAllocator(newTestAllocator(t))
	item, err := h.Allocate(ChunkSize * 2)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	item.chunk.markBlack(0)

	if err := h.Sweep(true); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if !item.chunk.isBlack(0) {
		t.Errorf("black bit cleared after an incremental sweep; incremental survivors must stay black")
	}
}

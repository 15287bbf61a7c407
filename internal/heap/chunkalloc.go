package heap

import "fmt"

// segmentChunks is the number of chunk-unit slots a normal segment
// reserves: a single uint64 occupancy word, per spec.md's "N <= 64"
// constraint on MemorySegment.
const segmentChunks = 64

// MemorySegment is a page-aligned reservation. Normal segments hold
// up to segmentChunks single-ChunkSize units and track occupancy with
// one bit per unit. A segment reserved to satisfy a single
// multi-unit (huge) request instead holds exactly one Chunk spanning
// all of its units; occupancy then only ever needs bit 0.
type MemorySegment struct {
	pages     []byte
	occupied  uint64 // bit i set iff unit i is allocated (dedicated segments only use bit 0)
	chunks    []*Chunk
	numUnits  int
	dedicated bool // true if this segment exists to satisfy one multi-unit request
}

// ChunkAllocator splits page reservations into naturally-aligned
// Chunks and tracks, per segment, which chunk-units are free.
type ChunkAllocator struct {
	backend  *PageBackend
	segments []*MemorySegment
}

// NewChunkAllocator returns a ChunkAllocator backed by b.
func NewChunkAllocator(b *PageBackend) *ChunkAllocator {
	return &ChunkAllocator{backend: b}
}

// Allocate returns a naturally-aligned chunk whose usable area is at
// least sizeHint bytes (rounded up to whole chunk-units, minimum
// one). It walks existing segments with a first-fit linear scan for
// consecutive clear occupancy bits; on failure it reserves a new
// segment (at least one chunk-unit in size) and retries.
func (a *ChunkAllocator) Allocate(sizeHint int) (*Chunk, error) {
	need := chunksNeeded(sizeHint)
	if need <= segmentChunks {
		for _, seg := range a.segments {
			if seg.dedicated {
				continue
			}
			c, err := seg.tryAllocate(a.backend, need)
			if err != nil {
				return nil, err
			}
			if c != nil {
				return c, nil
			}
		}
	}
	seg, err := a.newSegment(need)
	if err != nil {
		return nil, err
	}
	a.segments = append(a.segments, seg)
	c, err := seg.tryAllocate(a.backend, need)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("heap: freshly reserved segment could not satisfy %d chunk-units", need)
	}
	return c, nil
}

// Free returns chunk to its segment, decommitting its pages.
func (a *ChunkAllocator) Free(c *Chunk) error {
	seg := c.segment
	if err := a.backend.Decommit(c.pages); err != nil {
		return err
	}
	if seg.dedicated {
		seg.occupied = 0
		seg.chunks[0] = nil
		return nil
	}
	for i := c.index; i < c.index+c.nUnits; i++ {
		seg.occupied &^= uint64(1) << uint(i)
		seg.chunks[i] = nil
	}
	return nil
}

func chunksNeeded(sizeHint int) int {
	if sizeHint <= 0 {
		return 1
	}
	n := (sizeHint + ChunkSize - 1) / ChunkSize
	if n < 1 {
		n = 1
	}
	return n
}

func (seg *MemorySegment) tryAllocate(backend *PageBackend, need int) (*Chunk, error) {
	if seg.dedicated {
		if seg.occupied != 0 {
			return nil, nil
		}
		seg.occupied = 1
		c := newChunk(seg, 0, seg.numUnits, seg.pages)
		seg.chunks[0] = c
		return c, nil
	}
	run := 0
	start := -1
	for i := 0; i < seg.numUnits; i++ {
		if seg.occupied&(uint64(1)<<uint(i)) == 0 {
			if run == 0 {
				start = i
			}
			run++
			if run == need {
				return seg.commit(backend, start, need)
			}
		} else {
			run = 0
		}
	}
	return nil, nil
}

func (seg *MemorySegment) commit(backend *PageBackend, start, need int) (*Chunk, error) {
	lo := start * ChunkSize
	hi := (start + need) * ChunkSize
	pages := seg.pages[lo:hi]
	if err := backend.Commit(pages); err != nil {
		return nil, err
	}
	c := newChunk(seg, start, need, pages)
	for i := start; i < start+need; i++ {
		seg.occupied |= uint64(1) << uint(i)
		seg.chunks[i] = c
	}
	return c, nil
}

func (a *ChunkAllocator) newSegment(need int) (*MemorySegment, error) {
	dedicated := need > segmentChunks
	n := need
	if !dedicated && n < segmentChunks {
		n = segmentChunks
	}
	// Reserve one extra chunk-unit so the segment can start on a
	// ChunkSize boundary, making every chunk in it naturally aligned.
	_, pages, err := a.backend.Reserve(n*ChunkSize + ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("heap: reserve segment: %w", err)
	}
	off := (ChunkSize - int(sliceAddr(pages)%ChunkSize)) % ChunkSize
	pages = pages[off : off+n*ChunkSize]
	if dedicated {
		// The whole segment is handed out as the one multi-unit chunk
		// it exists to satisfy (tryAllocate's dedicated path does not go
		// through commit), so commit all of it eagerly here.
		if err := a.backend.Commit(pages); err != nil {
			return nil, fmt.Errorf("heap: commit segment: %w", err)
		}
	}
	numUnits := n
	chunkSlots := numUnits
	if dedicated {
		chunkSlots = 1
	}
	return &MemorySegment{
		pages:     pages,
		numUnits:  numUnits,
		chunks:    make([]*Chunk, chunkSlots),
		dedicated: dedicated,
	}, nil
}

package heap

import "testing"

func TestStackAllocatorLIFO(t *testing.T) {
	s := NewStackAllocator(newTestAllocator(t), 4)

	h1, err := s.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	h2, err := s.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if s.Depth() != 2 {
		t.Fatalf("Depth() = %d, want 2", s.Depth())
	}

	s.Free()
	if s.Depth() != 1 {
		t.Fatalf("Depth() = %d after one Free, want 1", s.Depth())
	}

	h3, err := s.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if h3 != h2 {
		t.Errorf("re-allocating after a Free did not reuse the freed frame")
	}
	_ = h1
}

func TestStackAllocatorGrowsAcrossChunks(t *testing.T) {
	s := NewStackAllocator(newTestAllocator(t), 4)
	frames := AvailableSlots/4 + 10
	for i := 0; i < frames; i++ {
		if _, err := s.Allocate(); err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
	}
	if len(s.chunks) < 2 {
		t.Errorf("len(chunks) = %d, want >=2 after allocating past one chunk's capacity", len(s.chunks))
	}
	if s.Depth() != frames {
		t.Errorf("Depth() = %d, want %d", s.Depth(), frames)
	}

	for i := 0; i < frames; i++ {
		s.Free()
	}
	if s.Depth() != 0 {
		t.Errorf("Depth() = %d after freeing every frame, want 0", s.Depth())
	}
}

func TestStackAllocatorFreeAcrossChunkBoundary(t *testing.T) {
	s := NewStackAllocator(newTestAllocator(t), 4)
	perChunk := (AvailableSlots-1)/4 + 1
	for i := 0; i < perChunk+1; i++ {
		if _, err := s.Allocate(); err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
	}
	if len(s.chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want exactly 2 after crossing one chunk boundary by one frame", len(s.chunks))
	}
	s.Free() // empties the second chunk, but stays on it
	if s.currentChunk != 1 {
		t.Fatalf("currentChunk = %d after freeing the sole frame in chunk 1, want 1", s.currentChunk)
	}
	s.Free() // now retreats back into the first chunk
	if s.currentChunk != 0 {
		t.Errorf("currentChunk = %d after retreating across the boundary, want 0", s.currentChunk)
	}
}

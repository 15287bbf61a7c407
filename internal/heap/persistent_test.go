package heap

import "testing"

func TestPersistentValueStorageAddRemove(t *testing.T) {
	s := NewPersistentValueStorage()
	target := &HeapItem{}
	h := s.Add(Value{Ptr: target}, false)
	if s.Len() != 1 {
		t.Fatalf("Len() = %d after one Add, want 1", s.Len())
	}
	s.Remove(h)
	if s.Len() != 0 {
		t.Errorf("Len() = %d after Remove, want 0", s.Len())
	}
}

func TestPersistentValueStorageVisitRootsSkipsWeak(t *testing.T) {
	s := NewPersistentValueStorage()
	strong := &HeapItem{}
	weak := &HeapItem{}
	s.Add(Value{Ptr: strong}, false)
	s.Add(Value{Ptr: weak}, true)

	var marked []*HeapItem
	s.VisitRoots(func(h *HeapItem) { marked = append(marked, h) })

	if len(marked) != 1 || marked[0] != strong {
		t.Errorf("VisitRoots marked %v, want exactly [strong]", marked)
	}
}

func TestPersistentValueStorageSpansChunks(t *testing.T) {
	s := NewPersistentValueStorage()
	n := persistentChunkSize*2 + 5
	handles := make([]Handle, n)
	for i := 0; i < n; i++ {
		handles[i] = s.Add(Value{Ptr: &HeapItem{}}, false)
	}
	if s.Len() != n {
		t.Fatalf("Len() = %d, want %d", s.Len(), n)
	}
	count := 0
	s.Each(func(Value, bool) { count++ })
	if count != n {
		t.Errorf("Each visited %d slots, want %d", count, n)
	}
	for _, h := range handles {
		s.Remove(h)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after removing every handle, want 0", s.Len())
	}
}

package pairing

import (
	"fmt"
	"sync"
	"testing"
)

func TestIndex_LastWriteWins(t *testing.T) {
	idx := NewIndex(10)
	idx.Record("u1", "g1")
	idx.Record("u1", "g2")

	got, ok := idx.Consume("u1")
	if !ok || got != "g2" {
		t.Errorf("Consume = (%q, %v), want (g2, true)", got, ok)
	}
}

func TestIndex_ConsumeDoesNotDelete(t *testing.T) {
	idx := NewIndex(10)
	idx.Record("u1", "g1")

	for i := 0; i < 2; i++ {
		if got, ok := idx.Consume("u1"); !ok || got != "g1" {
			t.Fatalf("consume #%d = (%q, %v), want (g1, true)", i+1, got, ok)
		}
	}
}

func TestIndex_Missing(t *testing.T) {
	idx := NewIndex(10)
	if _, ok := idx.Consume("nobody"); ok {
		t.Error("expected missing entry")
	}
}

func TestIndex_IgnoresEmpty(t *testing.T) {
	idx := NewIndex(10)
	idx.Record("", "g1")
	idx.Record("u1", "")
	if idx.Len() != 0 {
		t.Errorf("Len = %d, want 0", idx.Len())
	}
}

func TestIndex_EvictsOldest(t *testing.T) {
	idx := NewIndex(2)
	idx.Record("u1", "g1")
	idx.Record("u2", "g2")
	idx.Record("u3", "g3")

	if _, ok := idx.Consume("u1"); ok {
		t.Error("u1 should have been evicted")
	}
	if got, ok := idx.Consume("u3"); !ok || got != "g3" {
		t.Errorf("u3 = (%q, %v)", got, ok)
	}
}

func TestIndex_DefaultCapacity(t *testing.T) {
	idx := NewIndex(0)
	for i := 0; i < DefaultCapacity+5; i++ {
		idx.Record(fmt.Sprintf("u%d", i), "g")
	}
	if idx.Len() != DefaultCapacity {
		t.Errorf("Len = %d, want %d", idx.Len(), DefaultCapacity)
	}
}

func TestIndex_Concurrent(t *testing.T) {
	idx := NewIndex(100)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", n%5)
			idx.Record(id, fmt.Sprintf("g%d", n))
			idx.Consume(id)
		}(i)
	}
	wg.Wait()
	if idx.Len() != 5 {
		t.Errorf("Len = %d, want 5", idx.Len())
	}
}

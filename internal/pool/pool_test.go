package pool

import (
	"reflect"
	"sync"
	"testing"
)

func TestPoolIsStrictFIFO(t *testing.T) {
	p := New[int]()
	p.Add(1)
	p.Add(2)
	p.Add(3)

	v, ok := p.Next()
	if !ok || v != 1 {
		t.Fatalf("got (%d, %v), want (1, true)", v, ok)
	}

	v, ok = p.Next()
	if !ok || v != 2 {
		t.Fatalf("got (%d, %v), want (2, true)", v, ok)
	}
}

func TestPoolNextOnEmptyReturnsFalse(t *testing.T) {
	p := New[string]()
	if _, ok := p.Next(); ok {
		t.Error("expected ok=false on an empty pool")
	}
}

func TestPoolNextNReturnsUpToKInOrder(t *testing.T) {
	p := New[int]()
	for i := 1; i <= 10; i++ {
		p.Add(i)
	}
	batch := p.NextN(4)
	want := []int{1, 2, 3, 4}
	if !reflect.DeepEqual(batch, want) {
		t.Errorf("got %v, want %v", batch, want)
	}
	if p.Size() != 6 {
		t.Errorf("size after dequeue: got %d, want 6", p.Size())
	}
}

func TestPoolNextNCapsAtAvailableItems(t *testing.T) {
	p := New[int]()
	p.Add(1)
	p.Add(2)
	batch := p.NextN(10)
	want := []int{1, 2}
	if !reflect.DeepEqual(batch, want) {
		t.Errorf("got %v, want %v", batch, want)
	}
	if p.Size() != 0 {
		t.Errorf("size after dequeue: got %d, want 0", p.Size())
	}
}

func TestPoolNextNOnEmptyReturnsNil(t *testing.T) {
	p := New[int]()
	if batch := p.NextN(5); batch != nil {
		t.Errorf("got %v, want nil", batch)
	}
}

func TestPoolConcurrentAddAndDequeueDoesNotDropOrDuplicate(t *testing.T) {
	p := New[int]()
	const n = 500

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(v int) {
			defer wg.Done()
			p.Add(v)
		}(i)
	}
	wg.Wait()

	if p.Size() != n {
		t.Fatalf("size after concurrent adds: got %d, want %d", p.Size(), n)
	}

	seen := make(map[int]bool)
	for {
		v, ok := p.Next()
		if !ok {
			break
		}
		if seen[v] {
			t.Errorf("item %d dequeued twice", v)
		}
		seen[v] = true
	}
	if len(seen) != n {
		t.Errorf("got %d distinct items, want %d", len(seen), n)
	}
}

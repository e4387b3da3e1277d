package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type testItem struct {
	ID   string
	Name string
}

func TestBaseRegistry_Register(t *testing.T) {
	r := NewBaseRegistry[testItem]()

	if err := r.Register("a", testItem{ID: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := r.Register("", testItem{}); !errors.Is(err, ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}

	if err := r.Register("a", testItem{ID: "a2"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	if r.Count() != 1 {
		t.Errorf("expected count 1, got %d", r.Count())
	}
}

func TestBaseRegistry_GetRemove(t *testing.T) {
	r := NewBaseRegistry[testItem]()

	if err := r.Register("a", testItem{ID: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item, ok := r.Get("a")
	if !ok || item.ID != "a" {
		t.Errorf("expected to get item a, got %v ok=%v", item, ok)
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("expected missing item to not be found")
	}

	if err := r.Remove("a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Remove("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestBaseRegistry_ListOrdered(t *testing.T) {
	r := NewBaseRegistry[testItem]()

	for _, name := range []string{"c", "a", "b"} {
		if err := r.Register(name, testItem{ID: name}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	keys := r.Keys()
	want := []string{"a", "b", "c"}
	for i, k := range keys {
		if k != want[i] {
			t.Errorf("expected key %q at %d, got %q", want[i], i, k)
		}
	}

	items := r.List()
	if len(items) != 3 || items[0].ID != "a" || items[2].ID != "c" {
		t.Errorf("expected ordered items, got %v", items)
	}
}

func TestBaseRegistry_Concurrent(t *testing.T) {
	r := NewBaseRegistry[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("item-%d", i)
			if err := r.Register(name, i); err != nil {
				t.Errorf("register %s: %v", name, err)
			}
			if _, ok := r.Get(name); !ok {
				t.Errorf("get %s failed", name)
			}
		}(i)
	}
	wg.Wait()

	if r.Count() != 50 {
		t.Errorf("expected 50 items, got %d", r.Count())
	}

	r.Clear()
	if r.Count() != 0 {
		t.Errorf("expected empty registry after clear, got %d", r.Count())
	}
}

package foreman

import (
	"fmt"
	"sync"
	"testing"
)

// TestCacheBasicOperations tests the basic operations of the SimpleCache
func TestCacheBasicOperations(t *testing.T) {
	const capacity = 10
	cache := FactoryNewCache[string](capacity)

	items := []string{"item1", "item2", "item3", "item4", "item5"}
	indices := make([]int, len(items))

	for i, item := range items {
		index, err := cache.Register(item, item)
		if err != nil {
			t.Errorf("Failed to register item %s: %v", item, err)
		}
		indices[i] = index

		// Indices are dense and start at zero
		if index != i {
			t.Errorf("Index for item %s is %d, expected %d", item, index, i)
		}
	}

	for i, item := range items {
		index, found := cache.GetIndex(item)
		if !found {
			t.Errorf("Item %s not found in cache", item)
		}
		if index != indices[i] {
			t.Errorf("Index for item %s is %d, expected %d", item, index, indices[i])
		}
	}

	for i, item := range items {
		if cachedItem := *cache.GetItem(indices[i]); cachedItem != item {
			t.Errorf("Item at index %d is %s, expected %s", indices[i], cachedItem, item)
		}
		if cachedItem := *cache.GetItem32(uint32(indices[i])); cachedItem != item {
			t.Errorf("Item at index %d is %s, expected %s", indices[i], cachedItem, item)
		}
	}

	if _, found := cache.GetIndex("nonexistent"); found {
		t.Errorf("Found non-existent item in cache")
	}

	if _, err := cache.Register("item1", "again"); err == nil {
		t.Errorf("Registering a duplicate key succeeded")
	}
}

// TestCacheCapacity tests the cache capacity limits
func TestCacheCapacity(t *testing.T) {
	const capacity = 5
	cache := FactoryNewCache[int](capacity)

	for i := 0; i < capacity; i++ {
		key := fmt.Sprintf("item%d", i)
		if _, err := cache.Register(key, i); err != nil {
			t.Errorf("Failed to register item %s: %v", key, err)
		}
	}

	if _, err := cache.Register("overflow", 100); err == nil {
		t.Errorf("Expected error when exceeding cache capacity, but got none")
	}
}

// TestCacheClear tests the cache clear functionality
func TestCacheClear(t *testing.T) {
	cache := FactoryNewCache[string](10).(*SimpleCache[string])

	items := []string{"item1", "item2", "item3"}
	for _, item := range items {
		if _, err := cache.Register(item, item); err != nil {
			t.Errorf("Failed to register item %s: %v", item, err)
		}
	}

	cache.Clear()

	if cache.Len() != 0 {
		t.Errorf("Len() after clear = %d, want 0", cache.Len())
	}
	for _, item := range items {
		if _, found := cache.GetIndex(item); found {
			t.Errorf("Item %s still found after cache clear", item)
		}
	}

	for _, item := range items {
		if _, err := cache.Register(item, item); err != nil {
			t.Errorf("Failed to register item %s after clear: %v", item, err)
		}
	}
}

// TestCacheWithComplexTypes tests the cache with struct values
func TestCacheWithComplexTypes(t *testing.T) {
	cache := FactoryNewCache[Position](10)

	positions := []Position{
		{X: 1.0, Y: 2.0},
		{X: 3.0, Y: 4.0},
		{X: 5.0, Y: 6.0},
	}
	keys := []string{"pos1", "pos2", "pos3"}

	for i, pos := range positions {
		if _, err := cache.Register(keys[i], pos); err != nil {
			t.Errorf("Failed to register position %v: %v", pos, err)
		}
	}

	for i, key := range keys {
		index, found := cache.GetIndex(key)
		if !found {
			t.Errorf("Position with key %s not found", key)
			continue
		}
		if pos := cache.GetItem(index); *pos != positions[i] {
			t.Errorf("Position at index %d is %v, expected %v", index, *pos, positions[i])
		}
	}

	// Items are addressable in place
	cache.GetItem(0).X = 10
	if got := cache.GetItem(0).X; got != 10 {
		t.Errorf("In-place update not visible, X = %v", got)
	}
}

func TestInternerDenseIDs(t *testing.T) {
	in := NewInterner(8)

	a := in.Intern("physics")
	b := in.Intern("render")
	if a != 0 || b != 1 {
		t.Errorf("Intern() ids = %d, %d, want 0, 1", a, b)
	}
	if again := in.Intern("physics"); again != a {
		t.Errorf("Intern() is not stable: %d vs %d", again, a)
	}

	if id, ok := in.Lookup("render"); !ok || id != b {
		t.Errorf("Lookup(render) = %d, %v", id, ok)
	}
	if _, ok := in.Lookup("audio"); ok {
		t.Errorf("Lookup() allocated or found an unknown key")
	}
	if in.Len() != 2 {
		t.Errorf("Len() = %d, want 2", in.Len())
	}

	if name, ok := in.Name(b); !ok || name != "render" {
		t.Errorf("Name(%d) = %q, %v", b, name, ok)
	}
	if _, ok := in.Name(42); ok {
		t.Errorf("Name() resolved an id never handed out")
	}
}

func TestInternerFullPanics(t *testing.T) {
	in := NewInterner(1)
	in.Intern("only")

	defer func() {
		if recover() == nil {
			t.Errorf("Intern() on a full interner did not panic")
		}
	}()
	in.Intern("overflow")
}

// TestInternerConcurrentAccess interns overlapping keys from several
// goroutines; every key must end up with exactly one id
func TestInternerConcurrentAccess(t *testing.T) {
	in := NewInterner(64)

	const workers = 8
	results := make([][]uint32, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]uint32, 16)
			for i := range ids {
				ids[i] = in.Intern(fmt.Sprintf("key-%d", i))
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()

	if in.Len() != 16 {
		t.Fatalf("Len() = %d, want 16", in.Len())
	}
	for w := 1; w < workers; w++ {
		for i := range results[w] {
			if results[w][i] != results[0][i] {
				t.Errorf("worker %d got id %d for key-%d, worker 0 got %d", w, results[w][i], i, results[0][i])
			}
		}
	}
}

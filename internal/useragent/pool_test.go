package useragent

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultPool(t *testing.T) {
	p := DefaultPool()
	if diff := cmp.Diff(defaultAgents, p.Agents()); diff != "" {
		t.Errorf("Agents() mismatch (-want +got):\n%s", diff)
	}
	if p.Len() != 3 {
		t.Errorf("Len() = %d, want 3", p.Len())
	}
}

func TestChoose_AlwaysFromPool(t *testing.T) {
	p := DefaultPool()
	for range 1000 {
		ua := p.Choose()
		if !slices.Contains(defaultAgents, ua) {
			t.Fatalf("Choose() = %q, not in pool", ua)
		}
	}
}

func TestChoose_NoEntryStarved(t *testing.T) {
	p := DefaultPool()
	seen := make(map[string]int)
	// 3000 draws over 3 entries: the chance of missing one is (2/3)^3000.
	for range 3000 {
		seen[p.Choose()]++
	}
	for _, ua := range defaultAgents {
		if seen[ua] == 0 {
			t.Errorf("entry %q never chosen", ua)
		}
	}
}

func TestChoose_SingleEntry(t *testing.T) {
	p, err := NewPool("only")
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	for range 10 {
		if got := p.Choose(); got != "only" {
			t.Fatalf("Choose() = %q, want %q", got, "only")
		}
	}
}

func TestNewPool_Empty(t *testing.T) {
	_, err := NewPool()
	if !errors.Is(err, ErrEmptyPool) {
		t.Errorf("NewPool() error = %v, want ErrEmptyPool", err)
	}
}

func TestNewPool_CopiesInput(t *testing.T) {
	in := []string{"a", "b"}
	p, err := NewPool(in...)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	in[0] = "mutated"

	if diff := cmp.Diff([]string{"a", "b"}, p.Agents()); diff != "" {
		t.Errorf("pool changed after caller mutation (-want +got):\n%s", diff)
	}

	out := p.Agents()
	out[1] = "mutated"
	if p.Agents()[1] != "b" {
		t.Error("Agents() exposes internal slice")
	}
}

func TestChoose_Concurrent(t *testing.T) {
	p := DefaultPool()
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 100 {
				_ = p.Choose()
			}
		})
	}
	wg.Wait()
}

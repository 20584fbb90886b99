package idgen_test

import (
	"regexp"
	"sync"
	"testing"

	"github.com/artpar/lexgate/adapters/idgen"
)

var uuidV7 = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestUUID_New(t *testing.T) {
	id := idgen.UUID{}.New()
	if !uuidV7.MatchString(id) {
		t.Errorf("ID %s doesn't match UUID v7 format", id)
	}
}

func TestUUID_New_UniqueAndOrdered(t *testing.T) {
	g := idgen.UUID{}

	prev := ""
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.New()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
		if prev != "" && id <= prev {
			t.Fatalf("ID %s not ordered after %s", id, prev)
		}
		prev = id
	}
}

func TestSequential_New(t *testing.T) {
	g := idgen.NewSequential("req_")

	for _, want := range []string{"req_1", "req_2", "req_3"} {
		if got := g.New(); got != want {
			t.Errorf("New() = %q, want %q", got, want)
		}
	}
}

func TestSequential_Concurrent(t *testing.T) {
	g := idgen.NewSequential("")

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.New()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("got %d unique IDs, want 50", len(seen))
	}
}

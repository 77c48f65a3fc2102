package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/finsight/copilot"
)

func entry(emb []float32, text string) copilot.Entry {
	return copilot.Entry{Embedding: emb, Text: text, Meta: &copilot.EntryMeta{Source: "test"}}
}

func TestAddAndSearchRanking(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	_, err := s.AddMany(ctx, []copilot.Entry{
		entry([]float32{1, 0}, "east"),
		entry([]float32{0, 1}, "north"),
		entry([]float32{0.9, 0.1}, "mostly east"),
	})
	if err != nil {
		t.Fatalf("AddMany: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Text != "east" {
		t.Errorf("top result = %q, want east", results[0].Text)
	}
	if results[1].Text != "mostly east" {
		t.Errorf("second result = %q, want mostly east", results[1].Text)
	}
	if results[0].Score < results[1].Score {
		t.Error("results not sorted by score descending")
	}
	if math.Abs(float64(results[0].Score)-1) > 1e-5 {
		t.Errorf("identical vectors score = %v, want ~1", results[0].Score)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	s := New(3)
	results, err := s.Search(context.Background(), []float32{1, 2, 3}, 5)
	if err != nil {
		t.Fatalf("Search on empty store: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty store", len(results))
	}
}

func TestDimensionMismatch(t *testing.T) {
	s := New(4)
	ctx := context.Background()

	var se *copilot.ErrStore
	if _, err := s.Add(ctx, []float32{1, 2}, "short", nil); !errors.As(err, &se) {
		t.Errorf("Add: got %v, want *ErrStore", err)
	}
	if _, err := s.Search(ctx, []float32{1, 2}, 3); !errors.As(err, &se) {
		t.Errorf("Search: got %v, want *ErrStore", err)
	}

	// A bad entry anywhere rejects the whole batch.
	_, err := s.AddMany(ctx, []copilot.Entry{
		entry([]float32{1, 2, 3, 4}, "good"),
		entry([]float32{1}, "bad"),
	})
	if !errors.As(err, &se) {
		t.Fatalf("AddMany: got %v, want *ErrStore", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("partial batch stored: %d entries", n)
	}
}

func TestEvictionDropsOldest(t *testing.T) {
	s := New(1, WithMaxEntries(10), WithEvictBatch(3))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := s.Add(ctx, []float32{1}, fmt.Sprintf("entry-%d", i), nil); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	if n, _ := s.Count(ctx); n != 10 {
		t.Fatalf("Count = %d, want 10", n)
	}

	// The 11th write evicts a batch of the oldest entries.
	if _, err := s.Add(ctx, []float32{1}, "entry-10", nil); err != nil {
		t.Fatalf("Add overflow: %v", err)
	}
	n, _ := s.Count(ctx)
	if n > 10 {
		t.Errorf("Count = %d, exceeds max", n)
	}

	results, _ := s.Search(ctx, []float32{1}, 100)
	seen := make(map[string]bool)
	for _, r := range results {
		seen[r.Text] = true
	}
	if seen["entry-0"] || seen["entry-1"] || seen["entry-2"] {
		t.Error("oldest entries survived eviction")
	}
	if !seen["entry-10"] {
		t.Error("newest entry missing after eviction")
	}
}

func TestEvictionBigBatch(t *testing.T) {
	s := New(1, WithMaxEntries(5))
	ctx := context.Background()

	batch := make([]copilot.Entry, 5)
	for i := range batch {
		batch[i] = entry([]float32{1}, fmt.Sprintf("old-%d", i))
	}
	if _, err := s.AddMany(ctx, batch); err != nil {
		t.Fatal(err)
	}

	batch2 := make([]copilot.Entry, 4)
	for i := range batch2 {
		batch2[i] = entry([]float32{1}, fmt.Sprintf("new-%d", i))
	}
	if _, err := s.AddMany(ctx, batch2); err != nil {
		t.Fatal(err)
	}

	n, _ := s.Count(ctx)
	if n > 5 {
		t.Errorf("Count = %d, exceeds max 5", n)
	}
	results, _ := s.Search(ctx, []float32{1}, 100)
	seen := make(map[string]bool)
	for _, r := range results {
		seen[r.Text] = true
	}
	for i := 0; i < 4; i++ {
		if !seen[fmt.Sprintf("new-%d", i)] {
			t.Errorf("new-%d missing after batched eviction", i)
		}
	}
}

func TestClear(t *testing.T) {
	s := New(1)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.Add(ctx, []float32{1}, "x", nil)
	}

	n, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 3 {
		t.Errorf("removed = %d, want 3", n)
	}
	if c, _ := s.Count(ctx); c != 0 {
		t.Errorf("Count after clear = %d", c)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	ctx := context.Background()

	s := New(2, WithPath(path))
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	s.AddMany(ctx, []copilot.Entry{
		entry([]float32{1, 0}, "alpha"),
		entry([]float32{0, 1}, "beta"),
	})
	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s2 := New(2, WithPath(path))
	if err := s2.Init(ctx); err != nil {
		t.Fatalf("Init reload: %v", err)
	}
	if n, _ := s2.Count(ctx); n != 2 {
		t.Fatalf("reloaded Count = %d, want 2", n)
	}
	results, err := s2.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatalf("Search after reload: %v", err)
	}
	if results[0].Text != "alpha" {
		t.Errorf("top result after reload = %q", results[0].Text)
	}
	if results[0].Meta == nil || results[0].Meta.Source != "test" {
		t.Errorf("metadata lost in snapshot: %+v", results[0].Meta)
	}
}

func TestInitMissingSnapshotOK(t *testing.T) {
	s := New(2, WithPath(filepath.Join(t.TempDir(), "absent.json")))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init with missing snapshot: %v", err)
	}
}

func TestSaveWithoutPathIsNoop(t *testing.T) {
	s := New(2)
	if err := s.Save(context.Background()); err != nil {
		t.Fatalf("Save without path: %v", err)
	}
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	s := New(1, WithMaxEntries(100))
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(2)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Add(ctx, []float32{1}, fmt.Sprintf("g%d-%d", g, i), nil)
			}
		}(g)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Search(ctx, []float32{1}, 5)
				s.Count(ctx)
			}
		}()
	}
	wg.Wait()

	if n, _ := s.Count(ctx); n > 100 {
		t.Errorf("Count = %d, exceeds max under concurrency", n)
	}
}

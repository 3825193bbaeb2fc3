package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dropDatabas3/crossjohn/internal/store"
)

var key = store.Key{Partition: "session", Row: "s1"}

func TestCreateOrGet(t *testing.T) {
	kv := New()
	ctx := context.Background()

	isNew, rec, err := kv.CreateOrGet(ctx, key, []byte("v1"))
	if err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	if !isNew || string(rec.Value) != "v1" || rec.Version != 1 {
		t.Fatalf("first create: isNew=%v rec=%+v", isNew, rec)
	}

	// Second create returns the existing record untouched.
	isNew, rec, err = kv.CreateOrGet(ctx, key, []byte("v2"))
	if err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	if isNew || string(rec.Value) != "v1" {
		t.Fatalf("second create: isNew=%v value=%q", isNew, rec.Value)
	}
}

func TestGet_NotFound(t *testing.T) {
	kv := New()
	if _, err := kv.Get(context.Background(), key); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdateIfMatch(t *testing.T) {
	kv := New()
	ctx := context.Background()
	if _, _, err := kv.CreateOrGet(ctx, key, []byte("v1")); err != nil {
		t.Fatal(err)
	}

	rec, err := kv.UpdateIfMatch(ctx, key, func(current []byte) ([]byte, error) {
		if string(current) != "v1" {
			t.Fatalf("mutator saw %q", current)
		}
		return []byte("v2"), nil
	})
	if err != nil {
		t.Fatalf("UpdateIfMatch: %v", err)
	}
	if string(rec.Value) != "v2" || rec.Version != 2 {
		t.Fatalf("after update: %+v", rec)
	}
}

func TestUpdateIfMatch_MutatorErrorPassesThrough(t *testing.T) {
	kv := New()
	ctx := context.Background()
	if _, _, err := kv.CreateOrGet(ctx, key, []byte("v1")); err != nil {
		t.Fatal(err)
	}

	sentinel := errors.New("do not write")
	_, err := kv.UpdateIfMatch(ctx, key, func([]byte) ([]byte, error) {
		return nil, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("want sentinel verbatim, got %v", err)
	}

	// Aborted update leaves value and version untouched.
	rec, err := kv.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Value) != "v1" || rec.Version != 1 {
		t.Fatalf("record mutated after aborted update: %+v", rec)
	}
}

func TestUpdateIfMatch_NotFound(t *testing.T) {
	kv := New()
	_, err := kv.UpdateIfMatch(context.Background(), key, func(b []byte) ([]byte, error) { return b, nil })
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	kv := New()
	ctx := context.Background()
	if _, _, err := kv.CreateOrGet(ctx, key, []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := kv.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := kv.Delete(ctx, key); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
}

func TestConcurrentCreateOrGet_SingleWinner(t *testing.T) {
	kv := New()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan string, n)
	for i := 0; i < n; i++ {
		val := []byte{byte(i)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			isNew, rec, err := kv.CreateOrGet(ctx, key, val)
			if err != nil {
				t.Errorf("CreateOrGet: %v", err)
				return
			}
			if isNew {
				wins <- string(rec.Value)
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("want exactly one winner, got %d", len(winners))
	}
	rec, err := kv.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Value) != winners[0] {
		t.Fatalf("stored value %q is not the winner's %q", rec.Value, winners[0])
	}
}

func TestClonedRecords_DoNotAliasStore(t *testing.T) {
	kv := New()
	ctx := context.Background()
	if _, _, err := kv.CreateOrGet(ctx, key, []byte("v1")); err != nil {
		t.Fatal(err)
	}
	rec, err := kv.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	rec.Value[0] = 'X'

	again, err := kv.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if string(again.Value) != "v1" {
		t.Fatalf("caller mutation leaked into store: %q", again.Value)
	}
}

package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemory_SetGetDelete(t *testing.T) {
	c := NewMemory(time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Fatal("phantom key")
	}
	c.Set("k", []byte("v"), time.Minute)
	v, ok := c.Get("k")
	if !ok || string(v) != "v" {
		t.Fatalf("get: %q %v", v, ok)
	}
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("key survives delete")
	}
	// Deleting a missing key is a no-op.
	c.Delete("k")
}

func TestTakeOnce(t *testing.T) {
	c := NewMemory(time.Minute)
	c.Set("nonce", []byte("m"), time.Minute)

	v, ok := c.TakeOnce("nonce")
	if !ok || string(v) != "m" {
		t.Fatalf("first take: %q %v", v, ok)
	}
	if _, ok := c.TakeOnce("nonce"); ok {
		t.Fatal("nonce consumed twice")
	}
}

func TestTakeOnce_ConcurrentSingleWinner(t *testing.T) {
	c := NewMemory(time.Minute)

	for round := 0; round < 200; round++ {
		c.Set("nonce", []byte("m"), time.Minute)

		var wins int32
		var start, done sync.WaitGroup
		start.Add(1)
		for g := 0; g < 8; g++ {
			done.Add(1)
			go func() {
				defer done.Done()
				start.Wait()
				if _, ok := c.TakeOnce("nonce"); ok {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		start.Done()
		done.Wait()
		if wins != 1 {
			t.Fatalf("round %d: %d winners for one nonce", round, wins)
		}
	}
}

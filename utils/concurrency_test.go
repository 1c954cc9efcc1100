package utils

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeySetNoDuplicates(t *testing.T) {
	s := NewKeySet()

	added := s.Add("immoscout24:123")
	if !added {
		t.Error("first Add should return true")
	}

	added = s.Add("immoscout24:123")
	if added {
		t.Error("second Add of same key should return false")
	}

	if !s.Contains("immoscout24:123") {
		t.Error("Contains should report an added key")
	}

	if s.Size() != 1 {
		t.Errorf("size: got %d, want 1", s.Size())
	}

	s.Reset()
	if s.Size() != 0 || !s.Add("immoscout24:123") {
		t.Error("Reset should forget every key")
	}
}

func TestKeySetConcurrency(t *testing.T) {
	s := NewKeySet()
	var added int64

	pool := NewWorkerPool(10)
	for i := 0; i < 100; i++ {
		key := "https://www.immowelt.de/expose/same"
		pool.Submit(func() {
			if s.Add(key) {
				atomic.AddInt64(&added, 1)
			}
		})
	}
	pool.Wait()

	if added != 1 {
		t.Errorf("expected exactly 1 successful add, got %d", added)
	}
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	const limit = 2
	pool := NewWorkerPool(limit)

	var mu sync.Mutex
	running, peak := 0, 0

	for i := 0; i < 8; i++ {
		pool.Submit(func() {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	pool.Wait()

	if peak > limit {
		t.Errorf("peak concurrency %d exceeds limit %d", peak, limit)
	}
	if peak == 0 {
		t.Error("no job ran")
	}
}

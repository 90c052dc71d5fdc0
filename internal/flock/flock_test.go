package flock

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestAcquireCreatesLockFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", ".lock")
	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	again, err := Acquire(path)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	_ = again.Release()
}

func TestAcquireSerialisesHolders(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ".lock")
	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		second, err := Acquire(path)
		if err != nil {
			t.Errorf("second acquire: %v", err)
			return
		}
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		_ = second.Release()
	}()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	order = append(order, "first")
	mu.Unlock()
	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	<-done
	if len(order) != 2 || order[0] != "first" {
		t.Fatalf("second holder ran before the first released: %v", order)
	}
}

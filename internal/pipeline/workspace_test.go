package pipeline

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestWorkspaceAllocateAndRelease(t *testing.T) {
	manager, err := NewWorkspaceManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	ws, err := manager.Allocate()
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if filepath.Dir(ws.Dir()) != manager.Root() {
		t.Fatalf("workspace %q not under root %q", ws.Dir(), manager.Root())
	}
	if err := os.WriteFile(filepath.Join(ws.Dir(), "scratch"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write scratch file: %v", err)
	}

	if err := ws.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Fatalf("workspace should be removed, stat err = %v", err)
	}
	// Releasing again is a no-op.
	if err := ws.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
}

func TestWorkspaceAllocateConcurrent(t *testing.T) {
	manager, err := NewWorkspaceManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	const n = 50
	dirs := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, err := manager.Allocate()
			if err != nil {
				t.Errorf("allocate: %v", err)
				return
			}
			dirs <- ws.Dir()
		}()
	}
	wg.Wait()
	close(dirs)

	seen := make(map[string]bool)
	for dir := range dirs {
		if seen[dir] {
			t.Fatalf("duplicate workspace directory %q", dir)
		}
		seen[dir] = true
	}
}

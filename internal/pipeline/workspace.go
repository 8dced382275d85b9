package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Workspace is the private temporary directory owned by a single transcode
// invocation. It holds the spooled input and the transcoder's output and is
// destroyed, recursively, at every terminal state.
type Workspace struct {
	dir string

	mu       sync.Mutex
	released bool
}

// Dir returns the workspace root directory.
func (w *Workspace) Dir() string { return w.dir }

// Release removes the workspace tree. It is idempotent: calling it after a
// previous release is a no-op.
func (w *Workspace) Release() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.released {
		return nil
	}
	w.released = true
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.dir, err)
	}
	return nil
}

// WorkspaceManager allocates collision-free workspaces under a shared temp
// root. Allocation is atomic with respect to name choice: two concurrent
// calls never receive the same directory.
type WorkspaceManager struct {
	root string
}

// NewWorkspaceManager prepares root as the parent for all workspaces. An
// empty root falls back to the system temp directory.
func NewWorkspaceManager(root string) (*WorkspaceManager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "coursemedia")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("prepare workspace root: %w", err)
	}
	return &WorkspaceManager{root: absRoot}, nil
}

// Root returns the directory workspaces are allocated under.
func (m *WorkspaceManager) Root() string { return m.root }

// Allocate creates a fresh workspace directory named by the current time plus
// a random suffix chosen atomically by the filesystem.
func (m *WorkspaceManager) Allocate() (*Workspace, error) {
	pattern := fmt.Sprintf("upload-%d-*", time.Now().UnixMilli())
	dir, err := os.MkdirTemp(m.root, pattern)
	if err != nil {
		return nil, fmt.Errorf("allocate workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

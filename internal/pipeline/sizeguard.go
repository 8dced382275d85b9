package pipeline

import (
	"io"
	"sync"
)

// RequestBudget tracks the cumulative byte count across every part of one
// request. It is shared by the guarded readers of concurrently processed
// parts; the first reader to push the total past the limit receives a
// RequestTooLargeError naming every file that contributed.
type RequestBudget struct {
	limit int64

	mu    sync.Mutex
	used  int64
	files []string
}

func NewRequestBudget(limit int64) *RequestBudget {
	return &RequestBudget{limit: limit}
}

// Register records a file as part of the request before any of its bytes are
// counted, so overflow errors can name parts that never started streaming.
func (b *RequestBudget) Register(name string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.files = append(b.files, name)
	b.mu.Unlock()
}

func (b *RequestBudget) add(n int64) error {
	if b == nil || b.limit <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used += n
	if b.used > b.limit {
		return &RequestTooLargeError{
			Files: append([]string(nil), b.files...),
			Size:  b.used,
			Limit: b.limit,
		}
	}
	return nil
}

// CheckDeclared rejects the request up front when the declared part sizes
// already overflow the aggregate ceiling. Parts with unknown sizes contribute
// nothing here; they are still counted while streaming.
func (b *RequestBudget) CheckDeclared(parts []Part) error {
	if b == nil || b.limit <= 0 {
		return nil
	}
	var declared int64
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.DeclaredSize > 0 {
			declared += part.DeclaredSize
			names = append(names, part.FileName)
		}
	}
	if declared > b.limit {
		return &RequestTooLargeError{Files: names, Size: declared, Limit: b.limit}
	}
	return nil
}

// guardedReader counts bytes as they are read and aborts the stream the
// moment either the per-file or the aggregate ceiling is crossed. It never
// needs the total size in advance.
type guardedReader struct {
	src        io.Reader
	name       string
	perFileMax int64
	budget     *RequestBudget
	count      int64
	err        error
}

// Guard wraps src so every read is accounted against the per-file ceiling and
// the shared request budget. The returned reader reports the running byte
// count via Count.
func Guard(src io.Reader, name string, perFileMax int64, budget *RequestBudget) *guardedReader {
	budget.Register(name)
	return &guardedReader{src: src, name: name, perFileMax: perFileMax, budget: budget}
}

func (g *guardedReader) Read(p []byte) (int, error) {
	if g.err != nil {
		return 0, g.err
	}
	n, err := g.src.Read(p)
	if n > 0 {
		g.count += int64(n)
		if g.perFileMax > 0 && g.count > g.perFileMax {
			g.err = &FileTooLargeError{Name: g.name, Size: g.count, Limit: g.perFileMax}
			return n, g.err
		}
		if budgetErr := g.budget.add(int64(n)); budgetErr != nil {
			g.err = budgetErr
			return n, g.err
		}
	}
	return n, err
}

// Count reports the bytes observed so far.
func (g *guardedReader) Count() int64 { return g.count }

// Violation returns the size-guard error that terminated the stream, if any.
func (g *guardedReader) Violation() error { return g.err }

package overlay

import (
	"sync"

	"github.com/blueprintfs/blueprintfs/pkg/types"
)

// openFile is one live file handle.
type openFile struct {
	file  types.File
	path  string
	flags int
}

// handleTable issues uint64 handle identifiers for open files. Identifiers
// start at one so zero never names a live handle.
type handleTable struct {
	mu   sync.Mutex
	next uint64
	open map[uint64]*openFile
}

func newHandleTable() *handleTable {
	return &handleTable{next: 1, open: make(map[uint64]*openFile)}
}

func (t *handleTable) insert(file types.File, path string, flags int) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	t.open[id] = &openFile{file: file, path: path, flags: flags}
	return id
}

func (t *handleTable) get(id uint64) (*openFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.open[id]
	return f, ok
}

func (t *handleTable) remove(id uint64) (*openFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.open[id]
	if ok {
		delete(t.open, id)
	}
	return f, ok
}

func (t *handleTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// drain removes and returns every live handle, for shutdown.
func (t *handleTable) drain() []*openFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	files := make([]*openFile, 0, len(t.open))
	for _, f := range t.open {
		files = append(files, f)
	}
	t.open = make(map[uint64]*openFile)
	return files
}

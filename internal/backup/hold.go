package backup

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Hold pins the backups taken through it so retention cannot evict them
// until Release. A path may temporarily keep more than Retention backups
// while a Hold is open.
type Hold struct {
	m *Manager

	mu       sync.Mutex
	ids      []string
	released bool
}

// Hold opens a new, empty Hold.
func (m *Manager) Hold() *Hold {
	return &Hold{m: m}
}

// Backup is Manager.Backup with the new backup pinned by h.
func (h *Hold) Backup(path string) (*Handle, error) {
	h.mu.Lock()
	released := h.released
	h.mu.Unlock()
	if released {
		return nil, fmt.Errorf("backup hold already released")
	}
	return h.m.backup(path, h)
}

// IDs returns the backups pinned by h, oldest first.
func (h *Hold) IDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ids...)
}

// add records id and reports whether h is still open to pin it.
func (h *Hold) add(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return false
	}
	h.ids = append(h.ids, id)
	return true
}

// Release unpins every backup of h and applies retention to their paths.
// Calling it more than once is a no-op.
func (h *Hold) Release() {
	h.mu.Lock()
	ids := h.ids
	h.ids = nil
	h.released = true
	h.mu.Unlock()

	if len(ids) > 0 {
		h.m.release(ids)
	}
}

func (m *Manager) release(ids []string) {
	m.mu.Lock()
	paths := make(map[string]struct{})
	for _, id := range ids {
		if m.pinned[id] <= 1 {
			delete(m.pinned, id)
		} else {
			m.pinned[id]--
		}
		var h Handle
		if err := m.index.Get(id, &h); err == nil {
			paths[h.Path] = struct{}{}
		}
	}

	var evicted []*Handle
	for path := range paths {
		dropped, err := m.evictLocked(path)
		evicted = append(evicted, dropped...)
		if err != nil {
			m.logger.Warn("applying retention after release", zap.String("path", path), zap.Error(err))
		}
	}
	m.mu.Unlock()

	m.discard(evicted)
}

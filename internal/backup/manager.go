// Package backup keeps bounded copies of file content taken before a file is
// overwritten or deleted, and writes them back on request.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"filesafe/internal/atomic"
	"filesafe/internal/content"
	ferrors "filesafe/internal/errors"
	"filesafe/internal/storage"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	DefaultRetention = 10

	// cacheMaxItemSize bounds what the content cache holds so a handful of
	// huge files cannot pin memory.
	cacheMaxItemSize = 4 << 20
)

var errClosed = errors.New("backup manager closed")

// Handle identifies one retained backup.
type Handle struct {
	ID         string      `json:"id"`
	Path       string      `json:"path"`     // owning file, absolute
	Location   string      `json:"location"` // backup file inside the store
	Digest     string      `json:"digest"`   // digest of the original bytes
	Size       int64       `json:"size"`
	Mode       fs.FileMode `json:"mode,omitempty"` // permission bits of the original
	Compressed bool        `json:"compressed"`
	Seq        uint64      `json:"seq"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (h *Handle) GetID() string {
	return h.ID
}

// Options configures Manager behavior
type Options struct {
	Dir       string // Backup directory
	Retention int    // Backups kept per owning path
	Compress  bool   // zstd-compress qualifying backups
	CacheSize int    // Number of backup payloads to cache
}

// Manager copies files into a backup directory and restores them. Each
// owning path keeps at most Retention backups; the oldest are evicted unless
// a Hold still references them.
type Manager struct {
	dir       string
	retention int
	compress  bool
	index     storage.Store
	cache     *lru.Cache[string, []byte]
	verifier  *content.Verifier
	logger    *zap.Logger

	codecOnce sync.Once
	codec     *codec
	codecErr  error

	// mu serializes index bookkeeping only; file I/O happens outside it.
	mu     sync.Mutex
	seq    uint64
	pinned map[string]int // backup ID -> number of holds referencing it
}

// New creates a Manager storing backups under opts.Dir and recording them in index.
func New(index storage.Store, opts Options, logger *zap.Logger) (*Manager, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if index == nil {
		return nil, fmt.Errorf("backup index is required")
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving backup directory: %w", err)
	}
	if err := os.MkdirAll(dir, atomic.DirPerm); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	m := &Manager{
		dir:       dir,
		retention: opts.Retention,
		compress:  opts.Compress,
		index:     index,
		cache:     cache,
		verifier:  content.NewVerifier(),
		logger:    logger.Named("backup"),
		pinned:    make(map[string]int),
	}

	if opts.Compress {
		if _, err := m.codecFor(); err != nil {
			return nil, err
		}
	}

	// Continue the sequence of a persistent index.
	handles, err := m.all()
	if err != nil {
		return nil, fmt.Errorf("loading backup index: %w", err)
	}
	for _, h := range handles {
		if h.Seq > m.seq {
			m.seq = h.Seq
		}
	}

	return m, nil
}

// Dir returns the absolute backup directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Backup copies the current content of path into the store.
func (m *Manager) Backup(path string) (*Handle, error) {
	return m.backup(path, nil)
}

func (m *Manager) backup(path string, hold *Hold) (*Handle, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, ferrors.IO("backup", path, err)
	}

	data, mode, err := readFile(absPath)
	if err != nil {
		return nil, ferrors.IO("backup", absPath, err)
	}

	id := uuid.New().String()
	h := &Handle{
		ID:        id,
		Path:      absPath,
		Location:  filepath.Join(m.dir, id+"-"+filepath.Base(absPath)),
		Digest:    content.Digest(data),
		Size:      int64(len(data)),
		Mode:      mode,
		CreatedAt: time.Now(),
	}

	payload := data
	if m.compress {
		c, err := m.codecFor()
		if err != nil {
			return nil, ferrors.IO("backup", absPath, err)
		}
		if c.shouldCompress(absPath, len(data)) {
			payload = c.compress(data)
			h.Compressed = true
		}
	}

	if err := atomic.WriteFile(h.Location, payload, 0600); err != nil {
		return nil, ferrors.IO("backup", absPath, err)
	}

	evicted, err := m.record(h, hold)
	if err != nil {
		_ = os.Remove(h.Location)
		return nil, ferrors.IO("backup", absPath, err)
	}

	if len(data) <= cacheMaxItemSize {
		m.cache.Add(id, data)
	}
	m.discard(evicted)

	m.logger.Debug("backup created",
		zap.String("backup_id", id),
		zap.String("path", absPath),
		zap.String("digest", h.Digest),
		zap.Int64("size", h.Size),
		zap.Bool("compressed", h.Compressed),
		zap.Int("evicted", len(evicted)))

	return h, nil
}

// readFile returns the content and permission bits of path.
func readFile(path string) ([]byte, fs.FileMode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, err
	}
	return data, fi.Mode().Perm(), nil
}

// record stores h in the index, pins it for hold, and drops unpinned entries
// for h.Path beyond the retention count. It returns the dropped handles.
func (m *Manager) record(h *Handle, hold *Hold) ([]*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	h.Seq = m.seq
	if err := m.index.Create(h); err != nil {
		return nil, fmt.Errorf("recording backup: %w", err)
	}
	if hold != nil && hold.add(h.ID) {
		m.pinned[h.ID]++
	}

	return m.evictLocked(h.Path)
}

// evictLocked removes the index entries of absPath that fall outside the
// retention window and are not pinned. m.mu must be held.
func (m *Manager) evictLocked(absPath string) ([]*Handle, error) {
	handles, err := m.forPath(absPath)
	if err != nil {
		return nil, err
	}
	if len(handles) <= m.retention {
		return nil, nil
	}

	var evicted []*Handle
	for _, old := range handles[m.retention:] {
		if m.pinned[old.ID] > 0 {
			continue
		}
		if err := m.index.Delete(old.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return evicted, fmt.Errorf("evicting backup %s: %w", old.ID, err)
		}
		evicted = append(evicted, old)
	}
	return evicted, nil
}

// discard drops the cached payloads and files of handles already removed
// from the index.
func (m *Manager) discard(handles []*Handle) {
	for _, old := range handles {
		m.cache.Remove(old.ID)
		if err := os.Remove(old.Location); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("removing evicted backup",
				zap.String("backup_id", old.ID),
				zap.String("location", old.Location),
				zap.Error(err))
		}
	}
}

// Get returns the handle for id, or a BackupNotFound error.
func (m *Manager) Get(id string) (*Handle, error) {
	var h Handle
	if err := m.index.Get(id, &h); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ferrors.BackupNotFound(id)
		}
		return nil, ferrors.IO("backup lookup", "", err)
	}
	if !content.IsValidDigest(h.Digest) {
		return nil, ferrors.Integrity(h.Location, h.Digest, "")
	}
	return &h, nil
}

// List returns the retained backups of path, newest first.
func (m *Manager) List(path string) ([]*Handle, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return m.forPath(absPath)
}

// Read returns the original bytes held by backup id.
func (m *Manager) Read(id string) ([]byte, error) {
	h, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return m.load(h)
}

// Restore writes the backed-up content of h back to its owning path through
// a temp file and rename. Evicted or unknown handles fail with BackupNotFound.
func (m *Manager) Restore(h *Handle) error {
	if h == nil {
		return ferrors.BackupNotFound("")
	}
	current, err := m.Get(h.ID)
	if err != nil {
		return err
	}

	data, err := m.load(current)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(current.Path), atomic.DirPerm); err != nil {
		return ferrors.IO("restore", current.Path, err)
	}
	perm := current.Mode.Perm()
	if perm == 0 {
		perm = atomic.FilePerm
	}
	if err := atomic.WriteFile(current.Path, data, perm); err != nil {
		return ferrors.IO("restore", current.Path, err)
	}
	if err := m.verifier.VerifyDigest(current.Path, current.Digest); err != nil {
		m.logger.Error("restored content failed verification",
			zap.String("backup_id", current.ID),
			zap.String("path", current.Path),
			zap.Error(err))
		return err
	}

	m.logger.Debug("backup restored",
		zap.String("backup_id", current.ID),
		zap.String("path", current.Path))
	return nil
}

// Prune removes every retained backup of path that no Hold references and
// returns how many were removed.
func (m *Manager) Prune(path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}

	var pruned []*Handle
	m.mu.Lock()
	handles, err := m.forPath(absPath)
	if err == nil {
		for _, h := range handles {
			if m.pinned[h.ID] > 0 {
				continue
			}
			if delErr := m.index.Delete(h.ID); delErr != nil && !errors.Is(delErr, storage.ErrNotFound) {
				err = delErr
				break
			}
			pruned = append(pruned, h)
		}
	}
	m.mu.Unlock()

	m.discard(pruned)
	if err != nil {
		return len(pruned), fmt.Errorf("pruning backups of %s: %w", absPath, err)
	}
	return len(pruned), nil
}

// Close releases compression resources.
func (m *Manager) Close() {
	m.codecOnce.Do(func() { m.codecErr = errClosed })
	if m.codec != nil {
		m.codec.close()
	}
}

// codecFor returns the shared codec, creating it on first use. Handles
// recorded with compression stay readable after compression is turned off.
func (m *Manager) codecFor() (*codec, error) {
	m.codecOnce.Do(func() {
		m.codec, m.codecErr = newCodec(DefaultCompressionOptions())
	})
	return m.codec, m.codecErr
}

// load returns the original bytes of h and checks them against h.Digest.
func (m *Manager) load(h *Handle) ([]byte, error) {
	if data, ok := m.cache.Get(h.ID); ok {
		return data, nil
	}

	data, err := os.ReadFile(h.Location)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.BackupNotFound(h.ID)
		}
		return nil, ferrors.IO("backup read", h.Location, err)
	}

	if h.Compressed {
		c, err := m.codecFor()
		if err != nil {
			return nil, ferrors.IO("backup read", h.Location, err)
		}
		data, err = c.decompress(data)
		if err != nil {
			return nil, ferrors.IO("backup read", h.Location, err)
		}
	}

	if got := content.Digest(data); got != h.Digest {
		return nil, ferrors.Integrity(h.Location, h.Digest, got)
	}

	if len(data) <= cacheMaxItemSize {
		m.cache.Add(h.ID, data)
	}
	return data, nil
}

func (m *Manager) all() ([]*Handle, error) {
	var handles []*Handle
	if err := m.index.List(&handles); err != nil {
		return nil, err
	}
	return handles, nil
}

// forPath returns the handles owned by absPath, newest first.
func (m *Manager) forPath(absPath string) ([]*Handle, error) {
	handles, err := m.all()
	if err != nil {
		return nil, err
	}

	var out []*Handle
	for _, h := range handles {
		if h.Path == absPath {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq > out[j].Seq })
	return out, nil
}

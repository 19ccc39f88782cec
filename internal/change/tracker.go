// Package change watches directories for edits made outside filesafe and
// captures a backup of each changed file.
package change

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"filesafe/internal/atomic"
	"filesafe/internal/backup"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const DefaultInterval = time.Second

type Options struct {
	// Interval is the minimum spacing between two backups of one path.
	Interval time.Duration
	// IgnoreDirs are directory names never descended into.
	IgnoreDirs []string
	// OnBackup is called after each captured backup.
	OnBackup func(path string, h *backup.Handle)
}

// Tracker backs up files as they change on disk.
type Tracker struct {
	backups    *backup.Manager
	watcher    *fsnotify.Watcher
	ignoreDirs map[string]bool
	interval   time.Duration
	onBackup   func(string, *backup.Handle)
	logger     *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	done chan struct{}
}

func New(backups *backup.Manager, opts Options, logger *zap.Logger) (*Tracker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	t := &Tracker{
		backups: backups,
		watcher: watcher,
		ignoreDirs: map[string]bool{
			".git":         true,
			".filesafe":    true,
			"node_modules": true,
			"vendor":       true,
		},
		interval: opts.Interval,
		onBackup: opts.OnBackup,
		logger:   logger.Named("tracker"),
		limiters: make(map[string]*rate.Limiter),
		done:     make(chan struct{}),
	}
	for _, d := range opts.IgnoreDirs {
		t.ignoreDirs[d] = true
	}

	go t.watchLoop()
	return t, nil
}

// Add watches root and every directory below it.
func (t *Tracker) Add(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", root, err)
	}

	return filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != absRoot && t.ignoredDir(path) {
			return filepath.SkipDir
		}
		if err := t.watcher.Add(path); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

// Close stops watching. It waits for the event loop to exit.
func (t *Tracker) Close() error {
	err := t.watcher.Close()
	<-t.done
	return err
}

func (t *Tracker) watchLoop() {
	defer close(t.done)
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.handleEvent(event)
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (t *Tracker) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		// Gone before we got to it.
		return
	}

	if info.IsDir() {
		if event.Has(fsnotify.Create) && !t.ignoredDir(event.Name) {
			if err := t.Add(event.Name); err != nil {
				t.logger.Error("adding new directory to watcher", zap.Error(err))
			}
		}
		return
	}

	if !info.Mode().IsRegular() || t.skipFile(event.Name) {
		return
	}
	if !t.allow(event.Name) {
		t.logger.Debug("backup rate limited", zap.String("path", event.Name))
		return
	}

	h, err := t.backups.Backup(event.Name)
	if err != nil {
		t.logger.Warn("capturing external change", zap.String("path", event.Name), zap.Error(err))
		return
	}
	t.logger.Debug("external change captured",
		zap.String("path", event.Name),
		zap.String("backup_id", h.ID))
	if t.onBackup != nil {
		t.onBackup(event.Name, h)
	}
}

// skipFile reports whether path is filesafe's own temp file or lives in an
// ignored directory.
func (t *Tracker) skipFile(path string) bool {
	if atomic.IsTemp(path) {
		return true
	}
	return t.ignoredDir(filepath.Dir(path))
}

func (t *Tracker) ignoredDir(path string) bool {
	if within(path, t.backups.Dir()) {
		return true
	}
	for _, part := range strings.Split(filepath.Clean(path), string(filepath.Separator)) {
		if t.ignoreDirs[part] {
			return true
		}
	}
	return false
}

func (t *Tracker) allow(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.limiters[path]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.interval), 1)
		t.limiters[path] = l
	}
	return l.Allow()
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

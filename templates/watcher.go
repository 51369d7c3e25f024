package templates

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"scriptkit/internal/logging"
)

// TemplateCache caches resolved template text by absolute path and drops
// entries when the filesystem watcher reports a change to them. Mtimes are
// kept alongside as validation metadata so a Get can reject a stale entry
// even before the watcher delivers its event.
type TemplateCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	watched map[string]bool // directories added to the watcher

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool

	log *zap.Logger
}

type cacheEntry struct {
	text  string
	mtime time.Time
}

// NewTemplateCache returns a started cache. Stop must be called to release
// the watcher.
func NewTemplateCache() (*TemplateCache, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	c := &TemplateCache{
		entries: make(map[string]cacheEntry),
		watched: make(map[string]bool),
		watcher: w,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		running: true,
		log:     logging.L(logging.CategoryFiles),
	}
	go c.loop()
	return c, nil
}

// Get returns the cached text for path when its mtime still matches.
func (c *TemplateCache) Get(path string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[path]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	st, err := os.Stat(path)
	if err != nil || !st.ModTime().Equal(entry.mtime) {
		c.Invalidate(path)
		return "", false
	}
	return entry.text, true
}

// Put stores the resolved text for path and starts watching its directory.
func (c *TemplateCache) Put(path, text string) {
	st, err := os.Stat(path)
	if err != nil {
		return
	}
	dir := filepath.Dir(path)
	c.mu.Lock()
	c.entries[path] = cacheEntry{text: text, mtime: st.ModTime()}
	needWatch := !c.watched[dir]
	if needWatch {
		c.watched[dir] = true
	}
	c.mu.Unlock()
	if needWatch {
		if err := c.watcher.Add(dir); err != nil {
			c.log.Warn("watch template dir", zap.String("dir", dir), zap.Error(err))
		}
	}
}

// Invalidate drops the entry for path.
func (c *TemplateCache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Len reports the number of live entries.
func (c *TemplateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stop shuts the watcher down and waits for the event loop to exit. Safe to
// call more than once.
func (c *TemplateCache) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()
	close(c.stopCh)
	<-c.doneCh
	_ = c.watcher.Close()
}

func (c *TemplateCache) loop() {
	defer close(c.doneCh)
	for {
		select {
		case <-c.stopCh:
			return
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				c.Invalidate(ev.Name)
				c.log.Debug("template invalidated",
					zap.String("path", ev.Name),
					zap.String("op", ev.Op.String()))
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Warn("template watcher", zap.Error(err))
		}
	}
}

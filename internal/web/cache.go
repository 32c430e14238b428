package web

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ptgbot/internal/state"
)

// documentCache reads the persisted document on demand and keeps the
// parsed form until the file changes. The bot replaces the file via
// rename, so the parent directory is watched and events are matched by
// file name.
type documentCache struct {
	path    string
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	raw    []byte
	doc    *state.Document
	loaded bool
}

func newDocumentCache(path string, logger *zap.Logger) (*documentCache, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	c := &documentCache{
		path:    path,
		logger:  logger,
		watcher: watcher,
	}
	go c.watch()
	return c, nil
}

func (c *documentCache) watch() {
	name := filepath.Base(c.path)
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				c.invalidate()
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("database watcher error", zap.Error(err))
			c.invalidate()
		}
	}
}

func (c *documentCache) invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}

func (c *documentCache) load() error {
	if c.loaded {
		return nil
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return err
	}
	var doc state.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", c.path, err)
	}
	c.raw = raw
	c.doc = &doc
	c.loaded = true
	return nil
}

// Raw returns the document bytes as last persisted.
func (c *documentCache) Raw() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(); err != nil {
		return nil, err
	}
	return c.raw, nil
}

// Document returns the parsed document.
func (c *documentCache) Document() (*state.Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.load(); err != nil {
		return nil, err
	}
	return c.doc, nil
}

// Close stops the file watcher.
func (c *documentCache) Close() {
	c.watcher.Close()
}

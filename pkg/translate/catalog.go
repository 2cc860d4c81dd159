// Package translate rewrites node display names for the caller's locale at
// read time from a YAML catalog on disk.
package translate

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/warden/pkg/observability"
)

// Catalog maps locale -> node code -> translated display name.
//
// The catalog file has the shape:
//
//	zh-CN:
//	  role.admin: "管理员"
//	de:
//	  role.admin: "Administrator"
//
// A missing locale or code falls back to the stored name. The file is
// re-read on change, so translations can be updated without a restart.
type Catalog struct {
	path   string
	logger *observability.Logger

	mu      sync.RWMutex
	entries map[string]map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewCatalog loads the catalog file and starts watching it for changes. An
// empty path yields a catalog that always falls back to the original name.
func NewCatalog(path string, logger *observability.Logger) (*Catalog, error) {
	c := &Catalog{
		path:    path,
		logger:  logger,
		entries: map[string]map[string]string{},
		done:    make(chan struct{}),
	}

	if path == "" {
		return c, nil
	}

	if err := c.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch catalog %s: %w", path, err)
	}
	c.watcher = watcher
	go c.watch()

	return c, nil
}

func (c *Catalog) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("failed to read catalog %s: %w", c.path, err)
	}

	entries := map[string]map[string]string{}
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse catalog %s: %w", c.path, err)
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

func (c *Catalog) watch() {
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.reload(); err != nil {
				// Keep serving the previous catalog on a bad write.
				c.logger.WithError(err).Warn("catalog reload failed, keeping previous translations")
				continue
			}
			c.logger.Infof("translation catalog reloaded from %s", c.path)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.WithError(err).Warn("catalog watcher error")
		}
	}
}

// Translate returns the display name for code in the context locale (or the
// explicitly passed locale), falling back to name when none exists.
func (c *Catalog) Translate(ctx context.Context, locale, code, name string) string {
	if locale == "" {
		locale = observability.GetLocale(ctx)
	}
	if locale == "" {
		return name
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if translated, ok := c.lookup(locale, code); ok {
		return translated
	}
	// "zh-CN" falls back to "zh".
	if base, _, found := strings.Cut(locale, "-"); found {
		if translated, ok := c.lookup(base, code); ok {
			return translated
		}
	}
	return name
}

func (c *Catalog) lookup(locale, code string) (string, bool) {
	byCode, ok := c.entries[locale]
	if !ok {
		return "", false
	}
	translated, ok := byCode[code]
	return translated, ok && translated != ""
}

// Close stops the file watcher.
func (c *Catalog) Close() error {
	close(c.done)
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

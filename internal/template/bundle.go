// Package template implements the application template bundle store and
// watcher (C8) and the rendering engine built on top of it (C9).
package template

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/rekcod/rekcod/infrastructure/logging"
)

// QAField describes one operator-facing prompt in a bundle's manifest.
type QAField struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Label        string `yaml:"label"`
	Type         string `yaml:"type"`
	DefaultValue string `yaml:"default_value"`
}

// Info is the parsed application.yaml manifest (§3).
type Info struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Version     string    `yaml:"version"`
	QA          []QAField `yaml:"qa"`
}

// Bundle is one loaded application template directory: <data>/app/<id>/.
type Bundle struct {
	ID      string
	Root    string
	TmplDir string

	mu     sync.RWMutex
	info   Info
	tmpls  []string
	log    *logging.Logger
	cancel chan struct{}
}

// ProjectDir returns the bundle's optional compose working directory, or ""
// if none exists.
func (b *Bundle) ProjectDir() string {
	dir := filepath.Join(b.Root, "project")
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		return dir
	}
	return ""
}

// Info returns the bundle's current manifest, safe for concurrent readers.
func (b *Bundle) Info() Info {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.info
}

// Templates returns the ordered list of renderable template file basenames.
func (b *Bundle) Templates() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.tmpls))
	copy(out, b.tmpls)
	return out
}

// Store owns every loaded bundle, keyed by id (§3).
type Store struct {
	root string
	log  *logging.Logger

	mu      sync.RWMutex
	bundles map[string]*Bundle
}

// NewStore scans appRoot at startup, loading one Bundle per subdirectory and
// arming its filesystem watcher (§4.6).
func NewStore(appRoot string, log *logging.Logger) (*Store, error) {
	s := &Store{root: appRoot, log: log, bundles: make(map[string]*Bundle)}

	entries, err := os.ReadDir(appRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("scan app root: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		b, err := loadBundle(appRoot, entry.Name(), log)
		if err != nil {
			if log != nil {
				log.WithError(err).WithFields(map[string]interface{}{"bundle": entry.Name()}).
					Warn("skipping app bundle that failed to load")
			}
			continue
		}
		s.bundles[b.ID] = b
		b.watch()
	}

	return s, nil
}

// Get returns the bundle for id, or nil if unknown.
func (s *Store) Get(id string) *Bundle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundles[id]
}

// List returns every loaded bundle's current info, keyed by id.
func (s *Store) List() map[string]Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Info, len(s.bundles))
	for id, b := range s.bundles {
		out[id] = b.Info()
	}
	return out
}

// Close stops every bundle's watcher.
func (s *Store) Close() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bundles {
		close(b.cancel)
	}
}

func loadBundle(appRoot, id string, log *logging.Logger) (*Bundle, error) {
	root := filepath.Join(appRoot, id)
	tmplDir := filepath.Join(root, "template")

	info, err := parseManifest(root)
	if err != nil {
		return nil, err
	}

	tmpls, err := scanTemplates(tmplDir)
	if err != nil {
		return nil, err
	}

	return &Bundle{
		ID:      id,
		Root:    root,
		TmplDir: tmplDir,
		info:    info,
		tmpls:   tmpls,
		log:     log,
		cancel:  make(chan struct{}),
	}, nil
}

func parseManifest(root string) (Info, error) {
	data, err := os.ReadFile(filepath.Join(root, "application.yaml"))
	if err != nil {
		return Info{}, fmt.Errorf("read application.yaml: %w", err)
	}
	var info Info
	if err := yaml.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("parse application.yaml: %w", err)
	}
	return info, nil
}

func scanTemplates(tmplDir string) ([]string, error) {
	entries, err := os.ReadDir(tmplDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan template dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// watch arms a non-recursive watcher on application.yaml. On every write it
// re-parses the manifest and the template directory, swapping the cached
// values under the write lock; parse failures are logged and the prior
// value retained (§4.6).
func (b *Bundle) watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		if b.log != nil {
			b.log.WithError(err).Warn("app bundle watcher unavailable")
		}
		return
	}

	manifestPath := filepath.Join(b.Root, "application.yaml")
	if err := watcher.Add(manifestPath); err != nil {
		watcher.Close()
		if b.log != nil {
			b.log.WithError(err).WithFields(map[string]interface{}{"bundle": b.ID}).
				Warn("failed to watch application.yaml")
		}
		return
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-b.cancel:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				b.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if b.log != nil {
					b.log.WithError(err).WithFields(map[string]interface{}{"bundle": b.ID}).
						Warn("app bundle watcher error")
				}
			}
		}
	}()
}

func (b *Bundle) reload() {
	info, err := parseManifest(b.Root)
	if err != nil {
		if b.log != nil {
			b.log.WithError(err).WithFields(map[string]interface{}{"bundle": b.ID}).
				Warn("app bundle manifest reload failed, keeping prior value")
		}
		return
	}
	tmpls, err := scanTemplates(b.TmplDir)
	if err != nil {
		if b.log != nil {
			b.log.WithError(err).WithFields(map[string]interface{}{"bundle": b.ID}).
				Warn("app bundle template scan failed, keeping prior value")
		}
		return
	}

	b.mu.Lock()
	b.info = info
	b.tmpls = tmpls
	b.mu.Unlock()
}

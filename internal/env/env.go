// Package env implements the global env store (C12): a KEY=VALUE blob
// persisted in the KVS store and cached in memory for C9's Env.<key> lookups.
package env

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rekcod/rekcod/internal/kvs"
)

const (
	module = "env"
	key    = "global"
)

// Store caches the parsed global env blob; writes bust the cache (§3).
type Store struct {
	store *kvs.Store

	mu     sync.RWMutex
	cached map[string]string
	loaded bool
}

// New builds a Store backed by store.
func New(store *kvs.Store) *Store {
	return &Store{store: store}
}

// All returns every KEY=VALUE pair currently set, reading through to the
// KVS store on first use and caching thereafter.
func (s *Store) All(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	if s.loaded {
		out := cloneMap(s.cached)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	row, err := s.store.SelectOne(ctx, module, strPtr(key), nil, nil)
	if err != nil && err != kvs.ErrNotFound {
		return nil, fmt.Errorf("load global env: %w", err)
	}

	var parsed map[string]string
	if err == kvs.ErrNotFound {
		parsed = map[string]string{}
	} else {
		parsed = parse(row.Value)
	}

	s.mu.Lock()
	s.cached = parsed
	s.loaded = true
	out := cloneMap(s.cached)
	s.mu.Unlock()

	return out, nil
}

// Get returns the value for name, or "" on miss (§4.7).
func (s *Store) Get(ctx context.Context, name string) (string, error) {
	all, err := s.All(ctx)
	if err != nil {
		return "", err
	}
	return all[name], nil
}

// Set replaces the entire global env blob and busts the cache.
func (s *Store) Set(ctx context.Context, vars map[string]string) error {
	value := serialize(vars)
	row := kvs.Row{Module: module, Key: key, Value: value}
	if err := s.store.InsertOrUpdate(ctx, row); err != nil {
		return fmt.Errorf("save global env: %w", err)
	}

	s.mu.Lock()
	s.cached = cloneMap(vars)
	s.loaded = true
	s.mu.Unlock()
	return nil
}

func parse(blob string) map[string]string {
	out := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(blob))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

func serialize(vars map[string]string) string {
	var b strings.Builder
	for k, v := range vars {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return b.String()
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func strPtr(s string) *string { return &s }

// Package node implements the in-memory node registry (C3): a
// reader-writer-locked cache of node records and the engine clients bound
// to them, backed by the KVS store.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rekcod/rekcod/internal/engine"
	"github.com/rekcod/rekcod/internal/kvs"
)

const module = "node"

const (
	subKeyOnline  = "online"
	subKeyOffline = "offline"
)

// Record is the persisted node attribute set (§3).
type Record struct {
	Name          string `json:"name"`
	HostName      string `json:"host_name"`
	IP            string `json:"ip"`
	Port          int    `json:"port"`
	Token         string `json:"token"`
	Version       string `json:"version"`
	Arch          string `json:"arch"`
	OS            string `json:"os"`
	OSVersion     string `json:"os_version"`
	OSLongVersion string `json:"os_long_version"`
	OSKernel      string `json:"os_kernel"`
	Status        bool   `json:"status"`
}

func (r Record) subKey() string {
	if r.Status {
		return subKeyOnline
	}
	return subKeyOffline
}

// equalAttrs reports whether two records carry the same attributes,
// ignoring nothing: registration is a no-op only when every field matches
// (§8 idempotence scenario).
func (r Record) equalAttrs(other Record) bool {
	return r == other
}

// State is one node's cached, shared runtime state (§3 NodeState).
// Multiple request handlers may hold this pointer concurrently; only the
// registry's write lock may mutate LastHeartbeat.
type State struct {
	Node          Record
	Engine        *engine.Client
	LastHeartbeat time.Time
}

// Registry is the reader-writer-locked node cache (§5).
type Registry struct {
	store *kvs.Store

	mu    sync.RWMutex
	nodes map[string]*State
}

// New constructs a Registry backed by store. The cache starts empty and is
// populated lazily.
func New(store *kvs.Store) *Registry {
	return &Registry{store: store, nodes: make(map[string]*State)}
}

// GetNode returns the cached NodeState for name, materializing it from the
// KVS store on a cache miss. Returns (nil, nil) if no such node is known.
func (r *Registry) GetNode(ctx context.Context, name string) (*State, error) {
	r.mu.RLock()
	if s, ok := r.nodes[name]; ok {
		r.mu.RUnlock()
		return s, nil
	}
	r.mu.RUnlock()

	row, err := r.store.SelectOne(ctx, module, &name, nil, nil)
	if err != nil {
		if err == kvs.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("load node %q: %w", name, err)
	}

	rec, err := decodeRecord(row.Value)
	if err != nil {
		return nil, fmt.Errorf("decode node %q: %w", name, err)
	}
	rec.Status = row.SubKey == subKeyOnline

	eng, err := engine.New(rec.IP, rec.Port, rec.Token)
	if err != nil {
		return nil, fmt.Errorf("build engine client for %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.nodes[name]; ok {
		return s, nil
	}
	s := &State{Node: rec, Engine: eng, LastHeartbeat: time.Now()}
	r.nodes[name] = s
	return s, nil
}

// GetAllNodes returns every node's current state, reconciling the cache
// against the store. Unless all is true, only online nodes (sub_key =
// "online") are read and returned.
func (r *Registry) GetAllNodes(ctx context.Context, all bool) ([]*State, error) {
	var subKey *string
	if !all {
		s := subKeyOnline
		subKey = &s
	}

	rows, err := r.store.Select(ctx, module, nil, subKey, nil)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(rows) == 0 {
		r.nodes = make(map[string]*State)
		return nil, nil
	}

	out := make([]*State, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		rec, err := decodeRecord(row.Value)
		if err != nil {
			return nil, fmt.Errorf("decode node %q: %w", row.Key, err)
		}
		rec.Status = row.SubKey == subKeyOnline
		seen[rec.Name] = struct{}{}

		if s, ok := r.nodes[rec.Name]; ok {
			s.Node = rec
			out = append(out, s)
			continue
		}

		eng, err := engine.New(rec.IP, rec.Port, rec.Token)
		if err != nil {
			return nil, fmt.Errorf("build engine client for %q: %w", rec.Name, err)
		}
		s := &State{Node: rec, Engine: eng, LastHeartbeat: time.Now()}
		r.nodes[rec.Name] = s
		out = append(out, s)
	}

	return out, nil
}

// RefreshNodeHeartbeat stamps the cached state's LastHeartbeat with the
// current time. A no-op if the node is not cached.
func (r *Registry) RefreshNodeHeartbeat(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.nodes[name]; ok {
		s.LastHeartbeat = time.Now()
	}
}

// DeleteNode removes name from the cache. The underlying KVS row, if any,
// is left untouched — the caller owns that decision.
func (r *Registry) DeleteNode(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, name)
}

// AllOnlineEngines returns every currently-online node's engine client,
// keyed by node name. It satisfies template.NodeLister for the
// Docker.PsInspect helper (§4.7), which tries each online node in turn.
func (r *Registry) AllOnlineEngines(ctx context.Context) map[string]*engine.Client {
	states, err := r.GetAllNodes(ctx, false)
	if err != nil {
		return nil
	}
	out := make(map[string]*engine.Client, len(states))
	for _, s := range states {
		out[s.Node.Name] = s.Engine
	}
	return out
}

// snapshot returns a copy of the list of cached states (the *State pointers
// themselves are shared with the cache), for the liveness monitor to sweep
// without holding the lock across KVS writes.
func (r *Registry) snapshot() []*State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*State, 0, len(r.nodes))
	for _, s := range r.nodes {
		out = append(out, s)
	}
	return out
}

// invalidate removes name so the next GetNode re-materializes it from the
// store, observing whatever was just written.
func (r *Registry) invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, name)
}

// rowFor builds the KVS row for rec, whose sub_key encodes online/offline
// status and is therefore part of the row's identity.
func rowFor(rec Record, subKey, value string) kvs.Row {
	return kvs.Row{Module: module, Key: rec.Name, SubKey: subKey, Value: value}
}

// persistNode writes rec's row, swapping sub_key when status changed. Since
// sub_key is part of the composite key, a status flip is a delete of the
// old row (any sub_key) followed by an insert of the new one, not a plain
// value update.
func persistNode(ctx context.Context, store *kvs.Store, rec Record) error {
	value, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("encode node record: %w", err)
	}
	name := rec.Name
	if err := store.Delete(ctx, module, &name, nil, nil); err != nil {
		return fmt.Errorf("delete prior node row %q: %w", name, err)
	}
	if err := store.InsertOrUpdate(ctx, rowFor(rec, rec.subKey(), value)); err != nil {
		return fmt.Errorf("insert node row %q: %w", name, err)
	}
	return nil
}

func decodeRecord(value string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func encodeRecord(rec Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

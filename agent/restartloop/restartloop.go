// Package restartloop implements the on-agent container-restart debouncer
// (§9 open question): exited containers are restarted on a ~10s tick, but
// any id seen within the last 60s is skipped to avoid a restart storm. The
// retention/pruning semantics beyond that are intentionally unasserted.
package restartloop

import (
	"context"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/rekcod/rekcod/infrastructure/logging"
)

const (
	tickInterval  = 10 * time.Second
	recentWindow  = 60 * time.Second
)

// Run restarts exited containers on the local engine at tickInterval,
// skipping any id it restarted within the last recentWindow. It blocks
// until ctx is cancelled.
func Run(ctx context.Context, cli *client.Client, log *logging.Logger) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	seen := &recentSet{entries: make(map[string]time.Time)}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx, cli, seen, log)
		}
	}
}

func sweep(ctx context.Context, cli *client.Client, seen *recentSet, log *logging.Logger) {
	f := filters.NewArgs(filters.Arg("status", "exited"))
	list, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		if log != nil {
			log.WithError(err).Warn("restartloop: failed to list exited containers")
		}
		return
	}

	for _, c := range list {
		if seen.recentlyRestarted(c.ID) {
			continue
		}
		if err := cli.ContainerStart(ctx, c.ID, container.StartOptions{}); err != nil {
			if log != nil {
				log.WithError(err).WithFields(map[string]interface{}{"container": c.ID}).
					Warn("restartloop: restart failed")
			}
			continue
		}
		seen.markRestarted(c.ID)
	}

	seen.prune()
}

// recentSet tracks ids restarted within recentWindow.
type recentSet struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func (s *recentSet) recentlyRestarted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.entries[id]
	return ok && time.Since(t) < recentWindow
}

func (s *recentSet) markRestarted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = time.Now()
}

func (s *recentSet) prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.entries {
		if time.Since(t) >= recentWindow {
			delete(s.entries, id)
		}
	}
}

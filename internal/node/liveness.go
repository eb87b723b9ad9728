package node

import (
	"context"
	"time"

	"github.com/rekcod/rekcod/infrastructure/logging"
)

const (
	sweepInterval = 5 * time.Second
	offlineAfter  = 15 * time.Second
)

// RunLiveness sweeps the registry every 5s, flipping any node whose
// heartbeat has gone stale to offline, and flipping one whose heartbeat
// resumed back to online (§4.4). It blocks until ctx is cancelled.
func RunLiveness(ctx context.Context, registry *Registry, log *logging.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepOnce(ctx, registry, log)
		}
	}
}

func sweepOnce(ctx context.Context, registry *Registry, log *logging.Logger) {
	now := time.Now()
	for _, state := range registry.snapshot() {
		since := now.Sub(state.LastHeartbeat)

		switch {
		case since > offlineAfter && state.Node.Status:
			flip(ctx, registry, state, false, log)
		case since <= offlineAfter && !state.Node.Status:
			flip(ctx, registry, state, true, log)
		}
	}
}

func flip(ctx context.Context, registry *Registry, state *State, online bool, log *logging.Logger) {
	rec := state.Node
	rec.Status = online

	if err := persistNode(ctx, registry.store, rec); err != nil {
		if log != nil {
			log.WithError(err).WithFields(map[string]interface{}{"node": rec.Name}).
				Error("liveness: failed to persist status flip")
		}
		return
	}

	state.Node = rec
	if log != nil {
		log.LogNodeEvent(ctx, rec.Name, statusEvent(online), nil)
	}
}

func statusEvent(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}

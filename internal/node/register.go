package node

import (
	"context"
)

// RegisterRequest mirrors the agent's registration body (§6). The caller's
// token is never persisted back into a response — it is write-only from the
// agent's point of view.
type RegisterRequest struct {
	Name          string
	HostName      string
	IP            string
	Port          int
	Token         string
	Version       string
	Arch          string
	OS            string
	OSVersion     string
	OSLongVersion string
	OSKernel      string
	Status        bool
}

func (req RegisterRequest) toRecord() Record {
	return Record{
		Name:          req.Name,
		HostName:      req.HostName,
		IP:            req.IP,
		Port:          req.Port,
		Token:         req.Token,
		Version:       req.Version,
		Arch:          req.Arch,
		OS:            req.OS,
		OSVersion:     req.OSVersion,
		OSLongVersion: req.OSLongVersion,
		OSKernel:      req.OSKernel,
		Status:        req.Status,
	}
}

// Register applies the upsert flow of §4.11: a no-op if the cached record
// is byte-identical, otherwise an insert (new node) or update (changed
// attributes) followed by cache invalidation, and an unconditional
// heartbeat refresh.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) error {
	rec := req.toRecord()

	r.mu.RLock()
	cached, ok := r.nodes[req.Name]
	r.mu.RUnlock()

	if ok && cached.Node.equalAttrs(rec) {
		r.RefreshNodeHeartbeat(req.Name)
		return nil
	}

	if err := persistNode(ctx, r.store, rec); err != nil {
		return err
	}

	r.invalidate(req.Name)
	r.RefreshNodeHeartbeat(req.Name)
	return nil
}

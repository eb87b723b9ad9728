// Package proxy implements the server-side agent-facing reverse proxy
// (C6): it forwards /api/node/proxy/<tail> and /rekcod.server/node/proxy/<tail>
// requests to the named node's agent, preserving protocol upgrades for the
// exec/attach hop.
package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/rekcod/rekcod/internal/node"
)

const tokenHeader = "X-REKCOD-TOKEN"

// Handler builds an http.Handler that, given the registry to resolve nodes
// against and the path prefix it is mounted under (e.g. "/api/node/proxy"),
// proxies every request to the node named by the X-NODE-NAME header.
func Handler(registry *node.Registry, mountPrefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodeName := r.Header.Get("X-NODE-NAME")
		if nodeName == "" {
			http.Error(w, "missing X-NODE-NAME header", http.StatusBadRequest)
			return
		}

		state, err := registry.GetNode(r.Context(), nodeName)
		if err != nil || state == nil {
			http.Error(w, fmt.Sprintf("unknown node %q", nodeName), http.StatusBadRequest)
			return
		}

		tail := strings.TrimPrefix(r.URL.Path, mountPrefix)
		if !strings.HasPrefix(tail, "/") {
			tail = "/" + tail
		}

		target := &url.URL{
			Scheme: "http",
			Host:   fmt.Sprintf("%s:%d", state.Node.IP, state.Node.Port),
		}

		rp := &httputil.ReverseProxy{
			Director: func(req *http.Request) {
				req.URL.Scheme = target.Scheme
				req.URL.Host = target.Host
				req.URL.Path = "/rekcod.agent" + tail
				req.Host = target.Host
				req.Header.Set(tokenHeader, state.Node.Token)
			},
		}
		rp.ServeHTTP(w, r)
	}
}

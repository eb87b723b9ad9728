// Package engineproxy implements the agent-side engine passthrough (C7):
// requests under /proxy.docker/<tail> are dispatched to the node's local
// engine socket, honoring DOCKER_HOST when it names a unix socket, and
// falling back to the platform default otherwise.
package engineproxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/sockets"
)

const mountPrefix = "/proxy.docker"

// Handler builds an http.Handler that strips the /proxy.docker prefix and
// forwards to the local engine over the resolved socket/pipe, preserving
// protocol upgrades for exec/attach.
func Handler() http.Handler {
	transport := &http.Transport{
		MaxIdleConnsPerHost:   0,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	path := resolveSocketPath(os.Getenv("DOCKER_HOST"))
	// sockets.ConfigureTransport wires the transport's DialContext to the
	// resolved unix socket or Windows named pipe.
	_ = sockets.ConfigureTransport(transport, socketNetwork(), path)

	rp := &httputil.ReverseProxy{
		Transport: transport,
		Director: func(req *http.Request) {
			req.URL.Scheme = "http"
			req.URL.Host = "engine"
			req.URL.Path = strings.TrimPrefix(req.URL.Path, mountPrefix)
			if !strings.HasPrefix(req.URL.Path, "/") {
				req.URL.Path = "/" + req.URL.Path
			}
			req.Host = "engine"
		},
	}
	return rp
}

// resolveSocketPath picks the engine socket path from DOCKER_HOST, falling
// back to the platform default when it is unset or not a unix:// URL.
func resolveSocketPath(dockerHost string) string {
	if strings.HasPrefix(dockerHost, "unix://") {
		if u, err := url.Parse(dockerHost); err == nil {
			return u.Path
		}
	}
	return defaultSocketPath()
}

func defaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\docker_engine`
	}
	return "/var/run/docker.sock"
}

func socketNetwork() string {
	if runtime.GOOS == "windows" {
		return "npipe"
	}
	return "unix"
}

// LocalClient builds a *client.Client talking directly to the same local
// engine socket Handler proxies requests to, for in-process callers (e.g.
// the restart debouncer) that need the engine API without going through
// the HTTP mount.
func LocalClient() (*client.Client, error) {
	path := resolveSocketPath(os.Getenv("DOCKER_HOST"))
	host := fmt.Sprintf("%s://%s", socketNetwork(), path)
	return client.NewClientWithOpts(client.WithHost(host), client.WithAPIVersionNegotiation())
}

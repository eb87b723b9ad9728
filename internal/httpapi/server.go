// Package httpapi implements the request surface (C11): the /api operator
// routes, the /rekcod.server inbound agent channel, and the exec terminal.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rekcod/rekcod/infrastructure/logging"
	"github.com/rekcod/rekcod/infrastructure/middleware"
	"github.com/rekcod/rekcod/internal/deploy"
	"github.com/rekcod/rekcod/internal/env"
	"github.com/rekcod/rekcod/internal/node"
	"github.com/rekcod/rekcod/internal/proxy"
	"github.com/rekcod/rekcod/internal/template"
)

// controlRequestTimeout bounds the non-streaming engine control calls
// (§4.2: default 40s for control, unbounded for streaming).
const controlRequestTimeout = 40 * time.Second

// Server bundles every collaborator the HTTP surface needs.
type Server struct {
	Registry  *node.Registry
	Deployer  *deploy.Deployer
	Templates *template.Store
	Env       *env.Store
	Token     string
	Log       *logging.Logger

	// DashboardDir, if non-empty, is served as static files at "/".
	DashboardDir string

	// BundleRoot is the on-disk app template directory, used to serve raw
	// template file contents (§6 GET /api/app/tmpl/content).
	BundleRoot string

	// CORSOrigins lists the origins allowed to call /api cross-origin (a
	// dashboard hosted elsewhere). Empty means same-origin only.
	CORSOrigins []string

	// Health, if set, backs /healthz; a zero Server builds a bare one with
	// no registered checks.
	Health *middleware.HealthChecker

	// Ready, if set, backs /readyz: false until the caller flips it once
	// startup (store open, templates loaded) has completed.
	Ready *bool
}

// NewRouter builds the full routing tree described in §4.10.
func NewRouter(srv *Server) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(srv.Log).Handler)
	r.Use(middleware.LoggingMiddleware(srv.Log))
	r.Use(middleware.NewCORSMiddleware(&middleware.CORSConfig{AllowedOrigins: srv.CORSOrigins}).Handler)

	agentChannel := r.PathPrefix("/rekcod.server").Subrouter()
	agentChannel.Use(tokenAuth(srv.Token))
	agentChannel.HandleFunc("/node/register", srv.handleRegister).Methods(http.MethodPost)
	agentChannel.PathPrefix("/node/proxy").Handler(proxy.Handler(srv.Registry, "/rekcod.server/node/proxy"))

	api := r.PathPrefix("/api").Subrouter()
	api.PathPrefix("/node/proxy").Handler(proxy.Handler(srv.Registry, "/api/node/proxy"))

	api.HandleFunc("/node/list", srv.handleNodeList).Methods(http.MethodPost)
	api.HandleFunc("/node/info", srv.handleNodeInfo).Methods(http.MethodPost)

	dockerControl := api.PathPrefix("/node/docker").Subrouter()
	dockerControl.Use(middleware.NewTimeoutMiddleware(controlRequestTimeout).Handler)
	dockerControl.HandleFunc("/info", srv.handleDockerInfo).Methods(http.MethodPost)
	dockerControl.HandleFunc("/container/list", srv.handleContainerList).Methods(http.MethodPost)
	dockerControl.HandleFunc("/container/start/{id}", srv.handleContainerStart).Methods(http.MethodPost)
	dockerControl.HandleFunc("/container/stop/{id}", srv.handleContainerStop).Methods(http.MethodPost)
	dockerControl.HandleFunc("/container/restart/{id}", srv.handleContainerRestart).Methods(http.MethodPost)
	dockerControl.HandleFunc("/container/delete/{id}", srv.handleContainerDelete).Methods(http.MethodPost)
	dockerControl.HandleFunc("/container/inspect/{id}", srv.handleContainerInspect).Methods(http.MethodPost)
	dockerControl.HandleFunc("/image/list", srv.handleImageList).Methods(http.MethodPost)
	dockerControl.HandleFunc("/network/list", srv.handleNetworkList).Methods(http.MethodPost)
	dockerControl.HandleFunc("/volume/list", srv.handleVolumeList).Methods(http.MethodPost)

	// Streaming endpoints (logs, exec, pull) are left without a request
	// timeout: their duration is caller/engine-driven, not bounded.
	dockerStream := api.PathPrefix("/node/docker").Subrouter()
	dockerStream.HandleFunc("/container/logs/{id}", srv.handleContainerLogs).Methods(http.MethodPost)
	dockerStream.HandleFunc("/container/exec", srv.handleContainerExec)
	dockerStream.HandleFunc("/image/pull_auto", srv.handleImagePullAuto).Methods(http.MethodPost)

	app := api.PathPrefix("/app").Subrouter()
	app.HandleFunc("/list", srv.handleAppList).Methods(http.MethodGet, http.MethodPost)
	app.HandleFunc("/{id}", srv.handleAppInfo).Methods(http.MethodPost)
	app.HandleFunc("/tmpl/content/{name}/{tmpl:.*}", srv.handleTmplContent).Methods(http.MethodGet)
	app.HandleFunc("/tmpl/render", srv.handleTmplRender).Methods(http.MethodPost)
	app.HandleFunc("/deploy", srv.handleDeploy).Methods(http.MethodPost)
	app.HandleFunc("/delete", srv.handleDeleteApp).Methods(http.MethodPost)

	health := srv.Health
	if health == nil {
		health = middleware.NewHealthChecker("rekcod")
	}
	api.HandleFunc("/metrics", promhttp.Handler().ServeHTTP).Methods(http.MethodGet)
	r.HandleFunc("/healthz", health.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/readyz", middleware.ReadinessHandler(srv.Ready)).Methods(http.MethodGet)

	if srv.DashboardDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(srv.DashboardDir)))
	}

	return r
}

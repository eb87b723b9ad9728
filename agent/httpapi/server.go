// Package httpapi implements the agent-side HTTP surface: liveness, system
// info, shell streaming, file upload/download (including HTTP Range), and
// the /proxy.docker engine passthrough (§6).
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rekcod/rekcod/agent/engineproxy"
	"github.com/rekcod/rekcod/infrastructure/logging"
	"github.com/rekcod/rekcod/infrastructure/middleware"
)

// Server bundles the agent's HTTP-facing dependencies.
type Server struct {
	Log   *logging.Logger
	Token string
}

// NewRouter builds the agent's routing tree, mounted at /rekcod.agent plus
// the engine passthrough at /proxy.docker. Liveness is exempt from token
// auth so the master can probe a node before it ever registers.
func NewRouter(srv *Server) *mux.Router {
	r := mux.NewRouter()
	if srv.Log != nil {
		r.Use(middleware.NewRecoveryMiddleware(srv.Log).Handler)
		r.Use(middleware.LoggingMiddleware(srv.Log))
	}

	agent := r.PathPrefix("/rekcod.agent").Subrouter()
	agent.HandleFunc("/", middleware.LivenessHandler()).Methods(http.MethodGet)

	authed := r.PathPrefix("/rekcod.agent").Subrouter()
	authed.Use(tokenAuth(srv.Token))
	authed.HandleFunc("/sys", srv.handleSysInfo).Methods(http.MethodGet)
	authed.HandleFunc("/shell", srv.handleShell).Methods(http.MethodPost)
	authed.HandleFunc("/download", srv.handleDownload).Methods(http.MethodPost)
	authed.HandleFunc("/download_range", srv.handleDownloadRange).Methods(http.MethodGet)
	authed.HandleFunc("/upload", srv.handleUpload).Methods(http.MethodGet)

	engineRouter := r.PathPrefix("/proxy.docker").Subrouter()
	engineRouter.Use(tokenAuth(srv.Token))
	engineRouter.PathPrefix("").Handler(engineproxy.Handler())

	return r
}

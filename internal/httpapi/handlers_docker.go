package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/docker/docker/api/types/filters"
	"github.com/gorilla/mux"

	"github.com/rekcod/rekcod/infrastructure/errors"
)

func unknownNodeErr(r *http.Request) *errors.ServiceError {
	return errors.NotFound("node", r.URL.Query().Get("node_name"))
}

func (s *Server) handleDockerInfo(w http.ResponseWriter, r *http.Request) {
	state, ok := s.resolveNode(r)
	if !ok {
		writeServiceErr(w, http.StatusBadRequest, unknownNodeErr(r))
		return
	}
	info, err := state.Engine.Info(r.Context())
	if err != nil {
		s.Log.WithContext(r.Context()).WithError(err).Error("engine info failed")
		writeServiceErr(w, http.StatusOK, errors.EngineError("docker_info", err))
		return
	}
	writeOK(w, info)
}

func (s *Server) handleContainerList(w http.ResponseWriter, r *http.Request) {
	state, ok := s.resolveNode(r)
	if !ok {
		writeServiceErr(w, http.StatusBadRequest, unknownNodeErr(r))
		return
	}
	list, err := state.Engine.ListContainers(r.Context(), filters.Args{})
	if err != nil {
		writeServiceErr(w, http.StatusOK, errors.EngineError("container_list", err))
		return
	}
	writeOK(w, list)
}

func (s *Server) handleContainerInspect(w http.ResponseWriter, r *http.Request) {
	state, ok := s.resolveNode(r)
	if !ok {
		writeServiceErr(w, http.StatusBadRequest, unknownNodeErr(r))
		return
	}
	info, err := state.Engine.InspectContainer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceErr(w, http.StatusOK, errors.EngineError("container_inspect", err))
		return
	}
	writeOK(w, info)
}

// containerAction runs action against the node resolved from node_name and
// the {id} path var, responding with the uniform success/error envelope.
// It backs start/stop/restart/delete, which differ only in which engine
// method they call.
func (s *Server) containerAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, eng engineCaller, id string) error) {
	state, ok := s.resolveNode(r)
	if !ok {
		writeServiceErr(w, http.StatusBadRequest, unknownNodeErr(r))
		return
	}
	id := mux.Vars(r)["id"]
	if err := action(r.Context(), state.Engine, id); err != nil {
		writeServiceErr(w, http.StatusOK, errors.EngineError("container_action", err))
		return
	}
	writeOK(w, nil)
}

// engineCaller is the narrow slice of *engine.Client the container action
// handlers need.
type engineCaller interface {
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	RestartContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string, force bool) error
}

func (s *Server) handleContainerStart(w http.ResponseWriter, r *http.Request) {
	s.containerAction(w, r, func(ctx context.Context, eng engineCaller, id string) error {
		return eng.StartContainer(ctx, id)
	})
}

func (s *Server) handleContainerStop(w http.ResponseWriter, r *http.Request) {
	s.containerAction(w, r, func(ctx context.Context, eng engineCaller, id string) error {
		return eng.StopContainer(ctx, id)
	})
}

func (s *Server) handleContainerRestart(w http.ResponseWriter, r *http.Request) {
	s.containerAction(w, r, func(ctx context.Context, eng engineCaller, id string) error {
		return eng.RestartContainer(ctx, id)
	})
}

func (s *Server) handleContainerDelete(w http.ResponseWriter, r *http.Request) {
	s.containerAction(w, r, func(ctx context.Context, eng engineCaller, id string) error {
		return eng.RemoveContainer(ctx, id, false)
	})
}

func (s *Server) handleContainerLogs(w http.ResponseWriter, r *http.Request) {
	state, ok := s.resolveNode(r)
	if !ok {
		writeServiceErr(w, http.StatusBadRequest, unknownNodeErr(r))
		return
	}
	id := mux.Vars(r)["id"]
	tail := r.URL.Query().Get("tail")
	if tail == "" {
		tail = "200"
	}
	follow := r.URL.Query().Get("follow") == "true"

	stream, err := state.Engine.ContainerLogs(r.Context(), id, follow, tail)
	if err != nil {
		writeServiceErr(w, http.StatusOK, errors.EngineError("container_logs", err))
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	// Streaming: mid-stream errors end the body early; the status line is
	// already committed at 200 (§7).
	_, _ = io.Copy(w, stream)
}

func (s *Server) handleImageList(w http.ResponseWriter, r *http.Request) {
	state, ok := s.resolveNode(r)
	if !ok {
		writeServiceErr(w, http.StatusBadRequest, unknownNodeErr(r))
		return
	}
	list, err := state.Engine.ListImages(r.Context(), filters.Args{})
	if err != nil {
		writeServiceErr(w, http.StatusOK, errors.EngineError("image_list", err))
		return
	}
	writeOK(w, list)
}

func (s *Server) handleNetworkList(w http.ResponseWriter, r *http.Request) {
	state, ok := s.resolveNode(r)
	if !ok {
		writeServiceErr(w, http.StatusBadRequest, unknownNodeErr(r))
		return
	}
	list, err := state.Engine.ListNetworks(r.Context())
	if err != nil {
		writeServiceErr(w, http.StatusOK, errors.EngineError("network_list", err))
		return
	}
	writeOK(w, list)
}

func (s *Server) handleVolumeList(w http.ResponseWriter, r *http.Request) {
	state, ok := s.resolveNode(r)
	if !ok {
		writeServiceErr(w, http.StatusBadRequest, unknownNodeErr(r))
		return
	}
	list, err := state.Engine.ListVolumes(r.Context())
	if err != nil {
		writeServiceErr(w, http.StatusOK, errors.EngineError("volume_list", err))
		return
	}
	writeOK(w, list)
}

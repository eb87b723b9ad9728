package httpapi

import (
	"net/http"

	"github.com/rekcod/rekcod/infrastructure/errors"
	"github.com/rekcod/rekcod/infrastructure/logging"
	"github.com/rekcod/rekcod/internal/node"
)

// registerBody mirrors RegisterNodeRequest (§6).
type registerBody struct {
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

// NodeItemResponse is the operator-facing node shape: the token is never
// returned (§4.11).
type NodeItemResponse struct {
	Name          string `json:"name"`
	HostName      string `json:"host_name"`
	IP            string `json:"ip"`
	Port          int    `json:"port"`
	Version       string `json:"version"`
	Arch          string `json:"arch"`
	OS            string `json:"os"`
	OSVersion     string `json:"os_version"`
	OSLongVersion string `json:"os_long_version"`
	OSKernel      string `json:"os_kernel"`
	Status        bool   `json:"status"`
}

func toNodeItem(rec node.Record) NodeItemResponse {
	return NodeItemResponse{
		Name: rec.Name, HostName: rec.HostName, IP: rec.IP, Port: rec.Port,
		Version: rec.Version, Arch: rec.Arch, OS: rec.OS,
		OSVersion: rec.OSVersion, OSLongVersion: rec.OSLongVersion, OSKernel: rec.OSKernel,
		Status: rec.Status,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if err := decodeBody(r, &body); err != nil {
		writeServiceErr(w, http.StatusBadRequest, errors.InvalidInput("body", "invalid request body"))
		return
	}
	if body.Name == "" {
		writeServiceErr(w, http.StatusBadRequest, errors.MissingParameter("name"))
		return
	}

	req := node.RegisterRequest{
		Name: body.Name, HostName: body.HostName, IP: body.IP, Port: body.Port,
		Token: body.Token, Version: body.Version, Arch: body.Arch, OS: body.OS,
		OSVersion: body.OSVersion, OSLongVersion: body.OSLongVersion, OSKernel: body.OSKernel,
		Status: body.Status,
	}
	ctx := logging.WithNodeName(r.Context(), body.Name)
	if err := s.Registry.Register(ctx, req); err != nil {
		s.Log.WithContext(ctx).WithError(err).Error("node registration failed")
		writeServiceErr(w, http.StatusOK, errors.Internal("registration failed", err))
		return
	}
	writeOK(w, nil)
}

type listNodesBody struct {
	All bool `json:"all"`
}

func (s *Server) handleNodeList(w http.ResponseWriter, r *http.Request) {
	var body listNodesBody
	_ = decodeBody(r, &body)

	states, err := s.Registry.GetAllNodes(r.Context(), body.All)
	if err != nil {
		writeServiceErr(w, http.StatusOK, errors.DatabaseError("list nodes", err))
		return
	}
	items := make([]NodeItemResponse, 0, len(states))
	for _, st := range states {
		items = append(items, toNodeItem(st.Node))
	}
	writeOK(w, items)
}

type nodeInfoBody struct {
	NodeName string `json:"node_name"`
}

func (s *Server) handleNodeInfo(w http.ResponseWriter, r *http.Request) {
	var body nodeInfoBody
	if err := decodeBody(r, &body); err != nil || body.NodeName == "" {
		writeServiceErr(w, http.StatusBadRequest, errors.MissingParameter("node_name"))
		return
	}
	state, err := s.Registry.GetNode(r.Context(), body.NodeName)
	if err != nil || state == nil {
		// Matches the unknown-node convention used by every /node/docker/*
		// handler (handlers_docker.go's unknownNodeErr): the node name is
		// client-supplied input, so an unresolvable name is a 400, not a
		// downstream failure reported at 200.
		writeServiceErr(w, http.StatusBadRequest, errors.NotFound("node", body.NodeName))
		return
	}
	writeOK(w, toNodeItem(state.Node))
}

// resolveNode is the shared lookup used by every /node/docker/* handler:
// the node name arrives as a query parameter (§6). On success it also
// stamps the node name onto the request's context so that any logging
// further down the handler chain is automatically scoped to it.
func (s *Server) resolveNode(r *http.Request) (*node.State, bool) {
	name := r.URL.Query().Get("node_name")
	if name == "" {
		return nil, false
	}
	state, err := s.Registry.GetNode(r.Context(), name)
	if err != nil || state == nil {
		return nil, false
	}
	*r = *r.WithContext(logging.WithNodeName(r.Context(), name))
	return state, true
}

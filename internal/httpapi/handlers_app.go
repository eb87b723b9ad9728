package httpapi

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/rekcod/rekcod/infrastructure/errors"
	"github.com/rekcod/rekcod/internal/deploy"
	"github.com/rekcod/rekcod/internal/template"
)

func (s *Server) handleAppList(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.Templates.List())
}

func (s *Server) handleAppInfo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	bundle := s.Templates.Get(id)
	if bundle == nil {
		writeServiceErr(w, http.StatusOK, errors.NotFound("app", id))
		return
	}
	writeOK(w, bundle.Info())
}

func (s *Server) handleTmplContent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bundle := s.Templates.Get(vars["name"])
	if bundle == nil {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(bundle.TmplDir, vars["tmpl"])
	// Ensure the resolved path stays inside the bundle's template dir.
	rel, err := filepath.Rel(bundle.TmplDir, path)
	if err != nil || rel == ".." || len(rel) >= 2 && rel[:2] == ".." {
		http.Error(w, "invalid template path", http.StatusBadRequest)
		return
	}
	http.ServeFile(w, r, path)
}

type tmplRenderBody struct {
	Text   string `json:"text"`
	Values string `json:"values"`
}

func (s *Server) handleTmplRender(w http.ResponseWriter, r *http.Request) {
	var body tmplRenderBody
	if err := decodeBody(r, &body); err != nil {
		writeServiceErr(w, http.StatusBadRequest, errors.InvalidInput("body", "invalid request body"))
		return
	}

	values, err := template.ParseValues(body.Values)
	if err != nil {
		// Render errors return as text verbatim for operator debugging,
		// status remains 200 (§7).
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(err.Error()))
		return
	}

	rendered, err := template.RenderDynamic(r.Context(), body.Text, values, s.Env, s.Registry)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(err.Error()))
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(rendered))
}

type deployBody struct {
	Name     string `json:"name"`
	AppName  string `json:"app_name"`
	NodeName string `json:"node_name"`
	Project  string `json:"project"`
	Values   string `json:"values"`
	Build    bool   `json:"build"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	var body deployBody
	if err := decodeBody(r, &body); err != nil || body.Name == "" || body.AppName == "" || body.NodeName == "" {
		writeServiceErr(w, http.StatusBadRequest, errors.InvalidInput("body", "name, app_name and node_name are required"))
		return
	}

	logs := make(chan string, 32)
	go func() {
		for line := range logs {
			s.Log.LogDeploy(r.Context(), body.Name, line)
		}
	}()

	req := deploy.Request{
		Name: body.Name, AppName: body.AppName, NodeName: body.NodeName,
		Project: body.Project, Values: body.Values, Build: body.Build,
	}
	if err := s.Deployer.Deploy(r.Context(), req, logs); err != nil {
		writeServiceErr(w, http.StatusOK, errors.DeployError(body.AppName, err))
		return
	}
	writeOK(w, nil)
}

type deleteAppBody struct {
	Name string `json:"name"`
}

func (s *Server) handleDeleteApp(w http.ResponseWriter, r *http.Request) {
	var body deleteAppBody
	if err := decodeBody(r, &body); err != nil || body.Name == "" {
		writeServiceErr(w, http.StatusBadRequest, errors.MissingParameter("name"))
		return
	}
	if err := s.Deployer.Delete(r.Context(), body.Name); err != nil {
		writeServiceErr(w, http.StatusOK, errors.Internal("delete failed", err))
		return
	}
	writeOK(w, nil)
}

// ReadBundleFile reads a named template file from <bundleRoot>/<app>/template/<name>.
func ReadBundleFile(bundleRoot string) func(app, name string) (string, error) {
	return func(app, name string) (string, error) {
		data, err := os.ReadFile(filepath.Join(bundleRoot, app, "template", name))
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

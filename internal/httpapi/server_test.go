package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rekcod/rekcod/infrastructure/logging"
	"github.com/rekcod/rekcod/internal/deploy"
	"github.com/rekcod/rekcod/internal/env"
	"github.com/rekcod/rekcod/internal/kvs"
	"github.com/rekcod/rekcod/internal/node"
	"github.com/rekcod/rekcod/internal/template"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := kvs.Open(context.Background(), filepath.Join(t.TempDir(), "rekcod.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := node.New(store)
	envStore := env.New(store)

	appRoot := t.TempDir()
	templates, err := template.NewStore(appRoot, nil)
	require.NoError(t, err)
	t.Cleanup(templates.Close)

	deployer := deploy.New(store, registry, templates, envStore, ReadBundleFile(appRoot))

	return &Server{
		Registry:  registry,
		Deployer:  deployer,
		Templates: templates,
		Env:       envStore,
		Token:     "test-token",
		Log:       logging.New("rekcod-test", "error", "text"),
	}
}

func decodeEnvelope(t *testing.T, body []byte) envelope {
	t.Helper()
	var resp envelope
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestNodeList_EmptyByDefault(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/node/list", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec.Body.Bytes())
	require.Equal(t, 0, resp.Code)
}

func TestRegisterThenNodeInfo_RoundTrips(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	body := `{"name":"n1","ip":"10.0.0.1","port":6735,"token":"agent-tok","status":true}`
	req := httptest.NewRequest(http.MethodPost, "/rekcod.server/node/register", bytes.NewBufferString(body))
	req.Header.Set("X-REKCOD-TOKEN", "test-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/api/node/info", bytes.NewBufferString(`{"node_name":"n1"}`))
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)

	var info struct {
		Msg  string           `json:"msg"`
		Code int              `json:"code"`
		Data NodeItemResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &info))
	require.Equal(t, 0, info.Code)
	require.Equal(t, "n1", info.Data.Name)
	require.True(t, info.Data.Status)
}

func TestRegister_WrongTokenIs401(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	body := `{"name":"n1","ip":"10.0.0.1","port":6735,"status":true}`
	req := httptest.NewRequest(http.MethodPost, "/rekcod.server/node/register", bytes.NewBufferString(body))
	req.Header.Set("X-REKCOD-TOKEN", "wrong-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAppList_EmptyWhenNoBundles(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/api/app/list", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec.Body.Bytes())
	require.Equal(t, 0, resp.Code)
}

func TestDeploy_UnknownAppReturnsErrorEnvelope(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	body := `{"name":"web1","app_name":"ghost","node_name":"n1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/app/deploy", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec.Body.Bytes())
	require.NotEqual(t, 0, resp.Code)
}

func TestDeploy_MissingFieldsIs400(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/app/deploy", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORS_AllowedOriginGetsHeader(t *testing.T) {
	srv := newTestServer(t)
	srv.CORSOrigins = []string{"https://dashboard.example.com"}
	router := NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/api/app/list", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_DisallowedOriginGetsNoHeader(t *testing.T) {
	srv := newTestServer(t)
	srv.CORSOrigins = []string{"https://dashboard.example.com"}
	router := NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/api/app/list", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz_NotReadyByDefault(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyz_ReadyWhenFlagSet(t *testing.T) {
	srv := newTestServer(t)
	ready := true
	srv.Ready = &ready
	router := NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz_RespondsOK(t *testing.T) {
	srv := newTestServer(t)
	router := NewRouter(srv)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDashboardStaticFiles_ServedWhenConfigured(t *testing.T) {
	srv := newTestServer(t)
	dashDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dashDir, "index.html"), []byte("hello"), 0o644))
	srv.DashboardDir = dashDir

	router := NewRouter(srv)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello", rec.Body.String())
}

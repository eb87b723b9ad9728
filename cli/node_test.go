package cli

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveNodeProxyEnv_BuildsDockerHostAndHeader(t *testing.T) {
	defer resetFlags()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"msg":"ok","code":0,"data":{"name":"n1","ip":"10.0.0.5","port":6735}}`))
	}))
	defer srv.Close()

	masterHost = strings.TrimPrefix(srv.URL, "http://")
	token = "shared-tok"

	env, err := resolveNodeProxyEnv("n1")
	require.NoError(t, err)
	require.Contains(t, env, "DOCKER_HOST=tcp://10.0.0.5:6735/proxy.docker")
	require.Contains(t, env, "DOCKER_CUSTOM_HEADERS=X-REKCOD-TOKEN=shared-tok")
	require.Contains(t, env, "DOCKER_BUILDKIT=0")
}

func TestResolveNodeProxyEnv_UnknownNodeErrors(t *testing.T) {
	defer resetFlags()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"msg":"ok","code":0,"data":{}}`))
	}))
	defer srv.Close()

	masterHost = strings.TrimPrefix(srv.URL, "http://")

	_, err := resolveNodeProxyEnv("ghost")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

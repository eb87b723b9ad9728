package cli

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func resetFlags() {
	masterHost = ""
	token = ""
	showAll = false
}

func TestResolveMasterHost_FlagTakesPrecedence(t *testing.T) {
	defer resetFlags()
	masterHost = "flag-host:1"
	t.Setenv("REKCOD_MASTER_HOST", "env-host:2")

	require.Equal(t, "flag-host:1", resolveMasterHost())
}

func TestResolveMasterHost_FallsBackToEnvThenDefault(t *testing.T) {
	defer resetFlags()
	t.Setenv("REKCOD_MASTER_HOST", "env-host:2")
	require.Equal(t, "env-host:2", resolveMasterHost())

	t.Setenv("REKCOD_MASTER_HOST", "")
	require.Equal(t, "127.0.0.1:6734", resolveMasterHost())
}

func TestResolveToken_FlagTakesPrecedenceOverEnv(t *testing.T) {
	defer resetFlags()
	token = "flag-token"
	t.Setenv("REKCOD_TOKEN", "env-token")

	require.Equal(t, "flag-token", resolveToken())
}

func TestResolveToken_FallsBackToEnv(t *testing.T) {
	defer resetFlags()
	t.Setenv("REKCOD_TOKEN", "env-token")
	require.Equal(t, "env-token", resolveToken())
}

func TestApiCall_SendsTokenHeaderAndDecodesData(t *testing.T) {
	defer resetFlags()
	var gotToken, gotMethod, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-REKCOD-TOKEN")
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Write([]byte(`{"msg":"ok","code":0,"data":{"name":"n1"}}`))
	}))
	defer srv.Close()

	masterHost = strings.TrimPrefix(srv.URL, "http://")
	token = "secret"

	var out struct {
		Name string `json:"name"`
	}
	err := apiCall("POST", "/api/node/info", map[string]string{"node_name": "n1"}, &out)
	require.NoError(t, err)
	require.Equal(t, "secret", gotToken)
	require.Equal(t, "POST", gotMethod)
	require.Equal(t, "/api/node/info", gotPath)
	require.Equal(t, "n1", out.Name)
}

func TestApiCall_NonZeroCodeReturnsError(t *testing.T) {
	defer resetFlags()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"msg":"node not found","code":1,"data":null}`))
	}))
	defer srv.Close()

	masterHost = strings.TrimPrefix(srv.URL, "http://")

	err := apiCall("POST", "/api/node/info", nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "node not found")
}

func TestApiCall_UnreachableServerReturnsWrappedError(t *testing.T) {
	defer resetFlags()
	masterHost = "127.0.0.1:1"

	err := apiCall("GET", "/api/node/list", nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot reach rekcod server")
}

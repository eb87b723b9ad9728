package register

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterOnce_PostsExpectedRequestAndToken(t *testing.T) {
	var gotToken, gotPath string
	var gotBody Request

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-REKCOD-TOKEN")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	masterHost := strings.TrimPrefix(srv.URL, "http://")
	client := &http.Client{Timeout: 5 * time.Second}

	req := Request{Name: "n1", IP: "10.0.0.1", Port: 6735, Token: "shared-token", Status: true}
	registerOnce(context.Background(), client, masterHost, "shared-token", req, nil)

	require.Equal(t, "/rekcod.server/node/register", gotPath)
	require.Equal(t, "shared-token", gotToken)
	require.Equal(t, "n1", gotBody.Name)
}

func TestLoop_RegistersImmediatelyAndOnEachTick(t *testing.T) {
	var count int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	masterHost := strings.TrimPrefix(srv.URL, "http://")

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	Loop(ctx, masterHost, "tok", 40*time.Millisecond, func() Request {
		return Request{Name: "n1"}
	}, nil)

	require.GreaterOrEqual(t, count, 2)
}

package httpapi

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestHandleDownloadRange_NoRangeServesFullFile(t *testing.T) {
	srv := &Server{}
	path := writeTempFile(t, "0123456789")

	req := httptest.NewRequest("GET", "/rekcod.agent/download_range?path="+path, nil)
	rec := httptest.NewRecorder()
	srv.handleDownloadRange(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Equal(t, "10", rec.Header().Get("Content-Length"))
	require.Equal(t, "0123456789", rec.Body.String())
}

func TestHandleDownloadRange_SingleRangeServesSubrange(t *testing.T) {
	srv := &Server{}
	path := writeTempFile(t, "0123456789")

	req := httptest.NewRequest("GET", "/rekcod.agent/download_range?path="+path, nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	srv.handleDownloadRange(rec, req)

	require.Equal(t, 206, rec.Code)
	require.Equal(t, "bytes 2-4/10", rec.Header().Get("Content-Range"))
	require.Equal(t, "3", rec.Header().Get("Content-Length"))
	require.Equal(t, "234", rec.Body.String())
}

func TestHandleDownloadRange_SuffixRange(t *testing.T) {
	srv := &Server{}
	path := writeTempFile(t, "0123456789")

	req := httptest.NewRequest("GET", "/rekcod.agent/download_range?path="+path, nil)
	req.Header.Set("Range", "bytes=-3")
	rec := httptest.NewRecorder()
	srv.handleDownloadRange(rec, req)

	require.Equal(t, 206, rec.Code)
	require.Equal(t, "789", rec.Body.String())
}

func TestHandleDownloadRange_OpenEndedRange(t *testing.T) {
	srv := &Server{}
	path := writeTempFile(t, "0123456789")

	req := httptest.NewRequest("GET", "/rekcod.agent/download_range?path="+path, nil)
	req.Header.Set("Range", "bytes=7-")
	rec := httptest.NewRecorder()
	srv.handleDownloadRange(rec, req)

	require.Equal(t, 206, rec.Code)
	require.Equal(t, "789", rec.Body.String())
}

func TestHandleDownloadRange_MultiRangeIs400(t *testing.T) {
	srv := &Server{}
	path := writeTempFile(t, "0123456789")

	req := httptest.NewRequest("GET", "/rekcod.agent/download_range?path="+path, nil)
	req.Header.Set("Range", "bytes=0-1,3-4")
	rec := httptest.NewRecorder()
	srv.handleDownloadRange(rec, req)

	require.Equal(t, 400, rec.Code)
}

func TestRouter_LivenessRespondsOK(t *testing.T) {
	srv := &Server{}
	router := NewRouter(srv)

	req := httptest.NewRequest("GET", "/rekcod.agent/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "alive")
}

package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rekcod/rekcod/agent/sysinfo"
	"github.com/rekcod/rekcod/infrastructure/middleware"
)

func (s *Server) handleSysInfo(w http.ResponseWriter, r *http.Request) {
	snap, err := sysinfo.Collect(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		sysinfo.Snapshot
		Process map[string]interface{} `json:"process"`
	}{Snapshot: snap, Process: middleware.RuntimeStats()})
}

type shellBody struct {
	Env  map[string]string `json:"env"`
	Run  string            `json:"run"`
	Bash bool              `json:"bash"`
}

// handleShell streams a shell command's combined output back to the
// caller as it is produced (§6).
func (s *Server) handleShell(w http.ResponseWriter, r *http.Request) {
	var body shellBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Run == "" {
		http.Error(w, "run is required", http.StatusBadRequest)
		return
	}

	shell := "sh"
	if body.Bash {
		shell = "bash"
	}

	cmd := exec.CommandContext(r.Context(), shell, "-c", body.Run)
	cmd.Env = os.Environ()
	for k, v := range body.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)

	if err := cmd.Start(); err != nil {
		_, _ = w.Write([]byte(err.Error()))
		return
	}

	go func() {
		_ = cmd.Wait()
		pw.Close()
	}()

	buf := make([]byte, 4096)
	for {
		n, readErr := pr.Read(buf)
		if n > 0 {
			_, _ = w.Write(buf[:n])
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			break
		}
	}
}

type downloadBody struct {
	Path string `json:"path"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var body downloadBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}
	f, err := os.Open(body.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(body.Path))
	_, _ = io.Copy(w, f)
}

// handleDownloadRange honors a single HTTP Range header; a multi-range
// request is rejected with 400 (§8 boundary behavior).
func (s *Server) handleDownloadRange(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	size := fi.Size()

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		_, _ = io.Copy(w, f)
		return
	}

	if strings.Count(rangeHeader, ",") > 0 {
		http.Error(w, "multi-range requests are not supported", http.StatusBadRequest)
		return
	}

	start, end, err := parseSingleRange(rangeHeader, size)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.WriteHeader(http.StatusPartialContent)
	_, _ = io.CopyN(w, f, end-start+1)
}

func parseSingleRange(header string, size int64) (start, end int64, err error) {
	spec := strings.TrimPrefix(header, "bytes=")
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed range")
	}

	if parts[0] == "" {
		// suffix range: last N bytes
		n, convErr := strconv.ParseInt(parts[1], 10, 64)
		if convErr != nil {
			return 0, 0, fmt.Errorf("malformed range")
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		return start, size - 1, nil
	}

	start, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed range")
	}
	if parts[1] == "" {
		return start, size - 1, nil
	}
	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed range")
	}
	if end >= size {
		end = size - 1
	}
	return start, end, nil
}

// handleUpload accepts a multipart upload whose destination file name and
// base directory arrive as headers (§6).
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	fileName := r.Header.Get("file_name")
	fileBase := r.Header.Get("file_base")
	if fileName == "" || fileBase == "" {
		http.Error(w, "file_name and file_base headers are required", http.StatusBadRequest)
		return
	}

	reader := multipart.NewReader(r.Body, boundaryOf(r))
	part, err := reader.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer part.Close()

	if err := os.MkdirAll(fileBase, 0o755); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	dest, err := os.Create(filepath.Join(fileBase, fileName))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer dest.Close()

	if _, err := io.Copy(bufio.NewWriter(dest), part); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func boundaryOf(r *http.Request) string {
	_, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return params["boundary"]
}

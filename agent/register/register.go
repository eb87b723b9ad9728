// Package register implements the agent's registration-as-heartbeat loop
// (§4.4, §9): POST /rekcod.server/node/register every 10s. On any error it
// waits for the next tick and tries again; there is no other retry policy.
package register

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rekcod/rekcod/infrastructure/logging"
)

// Request mirrors RegisterNodeRequest (§6).
type Request struct {
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

// Loop posts req to masterHost's registration endpoint every interval,
// until ctx is cancelled.
func Loop(ctx context.Context, masterHost, token string, interval time.Duration, buildRequest func() Request, log *logging.Logger) {
	client := &http.Client{Timeout: 10 * time.Second}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	registerOnce(ctx, client, masterHost, token, buildRequest(), log)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registerOnce(ctx, client, masterHost, token, buildRequest(), log)
		}
	}
}

func registerOnce(ctx context.Context, client *http.Client, masterHost, token string, req Request, log *logging.Logger) {
	body, err := json.Marshal(req)
	if err != nil {
		if log != nil {
			log.WithError(err).Warn("register: failed to encode request")
		}
		return
	}

	url := fmt.Sprintf("http://%s/rekcod.server/node/register", masterHost)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-REKCOD-TOKEN", token)

	resp, err := client.Do(httpReq)
	if err != nil {
		if log != nil {
			log.WithError(err).Warn("register: request failed, retrying next tick")
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if log != nil {
			log.WithFields(map[string]interface{}{"status": resp.StatusCode}).
				Warn("register: server rejected registration")
		}
	}
}

// Package cli implements the rekcod command-line front-end (§6): a thin
// client over the server's /api surface plus a local docker/docker-compose
// launcher pointed at a node's proxied engine.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	masterHost string
	token      string
	showAll    bool
)

var rootCmd = &cobra.Command{
	Use:   "rekcod",
	Short: "Multi-node container fleet control",
	Long: `rekcod drives a fleet of container-engine nodes through a single
control-plane server.

  rekcod node ls                 List registered nodes
  rekcod docker -n <node> ps      Run a docker command against a node
  rekcod docker-compose -n <node> up   Run docker compose against a node`,
}

// Execute runs the root command, exiting non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&masterHost, "master", "", "rekcod server host:port (default: $REKCOD_MASTER_HOST or 127.0.0.1:6734)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "shared auth token (default: $REKCOD_TOKEN)")

	viper.SetEnvPrefix("rekcod")
	viper.AutomaticEnv()
	if cfgFile := os.Getenv("REKCOD_CONFIG"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
	}

	rootCmd.AddCommand(nodeCmd, dockerCmd, composeCmd)
}

func resolveMasterHost() string {
	if masterHost != "" {
		return masterHost
	}
	if v := viper.GetString("master_host"); v != "" {
		return v
	}
	if v := os.Getenv("REKCOD_MASTER_HOST"); v != "" {
		return v
	}
	return "127.0.0.1:6734"
}

func resolveToken() string {
	if token != "" {
		return token
	}
	if v := viper.GetString("token"); v != "" {
		return v
	}
	return os.Getenv("REKCOD_TOKEN")
}

// apiCall issues a JSON POST/GET against the server's /api surface and
// decodes the envelope's data field into out.
func apiCall(method, path string, body interface{}, out interface{}) error {
	client := &http.Client{Timeout: 30 * time.Second}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	url := fmt.Sprintf("http://%s%s", resolveMasterHost(), path)
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-REKCOD-TOKEN", resolveToken())

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach rekcod server at %s: %w", resolveMasterHost(), err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Msg  string          `json:"msg"`
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("server error: %s", envelope.Msg)
	}
	if out != nil && len(envelope.Data) > 0 {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

var dockerNode string

var dockerCmd = &cobra.Command{
	Use:   "docker -n <node> -- <args...>",
	Short: "Run a docker CLI command against a node's engine",
	RunE:  runDocker,
}

func init() {
	dockerCmd.Flags().StringVarP(&dockerNode, "node", "n", "", "node name (required)")
	_ = dockerCmd.MarkFlagRequired("node")
}

func runDocker(cmd *cobra.Command, args []string) error {
	return runAgainstNode("docker", dockerNode, args)
}

// runAgainstNode resolves node's proxy env and execs binary with args,
// inheriting stdio so interactive/streaming output passes through untouched.
func runAgainstNode(binary, nodeName string, args []string) error {
	if nodeName == "" {
		return fmt.Errorf("-n/--node is required")
	}

	proxyEnv, err := resolveNodeProxyEnv(nodeName)
	if err != nil {
		return err
	}

	c := exec.Command(binary, args...)
	c.Env = append(os.Environ(), proxyEnv...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr

	if err := c.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Exit(exitErr.ExitCode())
		}
		return fmt.Errorf("run %s: %w", binary, err)
	}
	return nil
}

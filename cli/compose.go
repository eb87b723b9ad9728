package cli

import (
	"github.com/spf13/cobra"
)

var composeNode string

var composeCmd = &cobra.Command{
	Use:   "docker-compose -n <node> -- <args...>",
	Short: "Run docker compose against a node's engine",
	RunE:  runCompose,
}

func init() {
	composeCmd.Flags().StringVarP(&composeNode, "node", "n", "", "node name (required)")
	_ = composeCmd.MarkFlagRequired("node")
}

func runCompose(cmd *cobra.Command, args []string) error {
	return runAgainstNode("docker", composeNode, append([]string{"compose"}, args...))
}

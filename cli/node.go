package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Inspect registered nodes",
}

var nodeLsCmd = &cobra.Command{
	Use:     "ls",
	Short:   "List registered nodes",
	Aliases: []string{"list"},
	RunE:    runNodeLs,
}

// nodeItem mirrors NodeItemResponse (internal/httpapi).
type nodeItem struct {
	Name          string `json:"name"`
	HostName      string `json:"host_name"`
	IP            string `json:"ip"`
	Port          int    `json:"port"`
	Version       string `json:"version"`
	Arch          string `json:"arch"`
	OS            string `json:"os"`
	OSVersion     string `json:"os_version"`
	OSLongVersion string `json:"os_long_version"`
	OSKernel      string `json:"os_kernel"`
	Status        bool   `json:"status"`
}

func init() {
	nodeLsCmd.Flags().BoolVar(&showAll, "all", false, "include offline nodes")
	nodeCmd.AddCommand(nodeLsCmd)
}

func runNodeLs(cmd *cobra.Command, args []string) error {
	var nodes []nodeItem
	if err := apiCall("POST", "/api/node/list", map[string]bool{"all": showAll}, &nodes); err != nil {
		return err
	}

	if len(nodes) == 0 {
		fmt.Println("No nodes registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATUS\tIP\tPORT\tVERSION\tARCH\tOS")
	for _, n := range nodes {
		status := "offline"
		if n.Status {
			status = "online"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n", n.Name, status, n.IP, n.Port, n.Version, n.Arch, n.OS)
	}
	return w.Flush()
}

// resolveNodeProxyEnv looks up a node's connection info and returns the
// DOCKER_HOST/DOCKER_CUSTOM_HEADERS pair that points the local docker CLI
// at that node's agent-side engine proxy directly (§6, §9: CLI invokes the
// local docker binary with DOCKER_HOST=tcp://<ip>:<port>/proxy.docker).
func resolveNodeProxyEnv(name string) ([]string, error) {
	var info nodeItem
	if err := apiCall("POST", "/api/node/info", map[string]string{"node_name": name}, &info); err != nil {
		return nil, err
	}
	if info.Name == "" {
		return nil, fmt.Errorf("node %q not found", name)
	}

	dockerHost := fmt.Sprintf("tcp://%s:%d/proxy.docker", info.IP, info.Port)
	return []string{
		"DOCKER_HOST=" + dockerHost,
		"DOCKER_CUSTOM_HEADERS=X-REKCOD-TOKEN=" + resolveToken(),
		"DOCKER_BUILDKIT=0",
	}, nil
}

// Command rekcod-cli is the operator-facing front-end over the rekcod
// server's /api surface (§6).
package main

import "github.com/rekcod/rekcod/cli"

func main() {
	cli.Execute()
}

// Command ecoctl queries a running eco-monitor daemon.
package main

import "github.com/cptspacemanspiff/eco-monitor/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}

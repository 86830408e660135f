package main

import "github.com/HorseSword/local-mcp-manager/cmd"

// version is set during build with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}

package main

import "github.com/marcus/todos/cmd"

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	cmd.SetVersion(Version)
	cmd.Execute()
}

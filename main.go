package main

import "github.com/nutrilog/gatekeeper/cmd"

func main() {
	cmd.Execute()
}

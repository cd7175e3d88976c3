package main

import "github.com/layer-3/demogate/cmd/demogate/cmd"

func main() {
	cmd.Execute()
}

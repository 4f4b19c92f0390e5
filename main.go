package main

import "github.com/metal-toolbox/osie-runner/cmd"

func main() {
	cmd.Execute()
}

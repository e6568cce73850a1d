package main

import "github.com/kozaktomas/punch-clock/cmd"

func main() {
	cmd.Execute()
}

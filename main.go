package main

import "github.com/kozaktomas/missing-finder/cmd"

func main() {
	cmd.Execute()
}

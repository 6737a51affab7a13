package main

import "github.com/icemetrics/icemetrics/cmd"

func main() {
	cmd.Execute()
}

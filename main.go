package main

import "github.com/sergev/floppycore/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/audiolibrelab/recstore/cmd"

func main() {
	cmd.Execute()
}

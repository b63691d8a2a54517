package main

import "microharness/cmd"

func main() {
	cmd.Execute()
}

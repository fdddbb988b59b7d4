package main

import "legalrag/cmd"

func main() {
	cmd.Execute()
}

package main

import "vetrag/internal/cli"

func main() {
	cli.Execute()
}

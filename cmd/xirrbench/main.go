package main

import "xirr-benchmark/internal/cli"

func main() {
	cli.Execute()
}

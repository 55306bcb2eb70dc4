package main

import "macrobench/internal/cli"

func main() {
	cli.Execute()
}

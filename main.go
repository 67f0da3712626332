package main

import "marketcollector/internal/cli"

func main() {
	cli.Execute()
}

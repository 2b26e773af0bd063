package main

import "apex-client/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/pygate/pygate/internal/cli"

func main() {
	cli.Execute()
}

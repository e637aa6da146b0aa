package main

import "github.com/example/dshauth/internal/cli"

func main() {
	cli.Execute()
}

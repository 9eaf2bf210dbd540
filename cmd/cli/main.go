package main

import "github.com/mchmarny/devrank/pkg/cli"

func main() {
	cli.Execute()
}

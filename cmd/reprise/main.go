package main

import "github.com/tessro/reprise/internal/cli"

func main() {
	cli.Execute()
}

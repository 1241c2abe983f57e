package main

import "spxreplay/internal/cli"

func main() {
	cli.Execute()
}

package main

import "bblocks-register/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/ppiankov/tokendesk/internal/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/santif/pgbridge/cli"

func main() {
	cli.Execute()
}

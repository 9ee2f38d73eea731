package main

import "github.com/aaj441/aaronos-core/services/api/cli"

func main() {
	cli.Execute()
}

package main

import "github.com/aaj441/aaronos-core/services/scheduler/cli"

func main() {
	cli.Execute()
}

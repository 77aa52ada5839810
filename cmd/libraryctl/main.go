package main

import "github.com/rongwang/library-server/cmd/libraryctl/commands"

func main() {
	commands.Execute()
}

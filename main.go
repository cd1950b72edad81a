package main

import "github.com/camden-git/vidfaces/cmd"

func main() {
	cmd.Execute()
}

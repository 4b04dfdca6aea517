package main

import "github.com/felo/emldecode/cmd"

func main() {
	cmd.Execute()
}

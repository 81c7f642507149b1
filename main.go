package main

import "github.com/papapumpkin/tptmodel/cmd"

func main() {
	cmd.Execute()
}

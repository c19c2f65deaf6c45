package main

import "github.com/luciancaetano/fiftysocket/cmd/fiftysocket/cmd"

func main() {
	cmd.Execute()
}

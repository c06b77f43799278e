package main

import "github.com/croncommander/clonebench/cmd"

func main() {
	cmd.Execute()
}

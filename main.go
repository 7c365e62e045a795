package main

import "github.com/nextlevelbuilder/sylph/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/nextlevelbuilder/joinbridge/cmd"

func main() {
	cmd.Execute()
}

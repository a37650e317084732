package main

import "github.com/Tiliavir/punch/cmd"

func main() {
	cmd.Execute()
}

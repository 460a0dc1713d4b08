package main

import "github.com/seneschal/seneschal/cmd"

func main() {
	cmd.Execute()
}

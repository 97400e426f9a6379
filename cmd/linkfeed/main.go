package main

import "github.com/emrgen/linkfeed/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/vbwagner/client-code/cmd"

func main() {
	cmd.Execute()
}

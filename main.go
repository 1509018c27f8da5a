package main

import "chatline/cmd"

func main() {
	cmd.Execute()
}

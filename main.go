package main

import "scientia/cmd"

func main() {
	cmd.Execute()
}

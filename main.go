package main

import "indexq/cmd"

func main() {
	cmd.Run()
}

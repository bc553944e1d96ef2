package main

import "github.com/THPTUHA/livelook/server/cmd"

func main() {
	cmd.Execute()
}

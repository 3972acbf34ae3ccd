package main

import "bmcheck.local/cmd/bmcheck/cmd"

func main() {
	cmd.Execute()
}

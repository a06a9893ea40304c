package main

import "kpisync/cmd"

func main() {
	cmd.Execute()
}

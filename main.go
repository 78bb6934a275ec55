package main

import "github.com/darmiel/warrant/cmd"

func main() {
	cmd.Execute()
}

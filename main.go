package main

import "github.com/pravin-sarule/jurinex-dev-sub002/cmd"

func main() {
	cmd.Execute()
}

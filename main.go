package main

import "github.com/frahmantamala/authcore/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/frahmantamala/momo-collections/cmd"

func main() {
	cmd.Execute()
}

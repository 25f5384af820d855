package main

import (
	"github.com/luma/netsoul/cmd"
)

func main() {
	cmd.Execute()
}

package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/voluzi/procview/cmd/procview/cmd"
)

func main() {
	cmd.Execute()
}

package main

import (
	"github.com/gpukit/gpuprof/pkg/cmd"
)

func main() {
	cmd.Execute()
}

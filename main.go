package main

import (
	"github.com/vhive-serverless/loadgen/cmd"
)

func main() {
	cmd.Execute()
}

// Entrypoint for the Cobra CLI; all command handling lives in package cmd.

package main

import (
	"github.com/edgelambda/dispatcher/cmd"
)

func main() {
	cmd.Execute()
}

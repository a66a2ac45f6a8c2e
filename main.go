// The main package for the fda-recalls executable.
package main

import (
	"github.com/gracepitts/fda-recalls/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

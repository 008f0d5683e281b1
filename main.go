// The main package for the newsharvest executable.
package main

import (
	"github.com/jswain/newsharvest/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

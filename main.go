// The main package for the devharvest executable.
package main

import (
	"github.com/JakeFAU/devharvest/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

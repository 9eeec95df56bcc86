// The main package for the resona executable.
package main

import (
	"github.com/JakeFAU/resona/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

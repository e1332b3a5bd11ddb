// The main package for the eures-crawler executable.
package main

import (
	"github.com/JakeFAU/eures-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}

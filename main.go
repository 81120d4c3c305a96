// The main package for the crawlai executable.
package main

import (
	"github.com/agarwalvipin/crawlai/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

// The main package for the oliveyoung-crawler executable.
package main

import (
	"oliveyoung-crawler/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}

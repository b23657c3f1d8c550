package main

import (
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess = 0 // Session finished (or command succeeded)
	ExitError   = 2 // Configuration or runtime error
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitError)
	}
}

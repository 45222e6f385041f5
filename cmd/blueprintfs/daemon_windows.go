package main

import "fmt"

// daemonize is unsupported on Windows; run with -foreground under a service
// manager instead.
func daemonize() error {
	return fmt.Errorf("background mode is not supported on windows, run with -foreground")
}

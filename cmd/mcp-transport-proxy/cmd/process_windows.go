//go:build windows

package cmd

import "os"

// gracefulSignals returns the OS signals that trigger graceful shutdown.
// On Windows, only os.Interrupt (Ctrl+C) is reliably delivered; SIGTERM does
// not exist.
func gracefulSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

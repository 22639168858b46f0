package main

import (
	"os"
	"os/signal"
	"syscall"
)

// waitForSignal blocks until a server goroutine fails or SIGINT/SIGTERM
// arrives, then closes shutdownC to start the graceful shutdown.
func waitForSignal(errC <-chan error, shutdownC chan struct{}) error {
	signals := make(chan os.Signal, 10)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(signals)

	select {
	case err := <-errC:
		close(shutdownC)
		return err
	case <-signals:
		close(shutdownC)
	case <-shutdownC:
	}
	return nil
}

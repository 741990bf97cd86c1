//go:build unix

package main

import (
	"os"
	"os/signal"
	"syscall"

	"pollooper/internal/app"
)

// watchCrossingSignal turns SIGUSR1 into a traffic lights crossing request.
func watchCrossingSignal(a *app.App) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ch:
				a.RequestCrossing()
			}
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

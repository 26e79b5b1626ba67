package registry

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// CloseOnSignal closes the registry when the process receives SIGINT or
// SIGTERM. The returned stop function detaches the handler without
// closing anything.
func CloseOnSignal(r *Registry) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			_ = r.Close(context.Background())
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

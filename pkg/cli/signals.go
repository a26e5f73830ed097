package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
// A second signal after cancellation restores default handling, so it
// terminates the process immediately.
func SetupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

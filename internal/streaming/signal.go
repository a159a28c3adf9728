package streaming

import (
	"os"
	"syscall"
)

// processTerminateSignal is the graceful-termination signal sent to a
// transcoder child process before the hard kill deadline.
func processTerminateSignal() os.Signal {
	return syscall.SIGTERM
}

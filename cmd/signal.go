package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/creativeprojects/mailarchive/term"
)

const exitInterrupted = 130

// cancelOnInterrupt cancels the token on the first interrupt and exits on the second one.
// The returned function stops listening.
func cancelOnInterrupt(token *lib.CancelToken) func() {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-signals:
				if token.Cancel() == lib.CancelEscalated {
					term.Error("interrupted")
					os.Exit(exitInterrupted)
				}
				term.Warn("stopping after the messages in progress... (interrupt again to quit now)")
			}
		}
	}()
	return func() {
		signal.Stop(signals)
		close(done)
	}
}

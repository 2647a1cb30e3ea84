package main

import (
	"os"
	"os/signal"
)

// installExitGuard warns before letting an interrupt tear down an
// in-progress transfer, the way a browser warns before closing a tab
// mid-transfer. While active reports true, the first SIGINT is absorbed
// and a warning printed instead of exiting; a second SIGINT (or any
// SIGINT once active reports false) terminates the process normally.
// Call the returned func to stop listening once the transfer is done.
func installExitGuard(active func() bool) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	warned := false

	go func() {
		for range ch {
			if active() && !warned {
				warned = true
				warnf("transfer in progress, interrupt again to quit anyway")
				continue
			}
			signal.Stop(ch)
			os.Exit(130)
		}
	}()

	return func() { signal.Stop(ch) }
}

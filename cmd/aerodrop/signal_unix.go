//go:build linux || darwin || freebsd

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
)

// statsDumper is set by the active send/receive command to a function
// that renders the current transfer snapshot; nil before a transfer
// starts. SIGUSR1 prints it, the same signal used elsewhere in this
// toolchain's lineage to dump protocol counters on demand.
var statsDumper func() string

func init() {
	go sigHandler()
}

func sigHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	signal.Ignore(syscall.SIGPIPE)

	for range ch {
		if statsDumper != nil {
			log.Println("aerodrop stats:", statsDumper())
		}
	}
}

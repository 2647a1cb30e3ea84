// Command aerodrop sends and receives files over a reliable, encrypted,
// flow-controlled peer-to-peer channel. It has two subcommands, send and
// receive, each registering or resolving a short rendezvous code before
// streaming begins.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli"
)

// VERSION is injected by buildflags.
var VERSION = "SELFBUILD"

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "aerodrop"
	app.Usage = "peer-to-peer encrypted file transfer"
	app.Version = VERSION
	app.Commands = []cli.Command{
		sendCommand(),
		receiveCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "aerodrop: %+v\n", err)
		os.Exit(1)
	}
}

func redirectLog(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	return func() { f.Close() }, nil
}

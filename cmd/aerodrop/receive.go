package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/aerodrop/aerodrop/internal/config"
	"github.com/aerodrop/aerodrop/internal/protocol"
	"github.com/aerodrop/aerodrop/internal/session"
	"github.com/aerodrop/aerodrop/internal/session/broker"
)

func receiveCommand() cli.Command {
	return cli.Command{
		Name:      "receive",
		Usage:     "dial the rendezvous address and receive the files a sender offers",
		ArgsUsage: "CODE",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "out",
				Value: ".",
				Usage: "directory to write received files into",
			},
			cli.StringFlag{
				Name:   "key",
				Usage:  "pre-shared secret between sender and receiver",
				EnvVar: "AERODROP_KEY",
			},
			cli.StringFlag{
				Name:  "crypt",
				Value: "aes",
				Usage: "aes, aes-128, aes-128-gcm, salsa20, none",
			},
			cli.IntFlag{
				Name:  "datashard,ds",
				Value: 10,
				Usage: "reed-solomon erasure coding data shards",
			},
			cli.IntFlag{
				Name:  "parityshard,ps",
				Value: 3,
				Usage: "reed-solomon erasure coding parity shards",
			},
			cli.BoolFlag{
				Name:  "nocomp",
				Usage: "disable snappy compression",
			},
			cli.IntFlag{
				Name:  "mtu",
				Value: 1350,
				Usage: "maximum transmission unit for UDP packets",
			},
			cli.IntFlag{
				Name:  "sndwnd",
				Value: 128,
				Usage: "send window size (packets)",
			},
			cli.IntFlag{
				Name:  "rcvwnd",
				Value: 512,
				Usage: "receive window size (packets)",
			},
			cli.IntFlag{
				Name:  "reconnects",
				Value: 3,
				Usage: "times to retry after the channel is lost mid-transfer before giving up",
			},
			cli.StringFlag{
				Name:  "statslog",
				Usage: "CSV file to append transfer speed samples to",
			},
			cli.BoolFlag{
				Name:  "quiet",
				Usage: "suppress progress output",
			},
			cli.StringFlag{
				Name:  "log",
				Usage: "log file to write to, default stderr",
			},
			cli.StringFlag{
				Name:  "c",
				Usage: "load flags from a JSON config file, overriding the above",
			},
		},
		Action: receiveAction,
	}
}

func receiveAction(c *cli.Context) error {
	cfg := config.DefaultReceiver()
	cfg.Code = c.Args().First()
	cfg.Key = c.String("key")
	cfg.Crypt = c.String("crypt")
	cfg.DataShard = c.Int("datashard")
	cfg.ParityShard = c.Int("parityshard")
	cfg.Compress = !c.Bool("nocomp")
	cfg.MTU = c.Int("mtu")
	cfg.SndWnd = c.Int("sndwnd")
	cfg.RcvWnd = c.Int("rcvwnd")
	cfg.Out = c.String("out")
	cfg.StatsLog = c.String("statslog")
	cfg.Quiet = c.Bool("quiet")

	if path := c.String("c"); path != "" {
		if err := config.ParseJSONFile(&cfg, path); err != nil {
			return errors.Wrap(err, "load config file")
		}
	}

	closeLog, err := redirectLog(c.String("log"))
	if err != nil {
		return errors.Wrap(err, "open log file")
	}
	defer closeLog()

	if cfg.Code == "" {
		return errors.New("no rendezvous code/address given")
	}

	receiver := session.NewReceiver(session.ReceiverConfig{
		Code:        cfg.Code,
		PreShared:   cfg.Key,
		Crypt:       cfg.Crypt,
		Compress:    cfg.Compress,
		DataShard:   cfg.DataShard,
		ParityShard: cfg.ParityShard,
		MTU:         cfg.MTU,
		SndWnd:      cfg.SndWnd,
		RcvWnd:      cfg.RcvWnd,
		Broker:      broker.Direct{},
		SinkFactory: fileSinkFactory(cfg.Out),
	})
	receiver.SeekableResume(0)

	statsDumper = func() string {
		snap := receiver.Snapshot()
		return fmt.Sprintf("phase=%s file=%d bytes=%d", snap.Phase, snap.FileIndex, snap.BytesDelivered)
	}

	progress := newProgressPrinter(0, func() int64 { return receiver.Snapshot().BytesDelivered }, cfg.StatsLog, cfg.Quiet)
	progress.Start()
	defer progress.Stop()

	stopGuard := installExitGuard(func() bool {
		switch receiver.Snapshot().Phase {
		case "negotiating", "streaming":
			return true
		default:
			return false
		}
	})
	defer stopGuard()

	ctx := context.Background()
	attempts := 0
	for {
		err := receiver.Run(ctx)
		snap := receiver.Snapshot()

		if err == nil && snap.Phase == protocol.PhaseCompleted.String() {
			if !cfg.Quiet {
				color.Green("transfer complete")
			}
			return nil
		}
		if err == nil && snap.Phase != protocol.PhaseFailed.String() {
			// terminal but not a completion (cancelled, expired): report
			// and stop, there is nothing left to retry.
			return errors.Errorf("session ended: %s", snap.Phase)
		}
		if snap.FailReason != string(protocol.ReasonChannelClosed) || attempts >= c.Int("reconnects") {
			if err != nil {
				return errors.Wrap(err, "receive")
			}
			return errors.Errorf("session failed: %s", snap.FailReason)
		}

		attempts++
		warnf("channel lost, reconnecting (attempt %d/%d)", attempts, c.Int("reconnects"))
		receiver.SeekableResume(snap.BytesDelivered)
		time.Sleep(time.Second)
	}
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/aerodrop/aerodrop/internal/config"
	"github.com/aerodrop/aerodrop/internal/session"
	"github.com/aerodrop/aerodrop/internal/session/broker"
	"github.com/aerodrop/aerodrop/internal/transport"
)

func sendCommand() cli.Command {
	return cli.Command{
		Name:      "send",
		Usage:     "register a rendezvous code and send files to the peer that connects",
		ArgsUsage: "FILE [FILE...]",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "code",
				Usage: "rendezvous code to register (the direct broker ignores this; share the printed relay address instead)",
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
			cli.StringFlag{
				Name:  "listen",
				Value: ":0",
				Usage: "local address to bind, eg ':0' for an ephemeral port",
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
			cli.StringFlag{
				Name:  "class",
				Usage: "force 'lan' or 'wan' chunk/watermark tunables instead of auto-classifying the peer address",
			},
			cli.IntFlag{
				Name:  "expire",
				Usage: "reject any peer that connects after this many seconds, 0 = never",
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
		Action: sendAction,
	}
}

func sendAction(c *cli.Context) error {
	cfg := config.DefaultSender()
	cfg.Code = c.String("code")
	cfg.Key = c.String("key")
	cfg.Crypt = c.String("crypt")
	cfg.Listen = c.String("listen")
	cfg.DataShard = c.Int("datashard")
	cfg.ParityShard = c.Int("parityshard")
	cfg.Compress = !c.Bool("nocomp")
	cfg.Class = c.String("class")
	cfg.ExpireAfter = c.Int("expire")
	cfg.StatsLog = c.String("statslog")
	cfg.Quiet = c.Bool("quiet")
	cfg.Paths = []string(c.Args())

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

	if len(cfg.Paths) == 0 {
		return errors.New("no files given to send")
	}

	var expiresAt time.Time
	var expiresAtMs int64
	if cfg.ExpireAfter > 0 {
		expiresAt = time.Now().Add(time.Duration(cfg.ExpireAfter) * time.Second)
		expiresAtMs = expiresAt.UnixMilli()
	}

	m, open, err := buildManifest(cfg.Paths, expiresAtMs)
	if err != nil {
		return err
	}

	classOverride, err := parseClassOverride(cfg.Class)
	if err != nil {
		warnf("%v, auto-detecting instead", err)
	}

	sender := session.NewSender(session.SenderConfig{
		Code:          cfg.Code,
		PreShared:     cfg.Key,
		Crypt:         cfg.Crypt,
		Compress:      cfg.Compress,
		ListenAddr:    cfg.Listen,
		DataShard:     cfg.DataShard,
		ParityShard:   cfg.ParityShard,
		Manifest:      m,
		ExpiresAt:     expiresAt,
		ClassOverride: classOverride,
		Broker:        broker.Direct{},
		Open:          open,
	})

	statsDumper = func() string {
		snap := sender.Snapshot()
		return fmt.Sprintf("phase=%s file=%d bytes=%d", snap.Phase, snap.FileIndex, snap.BytesDelivered)
	}

	progress := newProgressPrinter(m.TotalSize, func() int64 { return sender.Snapshot().BytesDelivered }, cfg.StatsLog, cfg.Quiet)
	progress.Start()
	defer progress.Stop()

	stopGuard := installExitGuard(func() bool {
		switch sender.Snapshot().Phase {
		case "negotiating", "streaming":
			return true
		default:
			return false
		}
	})
	defer stopGuard()

	go printRelayAddrWhenReady(sender, cfg.Quiet)

	if err := sender.Run(context.Background()); err != nil {
		return errors.Wrap(err, "send")
	}

	if !cfg.Quiet {
		color.Green("transfer complete")
	}
	return nil
}

func parseClassOverride(class string) (*transport.NetworkClass, error) {
	switch class {
	case "":
		return nil, nil
	case "lan":
		c := transport.ClassLAN
		return &c, nil
	case "wan":
		c := transport.ClassWAN
		return &c, nil
	default:
		return nil, errors.Errorf("unknown network class %q", class)
	}
}

func printRelayAddrWhenReady(sender *session.Sender, quiet bool) {
	if quiet {
		return
	}
	for i := 0; i < 100; i++ {
		if addr := sender.RelayAddr(); addr != "" {
			color.Green("share this address with the receiver: %s", addr)
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}

package main

import (
	"log"
	"time"

	"github.com/fatih/color"

	"github.com/aerodrop/aerodrop/internal/stats"
)

const sampleInterval = time.Second

// progressPrinter drives a stats.Sampler off current (a Snapshot's
// BytesDelivered field read through a closure, since Sender and Receiver
// expose it through different accessor types) and prints one line per
// sample, plus an optional CSV row.
type progressPrinter struct {
	sampler *stats.Sampler
	csv     *stats.CSVLogger
	quiet   bool
}

func newProgressPrinter(totalSize int64, current func() int64, csvPath string, quiet bool) *progressPrinter {
	p := &progressPrinter{csv: stats.NewCSVLogger(csvPath), quiet: quiet}
	p.sampler = stats.NewSampler(sampleInterval, totalSize, current, p.onSample)
	return p
}

func (p *progressPrinter) Start() { p.sampler.Start() }
func (p *progressPrinter) Stop()  { p.sampler.Stop() }

func (p *progressPrinter) onSample(s stats.Sample) {
	if err := p.csv.Log(s); err != nil {
		log.Println("stats csv write failed:", err)
	}
	if p.quiet {
		return
	}
	eta := "unknown"
	if s.ETA >= 0 {
		eta = s.ETA.Round(time.Second).String()
	}
	color.Cyan("%d bytes, %.1f KiB/s, eta %s", s.BytesDelivered, s.Speed/1024, eta)
}

// warnf prints a colored operator warning for a misconfiguration or a
// recoverable mid-transfer condition.
func warnf(format string, args ...any) {
	color.Red(format, args...)
}

// Package stats implements the 1Hz speed/ETA sampling loop and the
// optional CSV transfer-stats logger.
package stats

import "time"

// Sample is one speed/ETA observation. ETA is -1 when speed is zero
// (no progress to extrapolate from).
type Sample struct {
	BytesDelivered int64
	Speed          float64 // bytes per second
	ETA            time.Duration
}

// Sampler ticks once per interval, computing speed from the delta in
// bytes delivered since the last tick and deriving ETA from the
// manifest's total size. It renders the counter it is given rather than
// a derivative computed inside the hot transfer path.
type Sampler struct {
	interval time.Duration
	total    int64
	current  func() int64
	onSample func(Sample)

	stop chan struct{}
	done chan struct{}
}

// NewSampler builds a Sampler. total is the manifest's total byte count;
// current returns the running bytes-delivered counter.
func NewSampler(interval time.Duration, total int64, current func() int64, onSample func(Sample)) *Sampler {
	return &Sampler{
		interval: interval,
		total:    total,
		current:  current,
		onSample: onSample,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins sampling in a background goroutine.
func (s *Sampler) Start() {
	go s.run()
}

// Stop ends the sampling loop and waits for it to exit.
func (s *Sampler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sampler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := s.current()
	for {
		select {
		case <-ticker.C:
			now := s.current()
			sample := s.sample(last, now)
			last = now
			if s.onSample != nil {
				s.onSample(sample)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *Sampler) sample(last, now int64) Sample {
	delta := now - last
	if delta < 0 {
		delta = 0
	}
	speed := float64(delta) / s.interval.Seconds()

	var eta time.Duration
	if speed > 0 {
		remaining := s.total - now
		if remaining < 0 {
			remaining = 0
		}
		eta = time.Duration(float64(remaining)/speed*float64(time.Second))
	} else {
		eta = -1
	}

	return Sample{BytesDelivered: now, Speed: speed, ETA: eta}
}

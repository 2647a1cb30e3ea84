package stats

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var csvHeader = []string{"Unix", "BytesDelivered", "SpeedBps", "ETASeconds"}

// CSVLogger appends one row per sample to path, creating it (and the
// header row) on first write. path's filename portion is formatted with
// time.Format so callers can roll a new file per day, matching the
// teacher's own log-rotation convention.
type CSVLogger struct {
	path string
}

// NewCSVLogger builds a logger writing to path. A blank path disables
// logging: Log becomes a no-op.
func NewCSVLogger(path string) *CSVLogger {
	return &CSVLogger{path: path}
}

// Log appends one row for sample. Errors are not fatal to the transfer;
// callers typically just log.Println them.
func (l *CSVLogger) Log(sample Sample) error {
	if l.path == "" {
		return nil
	}
	dir, file := filepath.Split(l.path)
	name := dir + time.Now().Format(file)

	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	row := []string{
		fmt.Sprint(time.Now().Unix()),
		fmt.Sprint(sample.BytesDelivered),
		fmt.Sprintf("%.2f", sample.Speed),
		fmt.Sprint(sample.ETA.Seconds()),
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

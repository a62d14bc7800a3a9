package session

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"codeberg.org/mutker/tapometer/internal/device"
	"codeberg.org/mutker/tapometer/internal/errors"
)

// TimestampLayout is the sortable wall-clock format used for sample rows
// and progress log lines.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	outputExtension = ".csv"
	defaultDirPerm  = 0o755
)

// Sample is one timestamped power reading.
type Sample struct {
	Timestamp time.Time
	Power     device.Milliwatts
}

// Sink accumulates samples in capture order. It is owned by a single
// session and only ever touched from the session's worker goroutine.
type Sink struct {
	samples []Sample
}

func NewSink() *Sink {
	return &Sink{}
}

func (s *Sink) Append(sample Sample) {
	s.samples = append(s.samples, sample)
}

func (s *Sink) Len() int {
	return len(s.samples)
}

func (s *Sink) Samples() []Sample {
	return s.samples
}

// WriteCSV persists all samples to path in one atomic step: rows are
// written to a temp file in the same directory, which is renamed onto the
// final path only after a clean close. A failed write never leaves a
// truncated file at path.
func (s *Sink) WriteCSV(path string) error {
	errFactory := errors.New()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp")
	if err != nil {
		return errFactory.Wrap(ErrPersistFailed, err)
	}
	tmpPath := tmp.Name()

	if err := s.writeRows(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errFactory.Wrap(ErrPersistFailed, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errFactory.Wrap(ErrPersistFailed, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errFactory.Wrap(ErrPersistFailed, err)
	}

	return nil
}

func (s *Sink) writeRows(f *os.File) error {
	w := csv.NewWriter(f)

	if err := w.Write([]string{"timestamp", "power"}); err != nil {
		return err
	}
	for _, sample := range s.samples {
		row := []string{
			sample.Timestamp.Format(TimestampLayout),
			strconv.FormatInt(int64(sample.Power), 10),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()

	return w.Error()
}

// ResolveOutputPath creates dir if needed and returns the first
// non-colliding path for base: base.csv, then base_1.csv, base_2.csv, …
// Resolution happens once per session, before it starts running.
func ResolveOutputPath(dir, base string) (string, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", errFactory.Wrap(ErrOutputPathFailed, err)
	}

	path := filepath.Join(dir, base+outputExtension)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		} else if err != nil {
			return "", errFactory.Wrap(ErrOutputPathFailed, err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, counter, outputExtension))
	}
}

package journal

import (
	"context"
	"time"
)

// Recorder defines the core domain interface
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	Close() error
}

// Entry is the durable record of one finished measurement session.
type Entry struct {
	ID         string
	Address    string
	Interval   time.Duration
	Duration   time.Duration
	State      string
	Samples    int
	OutputPath string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

package eventlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"extcode/internal/core"
)

// EventLog writes one JSON object per line. It is safe for concurrent use
// by the launchers of parallel evaluations.
type EventLog struct {
	mu  sync.Mutex
	w   io.Writer
	c   io.Closer
	now func() time.Time
}

func New(path string) (*EventLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	return &EventLog{w: file, c: file, now: time.Now}, nil
}

// NewWriter logs to w; Close leaves w open.
func NewWriter(w io.Writer) *EventLog {
	return &EventLog{w: w, now: time.Now}
}

func (l *EventLog) Emit(event core.Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	payload := struct {
		TS string `json:"ts"`
		core.Event
	}{
		TS:    l.now().UTC().Format(time.RFC3339Nano),
		Event: event,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if _, err := l.w.Write(append(data, '\n')); err != nil {
		return err
	}

	return nil
}

func (l *EventLog) Close() error {
	if l == nil || l.c == nil {
		return nil
	}
	return l.c.Close()
}

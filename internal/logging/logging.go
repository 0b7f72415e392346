// Package logging builds the process logger and per-session loggers whose
// entries are also collected into a chronological log for the caller.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to out (stderr when nil) at the given level,
// formatted as "text" or "json".
func New(level, format string, out io.Writer) (*logrus.Logger, error) {
	if out == nil {
		out = os.Stderr
	}

	lvl := logrus.InfoLevel
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)

	switch format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}

	return logger, nil
}

// Entry is one line of a session log.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// Collector is a logrus hook that keeps every entry it sees.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
}

// Levels implements logrus.Hook.
func (c *Collector) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (c *Collector) Fire(entry *logrus.Entry) error {
	e := Entry{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}
	if len(entry.Data) > 0 {
		e.Details = make(map[string]any, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			e.Details[k] = v
		}
	}

	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()
	return nil
}

// Entries returns a copy of the collected entries in the order they were logged.
func (c *Collector) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// forwardHook re-logs session entries on the base logger, which applies its
// own level filter and formatter.
type forwardHook struct {
	base *logrus.Logger
}

func (h forwardHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h forwardHook) Fire(entry *logrus.Entry) error {
	if h.base.IsLevelEnabled(entry.Level) {
		h.base.WithFields(entry.Data).WithTime(entry.Time).Log(entry.Level, entry.Message)
	}
	return nil
}

// NewSession returns a logger for one invocation. Every entry down to debug
// is collected; entries the base logger's level allows are also written to
// its output. The base logger itself is never modified.
func NewSession(base *logrus.Logger, fields logrus.Fields) (*logrus.Entry, *Collector) {
	collector := &Collector{}

	session := logrus.New()
	session.SetOutput(io.Discard)
	session.SetLevel(logrus.DebugLevel)
	session.AddHook(collector)
	if base != nil {
		session.AddHook(forwardHook{base: base})
	}

	return session.WithFields(fields), collector
}

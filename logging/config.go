package logging

import "time"

// Config tunes the event pipeline. Zero fields fall back to the
// defaults the router applies itself, so cmd code only sets what it
// overrides.
type Config struct {
	// BufferSize caps the router queue; publishes beyond it are dropped.
	BufferSize int
	// MinimumSeverity filters events before they reach any sink.
	MinimumSeverity Severity
	// Fields is attached to every event that does not already set them.
	Fields  map[string]any
	JSON    JSONConfig
	Console ConsoleConfig
	// DropWarnInterval rate-limits the queue-full warning.
	DropWarnInterval time.Duration
}

// JSONConfig tunes the newline-delimited JSON file sink.
type JSONConfig struct {
	// FilePath is the file events are appended to; empty disables the
	// sink.
	FilePath string
	// FlushInterval is the cadence of background flushes. Non-positive
	// flushes after every write instead.
	FlushInterval time.Duration
}

// ConsoleConfig tunes the human-readable sink.
type ConsoleConfig struct {
	// UseColor wraps the severity tag in ANSI color codes.
	UseColor bool
}

func DefaultConfig() Config {
	return Config{
		BufferSize:       512,
		MinimumSeverity:  SeverityInfo,
		DropWarnInterval: 5 * time.Second,
		JSON: JSONConfig{
			FlushInterval: 2 * time.Second,
		},
	}
}

func (c Config) CloneFields() map[string]any {
	if len(c.Fields) == 0 {
		return nil
	}
	cloned := make(map[string]any, len(c.Fields))
	for k, v := range c.Fields {
		cloned[k] = v
	}
	return cloned
}

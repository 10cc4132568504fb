package logger

import (
	"io"
	"log/slog"
)

// Option mutates the handler settings used by New.
type Option func(*config)

// WithDebug lowers the threshold to slog.LevelDebug. Relay deltas and dropped
// upstream records are only logged at that level.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithPretty selects the charmbracelet/log handler used by interactive
// commands.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.pretty = pretty }
}

// WithJSON selects slog's JSON handler. Ignored when WithPretty is also set.
func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithWriter sends output to w instead of os.Stdout.
func WithWriter(w io.Writer) Option {
	return WithWriters(w)
}

// WithWriters sends output to every w.
func WithWriters(w ...io.Writer) Option {
	return func(c *config) { c.writers = w }
}

// WithSource adds the caller's file:line to each record.
func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}

// WithComponent tags every record with component=name, e.g. "relay" or
// "chat".
func WithComponent(name string) Option {
	return func(c *config) { c.component = name }
}

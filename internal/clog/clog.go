// Package clog provides the level-gated structured logger used by every
// worker thread in mvlcdaq (readout, stream worker, consumers, transport).
package clog

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// LogProvider is the sink a Clog forwards enabled messages to. Messages
// carry a free-form text plus an even number of key/value pairs, matching
// the structured call-site idiom ("msg", "key", val, "key2", val2, ...).
type LogProvider interface {
	Critical(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Debug(msg string, kv ...interface{})
}

// Clog is a cheap-to-copy handle around a shared LogProvider with its own
// independent enable flag, so each worker thread can silence its own
// chatter without touching the others.
type Clog struct {
	provider LogProvider
	prefix   string
	// has is 1 when output is enabled, 0 when disabled.
	has uint32
}

// NewLogger creates a logger that writes to os.Stdout via the default
// provider, tagged with prefix (typically the owning subsystem's name,
// e.g. "readout", "stream-worker", "archive").
func NewLogger(prefix string) Clog {
	return Clog{
		provider: defaultLogger{log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)},
		prefix:   prefix,
		has:      1,
	}
}

// LogMode enables or disables output for this logger handle only.
func (c *Clog) LogMode(enable bool) {
	if enable {
		atomic.StoreUint32(&c.has, 1)
	} else {
		atomic.StoreUint32(&c.has, 0)
	}
}

// SetLogProvider swaps the underlying sink, e.g. to route messages into a
// test-capture buffer or a structured JSON writer.
func (c *Clog) SetLogProvider(p LogProvider) {
	if p != nil {
		c.provider = p
	}
}

// WithPrefix returns a copy of the logger tagged with a sub-component
// name, e.g. log.WithPrefix("eth-channel-0").
func (c Clog) WithPrefix(prefix string) Clog {
	if c.prefix != "" {
		prefix = c.prefix + "." + prefix
	}
	c.prefix = prefix
	return c
}

func (c Clog) enabled() bool { return atomic.LoadUint32(&c.has) == 1 }

func (c Clog) tag(msg string) string {
	if c.prefix == "" {
		return msg
	}
	return "[" + c.prefix + "] " + msg
}

// Critical logs an unrecoverable-condition message.
func (c Clog) Critical(msg string, kv ...interface{}) {
	if c.enabled() {
		c.provider.Critical(c.tag(msg), kv...)
	}
}

// Error logs a fatal-to-the-current-operation message.
func (c Clog) Error(msg string, kv ...interface{}) {
	if c.enabled() {
		c.provider.Error(c.tag(msg), kv...)
	}
}

// Warn logs a recoverable-but-notable condition.
func (c Clog) Warn(msg string, kv ...interface{}) {
	if c.enabled() {
		c.provider.Warn(c.tag(msg), kv...)
	}
}

// Info logs a routine lifecycle event (run start/stop, frame resync).
func (c Clog) Info(msg string, kv ...interface{}) {
	if c.enabled() {
		c.provider.Info(c.tag(msg), kv...)
	}
}

// Debug logs high-volume diagnostic detail.
func (c Clog) Debug(msg string, kv ...interface{}) {
	if c.enabled() {
		c.provider.Debug(c.tag(msg), kv...)
	}
}

type defaultLogger struct {
	*log.Logger
}

var _ LogProvider = defaultLogger{}

func (d defaultLogger) Critical(msg string, kv ...interface{}) { d.emit("C", msg, kv...) }
func (d defaultLogger) Error(msg string, kv ...interface{})    { d.emit("E", msg, kv...) }
func (d defaultLogger) Warn(msg string, kv ...interface{})     { d.emit("W", msg, kv...) }
func (d defaultLogger) Info(msg string, kv ...interface{})     { d.emit("I", msg, kv...) }
func (d defaultLogger) Debug(msg string, kv ...interface{})    { d.emit("D", msg, kv...) }

func (d defaultLogger) emit(level, msg string, kv ...interface{}) {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(level)
	b.WriteString("] ")
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	if len(kv)%2 == 1 {
		fmt.Fprintf(&b, " %v=<missing>", kv[len(kv)-1])
	}
	d.Print(b.String())
}

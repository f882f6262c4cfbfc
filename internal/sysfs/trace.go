package sysfs

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"codeberg.org/mutker/powerstatd/internal/errors"
)

var tracefsDirs = []string{
	"/sys/kernel/tracing",
	"/sys/kernel/debug/tracing",
}

// TraceRecord is one matched line of the kernel event trace.
type TraceRecord struct {
	Timestamp float64
	Value     string
}

// Tracer reads the ftrace ring buffer through tracefs.
type Tracer struct {
	fs  FS
	dir string
}

// NewTracer locates tracefs. ok is false when neither mount point exists.
func NewTracer(fs FS) (*Tracer, bool) {
	for _, dir := range tracefsDirs {
		if fs.Exists(path.Join(dir, "trace")) {
			return &Tracer{fs: fs, dir: dir}, true
		}
	}

	return nil, false
}

// HasEvent reports whether the "system/event" trace event exists.
func (t *Tracer) HasEvent(event string) bool {
	return t.fs.Exists(path.Join(t.dir, "events", event, "enable"))
}

// Enable turns on the "system/event" trace event and global tracing. The
// trace clock is switched to "boot" where the kernel offers it, so record
// timestamps share a timebase with /proc/uptime across suspend.
func (t *Tracer) Enable(event string) error {
	if err := t.useBootClock(); err != nil {
		return errors.New().Wrap(ErrTraceFailed, err)
	}

	if err := t.fs.WriteString(path.Join(t.dir, "events", event, "enable"), "1"); err != nil {
		return errors.New().Wrap(ErrTraceFailed, err)
	}

	if err := t.fs.WriteString(path.Join(t.dir, "tracing_on"), "1"); err != nil {
		return errors.New().Wrap(ErrTraceFailed, err)
	}

	return nil
}

// useBootClock selects the boot trace clock. Switching clears the ring
// buffer, so it is skipped when already selected.
func (t *Tracer) useBootClock() error {
	file := path.Join(t.dir, "trace_clock")
	line, err := t.fs.ReadLine(file)
	if err != nil {
		return nil
	}

	// The selected clock is bracketed: "local [global] boot".
	for _, c := range strings.Fields(line) {
		switch c {
		case "[boot]":
			return nil
		case "boot":
			return t.fs.WriteString(file, "boot")
		}
	}

	return nil
}

// Records returns the lines of the trace buffer matched by re whose
// timestamp is strictly greater than after. re must capture the timestamp
// in its first group and the value in its second.
func (t *Tracer) Records(re *regexp.Regexp, after float64) ([]TraceRecord, error) {
	lines, err := t.fs.ReadLines(path.Join(t.dir, "trace"))
	if err != nil {
		return nil, errors.New().Wrap(ErrTraceFailed, err)
	}

	return MatchTrace(lines, re, after), nil
}

// MatchTrace filters raw trace lines. Lines that do not match, or carry an
// unparsable timestamp, are skipped.
func MatchTrace(lines []string, re *regexp.Regexp, after float64) []TraceRecord {
	var out []TraceRecord
	for _, line := range lines {
		m := re.FindStringSubmatch(line)
		if len(m) < 3 {
			continue
		}

		ts, err := strconv.ParseFloat(m[1], 64)
		if err != nil || ts <= after {
			continue
		}

		out = append(out, TraceRecord{Timestamp: ts, Value: m[2]})
	}

	return out
}

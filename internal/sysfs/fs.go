// Package sysfs reads the kernel's text interfaces (sysfs, procfs, debugfs,
// tracefs) and model-specific registers. Every path handed to FS is an
// absolute host path; FS re-roots it so tests can serve a fake tree.
package sysfs

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/powerstatd/internal/errors"
)

const (
	uptimePath    = "/proc/uptime"
	onlineCPUPath = "/sys/devices/system/cpu/online"
)

// FS is a rooted view of the host filesystem.
type FS struct {
	root string
}

// NewFS returns an FS whose absolute paths resolve under root. An empty root
// means the real filesystem.
func NewFS(root string) FS {
	if root == "" {
		root = "/"
	}

	return FS{root: root}
}

// Root returns the prefix every path is resolved under.
func (fs FS) Root() string {
	return fs.root
}

// Path maps a host path onto the rooted tree.
func (fs FS) Path(path string) string {
	if fs.root == "/" {
		return path
	}

	return filepath.Join(fs.root, path)
}

// ReadLine returns the first line of path with surrounding space trimmed.
func (fs FS) ReadLine(path string) (string, error) {
	errFactory := errors.New()

	f, err := os.Open(fs.Path(path))
	if err != nil {
		return "", errFactory.WrapWithData(ErrReadFailed, err, path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", errFactory.WrapWithData(ErrReadFailed, err, path)
		}
		return "", errFactory.WithData(ErrEmptyFile, path)
	}

	return strings.TrimSpace(scanner.Text()), nil
}

// ReadLines returns every line of path.
func (fs FS) ReadLines(path string) ([]string, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(fs.Path(path))
	if err != nil {
		return nil, errFactory.WrapWithData(ErrReadFailed, err, path)
	}

	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, nil
	}

	return strings.Split(text, "\n"), nil
}

// ReadUint parses the first line of path as an unsigned decimal (or 0x hex).
func (fs FS) ReadUint(path string) (uint64, error) {
	line, err := fs.ReadLine(path)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseUint(line, 0, 64)
	if err != nil {
		return 0, errors.New().WrapWithData(ErrParseFailed, err, path)
	}

	return v, nil
}

// WriteString replaces the content of path with s.
func (fs FS) WriteString(path, s string) error {
	if err := os.WriteFile(fs.Path(path), []byte(s), 0o644); err != nil {
		return errors.New().WrapWithData(ErrWriteFailed, err, path)
	}

	return nil
}

// Exists reports whether path is present.
func (fs FS) Exists(path string) bool {
	_, err := os.Stat(fs.Path(path))
	return err == nil
}

// Glob returns the host paths matching pattern, sorted.
func (fs FS) Glob(pattern string) []string {
	matches, err := filepath.Glob(fs.Path(pattern))
	if err != nil {
		return nil
	}

	if fs.root == "/" {
		return matches
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(fs.root, m)
		if err != nil {
			continue
		}
		out = append(out, "/"+filepath.ToSlash(rel))
	}

	return out
}

// Uptime returns seconds since boot from /proc/uptime.
func (fs FS) Uptime() (float64, error) {
	line, err := fs.ReadLine(uptimePath)
	if err != nil {
		return 0, err
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, errors.New().WithData(ErrParseFailed, uptimePath)
	}

	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, errors.New().WrapWithData(ErrParseFailed, err, uptimePath)
	}

	return v, nil
}

// OnlineCPUs returns the logical CPU ids listed in
// /sys/devices/system/cpu/online.
func (fs FS) OnlineCPUs() ([]int, error) {
	line, err := fs.ReadLine(onlineCPUPath)
	if err != nil {
		return nil, err
	}

	return ParseCPUList(line)
}

// ParseCPUList expands a kernel cpu list such as "0-3,6,8-9".
func ParseCPUList(list string) ([]int, error) {
	errFactory := errors.New()

	var cpus []int
	for _, part := range strings.Split(strings.TrimSpace(list), ",") {
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(lo)
		if err != nil {
			return nil, errFactory.WrapWithData(ErrInvalidRange, err, list)
		}

		end := start
		if isRange {
			if end, err = strconv.Atoi(hi); err != nil {
				return nil, errFactory.WrapWithData(ErrInvalidRange, err, list)
			}
		}

		if end < start {
			return nil, errFactory.WithData(ErrInvalidRange, list)
		}

		for c := start; c <= end; c++ {
			cpus = append(cpus, c)
		}
	}

	return cpus, nil
}

// Package sysfstest builds fake sysfs trees for tests.
package sysfstest

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/powerstatd/internal/sysfs"
	"github.com/stretchr/testify/require"
)

// Tree is a temporary directory standing in for the host root.
type Tree struct {
	t    testing.TB
	root string
}

// New creates an empty tree removed when the test ends.
func New(t testing.TB) *Tree {
	t.Helper()
	return &Tree{t: t, root: t.TempDir()}
}

// Write creates path (an absolute host path) with content.
func (tr *Tree) Write(path, content string) *Tree {
	tr.t.Helper()

	full := filepath.Join(tr.root, path)
	require.NoError(tr.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(tr.t, os.WriteFile(full, []byte(content), 0o644))

	return tr
}

// Read returns the content of path.
func (tr *Tree) Read(path string) string {
	tr.t.Helper()

	data, err := os.ReadFile(filepath.Join(tr.root, path))
	require.NoError(tr.t, err)

	return string(data)
}

// Remove deletes path.
func (tr *Tree) Remove(path string) {
	tr.t.Helper()
	require.NoError(tr.t, os.RemoveAll(filepath.Join(tr.root, path)))
}

// SetUptime writes /proc/uptime.
func (tr *Tree) SetUptime(seconds string) *Tree {
	return tr.Write("/proc/uptime", seconds+" 0.00\n")
}

// FS returns a sysfs.FS rooted at the tree.
func (tr *Tree) FS() sysfs.FS {
	return sysfs.NewFS(tr.root)
}

// FakeMSR serves register values from a map keyed by cpu then register.
type FakeMSR map[int]map[uint32]uint64

func (f FakeMSR) Read(reg uint32, cpu int) (uint64, error) {
	regs, ok := f[cpu]
	if !ok {
		return 0, os.ErrNotExist
	}

	v, ok := regs[reg]
	if !ok {
		return 0, os.ErrNotExist
	}

	return v, nil
}

// Set stores a register value.
func (f FakeMSR) Set(cpu int, reg uint32, v uint64) {
	if f[cpu] == nil {
		f[cpu] = make(map[uint32]uint64)
	}
	f[cpu][reg] = v
}

package telemetry

import (
	"strings"

	"codeberg.org/mutker/powerstatd/internal/errors"
)

const (
	defaultDirPerm  = 0o755
	defaultTextfile = "/var/lib/node_exporter/textfile_collector/powerstatd.prom"
	textfileSuffix  = ".prom"
)

type Config struct {
	Path    string
	Enabled bool
}

func DefaultConfig() Config {
	return Config{
		Path: defaultTextfile,
	}
}

// Validate requires a .prom path when export is enabled; node_exporter
// ignores other files.
func (c Config) Validate() error {
	errFactory := errors.New()
	if !c.Enabled {
		return nil
	}

	if c.Path == "" || !strings.HasSuffix(c.Path, textfileSuffix) {
		return errFactory.WithData(ErrInvalidPath, c.Path)
	}

	return nil
}

package disk

import (
	"regexp"
	"strings"

	"codeberg.org/mutker/powerstatd/internal/errors"
	"github.com/prometheus/procfs"
)

var partitionSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`^(/dev/(?:nvme\d+n\d+|mmcblk\d+|loop\d+))p\d+$`),
	regexp.MustCompile(`^(/dev/(?:sd|hd|vd|xvd)[a-z]+)\d+$`),
}

// WholeDisk strips a partition suffix from a block device path.
func WholeDisk(dev string) string {
	for _, re := range partitionSuffixes {
		if m := re.FindStringSubmatch(dev); m != nil {
			return m[1]
		}
	}

	return dev
}

// MountsFunc lists mounts; procfs.GetMounts satisfies it.
type MountsFunc func() ([]*procfs.MountInfo, error)

// RootDevice returns the whole-disk device backing "/".
func RootDevice(mounts MountsFunc) (string, error) {
	errFactory := errors.New()

	infos, err := mounts()
	if err != nil {
		return "", errFactory.Wrap(ErrNoRootDevice, err)
	}

	// The last mount of "/" is the one visible to this process.
	var source string
	for _, m := range infos {
		if m.MountPoint == "/" {
			source = m.Source
		}
	}

	if !strings.HasPrefix(source, "/dev/") || source == "/dev/root" {
		return "", errFactory.WithData(ErrNoRootDevice, source)
	}

	return WholeDisk(source), nil
}

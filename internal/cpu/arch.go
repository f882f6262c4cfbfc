package cpu

import (
	"path/filepath"
	"sort"
	"strconv"

	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
	"github.com/prometheus/procfs"
)

// Intel family 6 model numbers by microarchitecture.
var intelModels = map[uint64]string{
	0x1A: "nehalem", 0x1E: "nehalem", 0x1F: "nehalem", 0x2E: "nehalem",
	0x25: "westmere", 0x2C: "westmere", 0x2F: "westmere",
	0x2A: "sandybridge", 0x2D: "sandybridge",
	0x3A: "ivybridge", 0x3E: "ivybridge",
	0x3C: "haswell", 0x3F: "haswell", 0x45: "haswell", 0x46: "haswell",
	0x3D: "broadwell", 0x47: "broadwell", 0x4F: "broadwell", 0x56: "broadwell",
	0x4E: "skylake", 0x5E: "skylake", 0x55: "skylake",
	0x8E: "kabylake", 0x9E: "kabylake",
	0xA5: "cometlake", 0xA6: "cometlake",
	0x7D: "icelake", 0x7E: "icelake",
	0x8C: "tigerlake", 0x8D: "tigerlake",
	0x97: "alderlake", 0x9A: "alderlake",
	0x37: "silvermont", 0x4A: "silvermont", 0x4D: "silvermont", 0x5A: "silvermont", 0x5D: "silvermont",
	0x4C: "airmont",
	0x5C: "goldmont", 0x5F: "goldmont",
	0x7A: "goldmont_plus",
	0x86: "tremont", 0x96: "tremont", 0x9C: "tremont",
}

// AMD families by microarchitecture.
var amdFamilies = map[uint64]string{
	0x15: "bulldozer",
	0x16: "jaguar",
	0x17: "zen",
	0x19: "zen3",
}

// CPUInfo loads /proc/cpuinfo through procfs under the FS root.
func CPUInfo(fs sysfs.FS) ([]procfs.CPUInfo, error) {
	errFactory := errors.New()

	pfs, err := procfs.NewFS(filepath.Join(fs.Root(), "proc"))
	if err != nil {
		return nil, errFactory.Wrap(ErrCPUInfoFailed, err)
	}

	infos, err := pfs.CPUInfo()
	if err != nil {
		return nil, errFactory.Wrap(ErrCPUInfoFailed, err)
	}

	return infos, nil
}

// DetectArch names the microarchitecture of the running machine, or returns
// "" when it cannot be identified.
func DetectArch(fs sysfs.FS) string {
	infos, err := CPUInfo(fs)
	if err != nil {
		return ""
	}

	return ArchFromCPUInfo(infos)
}

// ArchFromCPUInfo maps the first processor's vendor, family and model onto a
// microarchitecture name.
func ArchFromCPUInfo(infos []procfs.CPUInfo) string {
	if len(infos) == 0 {
		return ""
	}

	info := infos[0]
	family, err := strconv.ParseUint(info.CPUFamily, 0, 32)
	if err != nil {
		return ""
	}

	switch info.VendorID {
	case "GenuineIntel":
		if family != 6 {
			return ""
		}
		model, err := strconv.ParseUint(info.Model, 0, 32)
		if err != nil {
			return ""
		}
		return intelModels[model]
	case "AuthenticAMD":
		return amdFamilies[family]
	default:
		return ""
	}
}

// PackageLeaders returns one logical CPU per physical package, the lowest
// numbered CPU of each, restricted to cpus when it is non-empty.
func PackageLeaders(infos []procfs.CPUInfo, cpus []int) []int {
	allowed := make(map[int]bool, len(cpus))
	for _, c := range cpus {
		allowed[c] = true
	}

	leaders := make(map[string]int)
	for _, info := range infos {
		id := int(info.Processor)
		if len(cpus) > 0 && !allowed[id] {
			continue
		}

		if cur, ok := leaders[info.PhysicalID]; !ok || id < cur {
			leaders[info.PhysicalID] = id
		}
	}

	out := make([]int, 0, len(leaders))
	for _, id := range leaders {
		out = append(out, id)
	}
	sort.Ints(out)

	return out
}

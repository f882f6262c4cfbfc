package cpu_test

import (
	"testing"

	"codeberg.org/mutker/powerstatd/internal/cpu"
	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
)

func TestArchFromCPUInfo(t *testing.T) {
	tests := []struct {
		name  string
		infos []procfs.CPUInfo
		want  string
	}{
		{"kabylake", []procfs.CPUInfo{{VendorID: "GenuineIntel", CPUFamily: "6", Model: "142"}}, "kabylake"},
		{"airmont", []procfs.CPUInfo{{VendorID: "GenuineIntel", CPUFamily: "6", Model: "76"}}, "airmont"},
		{"unknown intel model", []procfs.CPUInfo{{VendorID: "GenuineIntel", CPUFamily: "6", Model: "1"}}, ""},
		{"intel other family", []procfs.CPUInfo{{VendorID: "GenuineIntel", CPUFamily: "15", Model: "142"}}, ""},
		{"zen", []procfs.CPUInfo{{VendorID: "AuthenticAMD", CPUFamily: "23", Model: "24"}}, "zen"},
		{"arm", []procfs.CPUInfo{{VendorID: "ARM", CPUFamily: "8"}}, ""},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cpu.ArchFromCPUInfo(tt.infos))
		})
	}
}

func TestPackageLeaders(t *testing.T) {
	infos := []procfs.CPUInfo{
		{Processor: 0, PhysicalID: "0"},
		{Processor: 1, PhysicalID: "0"},
		{Processor: 2, PhysicalID: "1"},
		{Processor: 3, PhysicalID: "1"},
	}

	assert.Equal(t, []int{0, 2}, cpu.PackageLeaders(infos, nil))
	assert.Equal(t, []int{1, 3}, cpu.PackageLeaders(infos, []int{1, 3}))
	assert.Equal(t, []int{2}, cpu.PackageLeaders(infos, []int{2, 3}))
}

func TestHasPackageCStates(t *testing.T) {
	assert.True(t, cpu.HasPackageCStates("skylake"))
	assert.True(t, cpu.HasPackageCStates("airmont"))
	assert.False(t, cpu.HasPackageCStates("zen"))
	assert.False(t, cpu.HasPackageCStates(""))
}

package aggregator

import (
	"time"

	"codeberg.org/mutker/powerstatd/internal/disk"
	"codeberg.org/mutker/powerstatd/internal/gpu"
	"codeberg.org/mutker/powerstatd/internal/sysfs"
)

// TransportFunc opens a pass-through transport for a disk device.
type TransportFunc func(device string) (disk.Transport, error)

// ClockSourceFunc opens a sampled GPU clock.
type ClockSourceFunc func() (gpu.ClockSource, error)

type options struct {
	msr      sysfs.MSR
	cpus     []int
	arch     string
	gpuType  *gpu.Type
	tracer   gpu.TraceSource
	clock    ClockSourceFunc
	noDisk   bool
	diskDev  string
	diskPoll time.Duration
	open     TransportFunc
	mounts   disk.MountsFunc
}

// Option configures an Aggregator.
type Option func(*options)

// WithMSR replaces the /dev/cpu/*/msr reader.
func WithMSR(msr sysfs.MSR) Option {
	return func(o *options) { o.msr = msr }
}

// WithCPUs restricts CPU collectors to cpus. Empty means every online CPU.
func WithCPUs(cpus []int) Option {
	return func(o *options) { o.cpus = cpus }
}

// WithArch overrides microarchitecture detection.
func WithArch(arch string) Option {
	return func(o *options) { o.arch = arch }
}

// WithGPUType overrides GPU detection.
func WithGPUType(t gpu.Type) Option {
	return func(o *options) { o.gpuType = &t }
}

// WithTracer replaces the tracefs reader.
func WithTracer(t gpu.TraceSource) Option {
	return func(o *options) { o.tracer = t }
}

// WithClockSource replaces the NVML clock used for NVIDIA GPUs.
func WithClockSource(fn ClockSourceFunc) Option {
	return func(o *options) { o.clock = fn }
}

// WithoutDisk disables the disk power mode probe.
func WithoutDisk() Option {
	return func(o *options) { o.noDisk = true }
}

// WithDiskDevice probes device instead of the disk backing "/".
func WithDiskDevice(device string) Option {
	return func(o *options) { o.diskDev = device }
}

// WithDiskPollInterval sets the disk probe period.
func WithDiskPollInterval(d time.Duration) Option {
	return func(o *options) { o.diskPoll = d }
}

// WithDiskTransport replaces the SG_IO transport.
func WithDiskTransport(fn TransportFunc) Option {
	return func(o *options) { o.open = fn }
}

// WithMounts replaces the mount table used to find the root disk.
func WithMounts(fn disk.MountsFunc) Option {
	return func(o *options) { o.mounts = fn }
}

package gpu

import (
	"codeberg.org/mutker/powerstatd/internal/errors"
	"codeberg.org/mutker/powerstatd/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// nvmlController abstracts NVML operations for testing
type nvmlController interface {
	Initialize() error
	Shutdown() error
	GetDeviceCount() (int, error)
	GetDevice(index int) (nvml.Device, error)
}

type nvmlWrapper struct {
	initialized bool
}

func (w *nvmlWrapper) Initialize() error {
	errFactory := errors.New()
	if w.initialized {
		return nil
	}

	ret := nvml.Init()
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrInitFailed, newNVMLError(ret))
	}

	w.initialized = true

	return nil
}

func (w *nvmlWrapper) Shutdown() error {
	errFactory := errors.New()
	if !w.initialized {
		return nil
	}

	ret := nvml.Shutdown()
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrShutdownFailed, newNVMLError(ret))
	}

	w.initialized = false

	return nil
}

func (w *nvmlWrapper) GetDeviceCount() (int, error) {
	errFactory := errors.New()
	if !w.initialized {
		return 0, errFactory.New(ErrNotInitialized)
	}

	count, ret := nvml.DeviceGetCount()
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}

	return count, nil
}

func (w *nvmlWrapper) GetDevice(index int) (nvml.Device, error) {
	errFactory := errors.New()
	if !w.initialized {
		return nil, errFactory.New(ErrNotInitialized)
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	return device, nil
}

// NVMLSource samples the graphics clock of one NVIDIA device.
type NVMLSource struct {
	ctrl   nvmlController
	device nvml.Device
	log    logger.Logger
}

// NewNVMLSource initializes NVML and opens the device at index.
func NewNVMLSource(index int) (*NVMLSource, error) {
	return newNVMLSource(&nvmlWrapper{}, index)
}

func newNVMLSource(ctrl nvmlController, index int) (*NVMLSource, error) {
	errFactory := errors.New()
	log := logger.New("gpu")

	if err := ctrl.Initialize(); err != nil {
		return nil, err
	}

	count, err := ctrl.GetDeviceCount()
	if err != nil {
		_ = ctrl.Shutdown()
		return nil, err
	}

	if index < 0 || index >= count {
		_ = ctrl.Shutdown()
		return nil, errFactory.WithData(ErrDeviceNotFound, map[string]int{"index": index, "count": count})
	}

	device, err := ctrl.GetDevice(index)
	if err != nil {
		_ = ctrl.Shutdown()
		return nil, err
	}

	if name, ret := device.GetName(); IsNVMLSuccess(ret) {
		log.Info().Str("name", name).Int("index", index).Msg("Sampling NVIDIA graphics clock")
	}

	return &NVMLSource{ctrl: ctrl, device: device, log: log}, nil
}

// GraphicsClock returns the current graphics clock in MHz.
func (s *NVMLSource) GraphicsClock() (uint32, error) {
	mhz, ret := s.device.GetClockInfo(nvml.CLOCK_GRAPHICS)
	if !IsNVMLSuccess(ret) {
		return 0, errors.New().Wrap(ErrClockReadFailed, newNVMLError(ret))
	}

	return mhz, nil
}

// Close shuts NVML down.
func (s *NVMLSource) Close() error {
	if err := s.ctrl.Shutdown(); err != nil {
		s.log.Warn().Err(err).Msg("NVML shutdown failed")
		return err
	}

	return nil
}

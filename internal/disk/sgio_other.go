//go:build !linux

package disk

import "codeberg.org/mutker/powerstatd/internal/errors"

// SGIO is unavailable off Linux.
type SGIO struct {
	device string
}

// NewSGIO always fails off Linux.
func NewSGIO(device string) (*SGIO, error) {
	return nil, errors.New().WithData(ErrUnsupported, device)
}

// Device returns the device node path.
func (t *SGIO) Device() string {
	return t.device
}

// Execute always fails off Linux.
func (t *SGIO) Execute([CDBLen]byte) (Response, error) {
	return Response{}, errors.New().New(ErrUnsupported)
}

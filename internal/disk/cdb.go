package disk

import (
	"fmt"

	"codeberg.org/mutker/powerstatd/internal/errors"
)

const (
	CDBLen   = 12
	SenseLen = 32

	opATAPassThrough12 = 0xA1
	ataCheckPowerMode  = 0xE5

	protocolNonData = 3 << 1
	flagCheckCond   = 1 << 5
	deviceUseLBA    = 1 << 6

	statusCheckCondition = 0x02
	driverSense          = 0x08

	senseDescriptorFormat = 0x72
	senseMinAddlLength    = 14
	descriptorATAReturn   = 0x09
)

// Offsets into descriptor-format sense data.
const (
	senseResponseCode = 0
	senseKey          = 1
	senseAddlLength   = 7
	senseDescType     = 8
	senseATAError     = 11
	senseATACount     = 13
)

// Mode is a disk power mode as reported by CHECK POWER MODE.
type Mode string

const (
	Standby Mode = "standby"
	Idle    Mode = "idle"
	Active  Mode = "active"
)

// Unknown names a power-mode byte with no defined meaning.
func Unknown(code byte) Mode {
	return Mode(fmt.Sprintf("unknown(%d)", code))
}

// ModeFromCount maps the ATA sector count returned by CHECK POWER MODE.
func ModeFromCount(count byte) Mode {
	switch count {
	case 0x00:
		return Standby
	case 0x80:
		return Idle
	case 0xFF:
		return Active
	default:
		return Unknown(count)
	}
}

// BuildCDB returns the ATA PASS-THROUGH(12) block carrying a non-data
// CHECK POWER MODE command that asks for ATA status in the sense data.
func BuildCDB() [CDBLen]byte {
	return [CDBLen]byte{
		0:  opATAPassThrough12,
		1:  protocolNonData,
		2:  flagCheckCond,
		8:  deviceUseLBA,
		9:  ataCheckPowerMode,
		10: 0,
		11: 0,
	}
}

// Response holds the completion fields of a pass-through request.
type Response struct {
	Status       uint8
	HostStatus   uint16
	DriverStatus uint16
	Sense        [SenseLen]byte
}

// ParseResponse validates a CHECK POWER MODE completion and returns the
// mode it carries. Every failed check is fatal.
func ParseResponse(r Response) (Mode, error) {
	errFactory := errors.New()
	s := r.Sense

	switch {
	case r.Status != statusCheckCondition:
		return "", errFactory.WithData(ErrUnexpectedStatus, fmt.Sprintf("status=%#02x", r.Status))
	case r.HostStatus != 0 || r.DriverStatus&0xff != driverSense:
		return "", errFactory.WithData(ErrTransportStatus,
			fmt.Sprintf("host=%#x driver=%#x", r.HostStatus, r.DriverStatus))
	case s[senseResponseCode] != senseDescriptorFormat:
		return "", errFactory.WithData(ErrSenseFormat, fmt.Sprintf("response=%#02x", s[senseResponseCode]))
	case s[senseKey] != 0:
		return "", errFactory.WithData(ErrSenseKey, fmt.Sprintf("key=%#02x", s[senseKey]))
	case s[senseAddlLength] < senseMinAddlLength:
		return "", errFactory.WithData(ErrSenseLength, fmt.Sprintf("length=%d", s[senseAddlLength]))
	case s[senseDescType] != descriptorATAReturn:
		return "", errFactory.WithData(ErrDescriptorType, fmt.Sprintf("descriptor=%#02x", s[senseDescType]))
	case s[senseATAError] != 0:
		return "", errFactory.WithData(ErrATAError, fmt.Sprintf("error=%#02x", s[senseATAError]))
	}

	return ModeFromCount(s[senseATACount]), nil
}

// Transport issues one pass-through CDB to a device.
type Transport interface {
	Execute(cdb [CDBLen]byte) (Response, error)
}

// CheckPowerMode queries the device behind t without spinning it up.
func CheckPowerMode(t Transport) (Mode, error) {
	r, err := t.Execute(BuildCDB())
	if err != nil {
		return "", err
	}

	return ParseResponse(r)
}

//go:build linux

package disk

import (
	"runtime"
	"unsafe"

	"codeberg.org/mutker/powerstatd/internal/errors"
	"golang.org/x/sys/unix"
)

const (
	sgIO            = 0x2285
	sgInterfaceID   = 'S'
	sgDxferNone     = -1
	sgTimeoutMillis = 500
)

// sgIOHdr mirrors struct sg_io_hdr from <scsi/sg.h>. Field order and widths
// follow the C layout so natural alignment yields the same offsets.
type sgIOHdr struct {
	InterfaceID    int32
	DxferDirection int32
	CmdLen         uint8
	MxSbLen        uint8
	IovecCount     uint16
	DxferLen       uint32
	Dxferp         *byte
	Cmdp           *byte
	Sbp            *byte
	Timeout        uint32
	Flags          uint32
	PackID         int32
	UsrPtr         *byte
	Status         uint8
	MaskedStatus   uint8
	MsgStatus      uint8
	SbLenWr        uint8
	HostStatus     uint16
	DriverStatus   uint16
	Resid          int32
	Duration       uint32
	Info           uint32
}

// Native sizeof(struct sg_io_hdr) by pointer width.
const (
	sgIOHdrSize64 = 88
	sgIOHdrSize32 = 64
)

func nativeHeaderSize() uintptr {
	if unsafe.Sizeof(uintptr(0)) == 8 {
		return sgIOHdrSize64
	}
	return sgIOHdrSize32
}

// SGIO sends pass-through requests to a block or sg device node.
type SGIO struct {
	device string
}

// NewSGIO returns a transport for device. It fails when the Go header does
// not match the native structure size.
func NewSGIO(device string) (*SGIO, error) {
	if size := unsafe.Sizeof(sgIOHdr{}); size != nativeHeaderSize() {
		return nil, errors.New().WithData(ErrHeaderLayout,
			map[string]uintptr{"size": size, "want": nativeHeaderSize()})
	}

	return &SGIO{device: device}, nil
}

// Device returns the device node path.
func (t *SGIO) Device() string {
	return t.device
}

// Execute opens the device read-only, issues one SG_IO ioctl and closes it.
func (t *SGIO) Execute(cdb [CDBLen]byte) (Response, error) {
	errFactory := errors.New()

	fd, err := unix.Open(t.device, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return Response{}, errFactory.WrapWithData(ErrOpenFailed, err, t.device)
	}
	defer unix.Close(fd)

	cmd := new([CDBLen]byte)
	*cmd = cdb
	sense := new([SenseLen]byte)

	hdr := &sgIOHdr{
		InterfaceID:    sgInterfaceID,
		DxferDirection: sgDxferNone,
		CmdLen:         CDBLen,
		MxSbLen:        SenseLen,
		Cmdp:           &cmd[0],
		Sbp:            &sense[0],
		Timeout:        sgTimeoutMillis,
	}

	var pinner runtime.Pinner
	pinner.Pin(cmd)
	pinner.Pin(sense)
	defer pinner.Unpin()

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), sgIO, uintptr(unsafe.Pointer(hdr)))
	if errno != 0 {
		return Response{}, errFactory.WrapWithData(ErrIoctlFailed, errno, t.device)
	}

	return Response{
		Status:       hdr.Status,
		HostStatus:   hdr.HostStatus,
		DriverStatus: hdr.DriverStatus,
		Sense:        *sense,
	}, nil
}

package disk

import "codeberg.org/mutker/powerstatd/internal/errors"

const (
	// Response validation, in the order checked
	ErrUnexpectedStatus = errors.ErrorCode("disk_unexpected_status")
	ErrTransportStatus  = errors.ErrorCode("disk_transport_status")
	ErrSenseFormat      = errors.ErrorCode("disk_bad_sense_format")
	ErrSenseKey         = errors.ErrorCode("disk_bad_sense_key")
	ErrSenseLength      = errors.ErrorCode("disk_short_sense")
	ErrDescriptorType   = errors.ErrorCode("disk_bad_descriptor_type")
	ErrATAError         = errors.ErrorCode("disk_ata_error")

	// Transport
	ErrOpenFailed   = errors.ErrorCode("disk_open_failed")
	ErrIoctlFailed  = errors.ErrorCode("disk_ioctl_failed")
	ErrHeaderLayout = errors.ErrorCode("disk_header_layout_mismatch")
	ErrUnsupported  = errors.ErrorCode("disk_unsupported_platform")

	// Probe and device resolution
	ErrJoinTimeout  = errors.ErrorCode("disk_probe_join_timeout")
	ErrNoRootDevice = errors.ErrorCode("disk_no_root_device")
)

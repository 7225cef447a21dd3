package device

import "codeberg.org/mutker/ventctl/internal/errors"

const (
	ErrUnreachable = errors.ErrDeviceUnreachable
	ErrMissing     = errors.ErrDeviceMissing
	ErrBadResponse = errors.ErrorCode("device_bad_response")
)

// IsMissing reports whether the error means the device disappeared,
// e.g. it was hot-swapped or removed between snapshot and dispatch.
func IsMissing(err error) bool {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		return appErr.Code() == ErrMissing
	}

	return false
}

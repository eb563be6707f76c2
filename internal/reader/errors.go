package reader

import (
	"errors"
	"fmt"

	"bcms_scan_go/internal/tagcodec"
)

// ErrNoHandle is wrapped by InitError when acquisition returned no device.
var ErrNoHandle = errors.New("reader returned no device handle")

// InitError reports a failed Initialize. The adapter stays not ready and
// Initialize may be retried.
type InitError struct {
	Family tagcodec.ModuleFamily
	Err    error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialize %s reader: %v", e.Family, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

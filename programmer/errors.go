package programmer

import (
	"fmt"

	"github.com/pkg/errors"

	proto "cellgain.ddns.net/cellgain-public/bootloader-efm/efmbootloader_protocol"
)

var ErrEmptyImage = errors.New("image is empty")

// ResponseError means the device answered a command with unexpected content.
type ResponseError struct {
	Cmd      proto.Command
	Response []byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("unexpected response to %s: %q", e.Cmd, e.Response)
}

// CRCMismatchError means the device checksum differs from the image.
type CRCMismatchError struct {
	Scope    VerifyScope
	Expected uint16
	Actual   uint16
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("%s CRC mismatch: expected 0x%04X, device reports 0x%04X",
		e.Scope, e.Expected, e.Actual)
}

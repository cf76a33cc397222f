package efmbootloader_protocol

import (
	"bytes"
	"strconv"

	"github.com/pkg/errors"
)

// Command is a single bootloader instruction as sent on the wire.
type Command []byte

var (
	/* Auto-baud probe. The bootloader measures this character and answers with its banner. */
	CmdAutoBaud = Command("U")
	/* Destructive upload: overwrite the whole flash, bootloader included. */
	CmdOverwrite = Command("d")
	/* Upload an application image, bootloader region is kept. */
	CmdUpdate = Command("u")
	/* Checksum of the whole flash. */
	CmdVerifyFlash = Command("v")
	/* Checksum of the application region. */
	CmdVerifyApplication = Command("c")
	/* Checksum of the user page. */
	CmdVerifyUserPage = Command("n")
	/* Checksum of the lock page. */
	CmdVerifyLockPage = Command("m")
	/* Boot the application. Nothing is sent back. */
	CmdBoot = Command("b")
	/* Reset the device. */
	CmdReset = Command("r")
)

const (
	// BannerMarker is part of the banner printed after a successful auto-baud.
	BannerMarker = "Chip"
	// UnknownMarker is what the bootloader prints for a command it does not know.
	UnknownMarker = "?"
	// ReadyMarker is printed when an upload command is ready for XMODEM.
	ReadyMarker = "Ready"
	// CRCMarker precedes the hex checksum in verify responses.
	CRCMarker = "CRC: "
)

var ErrNoCRC = errors.New("no CRC in response")

// String returns the printable form of the command.
func (c Command) String() string {
	return strconv.Quote(string(c))
}

// Equal reports whether the command bytes equal b.
func (c Command) Equal(b []byte) bool {
	return bytes.Equal(c, b)
}

// IsAutoBaud reports whether c is the auto-baud probe, which is never echoed.
func (c Command) IsAutoBaud() bool {
	return c.Equal(CmdAutoBaud)
}

// IsBanner checks the auto-baud response. A device that was already synced
// answers the probe with the unknown command marker.
func IsBanner(r []byte) bool {
	return bytes.Contains(r, []byte(BannerMarker)) || bytes.Equal(bytes.TrimSpace(r), []byte(UnknownMarker))
}

// IsReady checks the response to an upload command.
func IsReady(r []byte) bool {
	return bytes.Contains(r, []byte(ReadyMarker))
}

// ParseCRC extracts the 16 bit checksum from a verify response such as
// "CRC: 1A2B".
func ParseCRC(r []byte) (uint16, error) {
	i := bytes.Index(r, []byte(CRCMarker))
	if i < 0 {
		return 0, errors.Wrapf(ErrNoCRC, "response %q", r)
	}
	digits := r[i+len(CRCMarker):]
	n := 0
	for n < len(digits) && isHex(digits[n]) {
		n++
	}
	if n == 0 {
		return 0, errors.Wrapf(ErrNoCRC, "response %q", r)
	}
	v, err := strconv.ParseUint(string(digits[:n]), 16, 16)
	if err != nil {
		return 0, errors.Wrapf(err, "parse CRC in %q", r)
	}
	return uint16(v), nil
}

func isHex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// Package crc computes the flash checksums reported by the bootloader's
// verify commands: CRC-CCITT, XModem parameters (poly 0x1021, init 0).
package crc

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/sigurn/crc16"
)

const (
	// FlashSize is the size of the flash the device checksums.
	FlashSize = 0x100000
	// AppOffset is where the application region starts, after the bootloader.
	AppOffset = 0x1000
	// Filler is the value of erased flash.
	Filler = 0xFF
)

var ErrLengthExceeded = errors.New("image larger than flash")

var table = crc16.MakeTable(crc16.CRC16_XMODEM)

// Checksum is CRC-16/XMODEM over data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, table)
}

// Calculator expands an image to the flash layout and checksums it.
type Calculator struct {
	FlashSize int
	AppOffset int
	Filler    byte
}

// Default returns the calculator for a 1 MiB part with a 4 KiB bootloader.
func Default() Calculator {
	return Calculator{
		FlashSize: FlashSize,
		AppOffset: AppOffset,
		Filler:    Filler,
	}
}

// Expand returns image followed by filler bytes up to FlashSize.
func (c Calculator) Expand(image []byte) ([]byte, error) {
	if len(image) > c.FlashSize {
		return nil, errors.Wrapf(ErrLengthExceeded, "%d > %d bytes", len(image), c.FlashSize)
	}
	buf := make([]byte, c.FlashSize)
	n := copy(buf, image)
	copy(buf[n:], bytes.Repeat([]byte{c.Filler}, c.FlashSize-n))
	return buf, nil
}

// Image is the checksum of the whole flash after programming image.
func (c Calculator) Image(image []byte) (uint16, error) {
	buf, err := c.Expand(image)
	if err != nil {
		return 0, err
	}
	return Checksum(buf), nil
}

// Application is the checksum from AppOffset to the end of flash.
func (c Calculator) Application(image []byte) (uint16, error) {
	if c.AppOffset < 0 || c.AppOffset > c.FlashSize {
		return 0, errors.Errorf("application offset 0x%X outside flash", c.AppOffset)
	}
	buf, err := c.Expand(image)
	if err != nil {
		return 0, err
	}
	return Checksum(buf[c.AppOffset:]), nil
}

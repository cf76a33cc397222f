package crc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumReference(t *testing.T) {
	// CRC-16/XMODEM check value.
	assert.Equal(t, uint16(0x31C3), Checksum([]byte("123456789")))
	assert.Equal(t, uint16(0), Checksum(nil))
}

func TestExpand(t *testing.T) {
	c := Calculator{FlashSize: 16, AppOffset: 4, Filler: 0xFF}
	buf, err := c.Expand([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, buf, 16)
	assert.Equal(t, []byte{1, 2, 3}, buf[:3])
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 13), buf[3:])

	buf, err = c.Expand(bytes.Repeat([]byte{7}, 16))
	require.NoError(t, err)
	assert.Len(t, buf, 16)

	_, err = c.Expand(make([]byte, 17))
	require.ErrorIs(t, err, ErrLengthExceeded)
}

func TestImageMatchesPreExpanded(t *testing.T) {
	c := Default()
	image := []byte("firmware image bytes")

	expanded := append([]byte(nil), image...)
	expanded = append(expanded, bytes.Repeat([]byte{Filler}, FlashSize-len(image))...)

	got, err := c.Image(image)
	require.NoError(t, err)
	again, err := c.Image(expanded)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, Checksum(expanded), got)
}

func TestApplicationMatchesSlice(t *testing.T) {
	c := Default()
	image := bytes.Repeat([]byte{0x01, 0x02, 0x03}, 0x900)

	buf, err := c.Expand(image)
	require.NoError(t, err)

	got, err := c.Application(image)
	require.NoError(t, err)
	assert.Equal(t, Checksum(buf[AppOffset:]), got)
}

func TestTooLarge(t *testing.T) {
	c := Calculator{FlashSize: 8, AppOffset: 2, Filler: 0xFF}
	_, err := c.Image(make([]byte, 9))
	require.ErrorIs(t, err, ErrLengthExceeded)
	_, err = c.Application(make([]byte, 9))
	require.ErrorIs(t, err, ErrLengthExceeded)

	c.AppOffset = 9
	_, err = c.Application(nil)
	require.Error(t, err)
}

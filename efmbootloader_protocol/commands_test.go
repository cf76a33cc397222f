package efmbootloader_protocol

import (
	"bytes"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCRC(t *testing.T) {
	for _, c := range []struct {
		in   string
		want uint16
	}{
		{"CRC: 1A2B", 0x1A2B},
		{"CRC: 0000", 0},
		{"CRC: ffff", 0xFFFF},
		{"v\r\nCRC: 00Be\r\n", 0x00BE},
		{"Checksum CRC: 42 done", 0x42},
	} {
		got, err := ParseCRC([]byte(c.in))
		require.NoErrorf(t, err, "%q", c.in)
		assert.Equalf(t, c.want, got, "%q", c.in)
	}
}

func TestParseCRCErrors(t *testing.T) {
	_, err := ParseCRC([]byte("Ready"))
	require.ErrorIs(t, err, ErrNoCRC)

	_, err = ParseCRC([]byte("CRC: zz"))
	require.ErrorIs(t, err, ErrNoCRC)

	_, err = ParseCRC([]byte("CRC: 123456"))
	require.Error(t, err)
}

func TestMarkers(t *testing.T) {
	assert.True(t, IsBanner([]byte("BOOTLOADER version 1.01, Chip ID 0123456789ABCDEF")))
	assert.True(t, IsBanner([]byte("?")))
	assert.True(t, IsBanner([]byte(" ? ")))
	assert.False(t, IsBanner([]byte("??")))
	assert.False(t, IsBanner([]byte("")))

	assert.True(t, IsReady([]byte("Ready")))
	assert.False(t, IsReady([]byte("ready")))

	assert.True(t, CmdAutoBaud.IsAutoBaud())
	assert.False(t, CmdBoot.IsAutoBaud())
	assert.Equal(t, `"d"`, CmdOverwrite.String())
}

func TestReadLine(t *testing.T) {
	r := bytes.NewReader([]byte("Ready\r\nCRC: 0001\r\nrest"))

	l, err := ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, "Ready\r\n", string(l))

	l, err = ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, "CRC: 0001\r\n", string(l))

	l, err = ReadLine(r)
	require.NoError(t, err)
	assert.Equal(t, "rest", string(l))
	assert.Equal(t, 0, r.Len(), "nothing read past the data")
}

func TestReadLineLeavesTrailingBytes(t *testing.T) {
	r := bytes.NewReader([]byte("d\nC"))
	l, err := ReadLine(iotest.OneByteReader(r))
	require.NoError(t, err)
	assert.Equal(t, "d\n", string(l))
	assert.Equal(t, 1, r.Len())
}

func TestReadLineBounded(t *testing.T) {
	r := bytes.NewReader(bytes.Repeat([]byte{'x'}, MaxLineLength*2))
	l, err := ReadLine(r)
	require.NoError(t, err)
	assert.Len(t, l, MaxLineLength)
}

func TestReadLineError(t *testing.T) {
	_, err := ReadLine(iotest.ErrReader(iotest.ErrTimeout))
	require.ErrorIs(t, err, iotest.ErrTimeout)
}

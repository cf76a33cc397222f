package xmodem

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellgain.ddns.net/cellgain-public/bootloader-efm/crc"
)

// receiver answers each getc from a script; an exhausted script times out.
type receiver struct {
	replies []byte
	frames  [][]byte
	getcs   int
}

func (r *receiver) getc(size int, timeout time.Duration) ([]byte, error) {
	r.getcs++
	if len(r.replies) == 0 {
		return nil, nil
	}
	c := r.replies[:1]
	r.replies = r.replies[1:]
	return c, nil
}

func (r *receiver) putc(data []byte, timeout time.Duration) (int, error) {
	r.frames = append(r.frames, append([]byte(nil), data...))
	return len(data), nil
}

func newSender(r *receiver) *Sender {
	s := New(r.getc, r.putc)
	s.Retries = 3
	return s
}

func TestPadScenario(t *testing.T) {
	image := bytes.Repeat([]byte{0x01}, 300)
	padded := Pad(image, BlockSize, Filler)
	require.Len(t, padded, 384)
	assert.Equal(t, image, padded[:300])
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 84), padded[300:])
	assert.Len(t, image, 300, "input untouched")
}

func TestPadAlwaysGrows(t *testing.T) {
	for n := 0; n <= 3*BlockSize; n++ {
		in := bytes.Repeat([]byte{0x5A}, n)
		out := Pad(in, BlockSize, Filler)
		require.Zerof(t, len(out)%BlockSize, "len %d", n)
		require.Greaterf(t, len(out), n, "len %d", n)
		require.LessOrEqualf(t, len(out)-n, BlockSize, "len %d", n)
		for _, b := range out[n:] {
			require.Equal(t, byte(Filler), b)
		}
	}
	assert.Len(t, Pad(nil, BlockSize, Filler), BlockSize)
	assert.Len(t, Pad(make([]byte, 256), BlockSize, Filler), 384)
	assert.Len(t, Pad([]byte{1}, 0, Filler), BlockSize)
}

func TestSendCRC(t *testing.T) {
	data := Pad(bytes.Repeat([]byte{0x01}, 300), BlockSize, Filler)
	r := &receiver{replies: []byte{CRC, ACK, ACK, ACK, ACK}}
	s := newSender(r)
	var progress [][2]int
	s.Progress = func(sent, total int) { progress = append(progress, [2]int{sent, total}) }

	require.NoError(t, s.Send(data))
	require.Len(t, r.frames, 4)
	for i := 0; i < 3; i++ {
		f := r.frames[i]
		require.Len(t, f, 3+BlockSize+2)
		assert.Equal(t, byte(SOH), f[0])
		assert.Equal(t, byte(i+1), f[1])
		assert.Equal(t, byte(0xFF-(i+1)), f[2])
		block := data[i*BlockSize : (i+1)*BlockSize]
		assert.Equal(t, block, f[3:3+BlockSize])
		sum := crc.Checksum(block)
		assert.Equal(t, []byte{byte(sum >> 8), byte(sum)}, f[3+BlockSize:])
	}
	assert.Equal(t, []byte{EOT}, r.frames[3])
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)
}

func TestSendChecksumWithNAK(t *testing.T) {
	data := bytes.Repeat([]byte{0x02}, BlockSize)
	r := &receiver{replies: []byte{NAK, NAK, ACK, ACK}}
	s := newSender(r)

	require.NoError(t, s.Send(data))
	require.Len(t, r.frames, 3)
	assert.Equal(t, r.frames[0], r.frames[1], "block resent after NAK")
	require.Len(t, r.frames[0], 3+BlockSize+1)
	assert.Equal(t, byte(0x00), r.frames[0][3+BlockSize], "0x02 * 128 wraps to zero")
}

func TestSendShortBlockPadded(t *testing.T) {
	r := &receiver{replies: []byte{CRC, ACK, ACK}}
	s := newSender(r)

	require.NoError(t, s.Send([]byte{1, 2, 3}))
	f := r.frames[0]
	assert.Equal(t, []byte{1, 2, 3}, f[3:6])
	assert.Equal(t, bytes.Repeat([]byte{SUB}, BlockSize-3), f[6:3+BlockSize])
}

func TestSendCancelled(t *testing.T) {
	r := &receiver{replies: []byte{CAN, CAN}}
	err := newSender(r).Send(make([]byte, BlockSize))
	require.ErrorIs(t, err, ErrTransferCancelled)
	assert.Empty(t, r.frames)

	r = &receiver{replies: []byte{CRC, CAN, CAN}}
	err = newSender(r).Send(make([]byte, BlockSize))
	require.ErrorIs(t, err, ErrTransferCancelled)
}

func TestSendSilentReceiver(t *testing.T) {
	r := &receiver{}
	err := newSender(r).Send(make([]byte, BlockSize))
	require.ErrorIs(t, err, ErrTooManyErrors)
	assert.Equal(t, 4, r.getcs)
}

func TestSendBlockNeverAcked(t *testing.T) {
	r := &receiver{replies: []byte{CRC, NAK, NAK, NAK, NAK}}
	err := newSender(r).Send(make([]byte, BlockSize))
	require.ErrorIs(t, err, ErrTooManyErrors)
	assert.Len(t, r.frames, 4)
}

func TestSendEOTNotAcked(t *testing.T) {
	r := &receiver{replies: []byte{CRC, ACK}}
	err := newSender(r).Send(make([]byte, BlockSize))
	require.ErrorIs(t, err, ErrTooManyErrors)
	assert.Len(t, r.frames, 1+4)
}

func TestSendTransportError(t *testing.T) {
	boom := errors.New("boom")
	s := New(func(int, time.Duration) ([]byte, error) { return nil, boom },
		func(d []byte, _ time.Duration) (int, error) { return len(d), nil })
	require.ErrorIs(t, s.Send(make([]byte, BlockSize)), boom)
}

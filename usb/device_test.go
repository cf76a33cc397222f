package usb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIn struct {
	packets [][]byte
	err     error
}

func (f *fakeIn) ReadContext(ctx context.Context, buf []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if len(f.packets) == 0 {
		<-ctx.Done()
		return 0, errors.New("transfer cancelled")
	}
	n := copy(buf, f.packets[0])
	f.packets = f.packets[1:]
	return n, nil
}

type fakeOut struct {
	data []byte
}

func (f *fakeOut) WriteContext(ctx context.Context, buf []byte) (int, error) {
	f.data = append(f.data, buf...)
	return len(buf), nil
}

func newTestDevice(in *fakeIn, out *fakeOut) *Device {
	return &Device{
		epIn:       in,
		epOut:      out,
		packetSize: 64,
		timeout:    10 * time.Millisecond,
		config:     DefaultConfig(),
	}
}

func TestReadBuffersPacket(t *testing.T) {
	d := newTestDevice(&fakeIn{packets: [][]byte{[]byte("d\r\nReady\r\n")}}, &fakeOut{})

	l, err := d.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "d\r\n", string(l))

	l, err = d.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "Ready\r\n", string(l))
}

func TestReadTimeout(t *testing.T) {
	d := newTestDevice(&fakeIn{}, &fakeOut{})

	n, err := d.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Zero(t, n)

	l, err := d.ReadLine()
	require.NoError(t, err)
	assert.Empty(t, l)
}

func TestReadError(t *testing.T) {
	d := newTestDevice(&fakeIn{err: errors.New("pipe")}, &fakeOut{})
	_, err := d.Read(make([]byte, 1))
	require.Error(t, err)
}

func TestWriteAndTimeout(t *testing.T) {
	out := &fakeOut{}
	d := newTestDevice(&fakeIn{}, out)

	n, err := d.Write([]byte("U"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []byte("U"), out.data)

	require.NoError(t, d.SetTimeout(time.Second))
	assert.Equal(t, time.Second, d.Timeout())
}

func TestClosed(t *testing.T) {
	d := newTestDevice(&fakeIn{}, &fakeOut{})
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	_, err := d.Read(make([]byte, 1))
	require.ErrorIs(t, err, ErrClosed)
	_, err = d.Write([]byte("b"))
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, d.SetTimeout(time.Second), ErrClosed)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "VID 10c4 PID 0003", describe(VendorId, ProductId, ""))
	assert.Equal(t, "VID 10c4 PID 0003 serial ABC", describe(VendorId, ProductId, "ABC"))
}

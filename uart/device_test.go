package uart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.bug.st/serial"
)

func TestDefaultConfig(t *testing.T) {
	m := DefaultConfig().Mode()
	assert.Equal(t, 115200, m.BaudRate)
	assert.Equal(t, 8, m.DataBits)
	assert.Equal(t, serial.NoParity, m.Parity)
	assert.Equal(t, serial.OneStopBit, m.StopBits)
	assert.Equal(t, time.Second, DefaultConfig().ReadTimeout)
}

func TestOptions(t *testing.T) {
	cfg := DefaultConfig()
	for _, o := range []Option{
		WithBaud(9600),
		WithReadTimeout(250 * time.Millisecond),
		WithFraming('E', 7, 2),
	} {
		o(&cfg)
	}
	assert.Equal(t, 9600, cfg.Baud)
	assert.Equal(t, 250*time.Millisecond, cfg.ReadTimeout)
	assert.Equal(t, serial.EvenParity, cfg.Parity)
	assert.Equal(t, 7, cfg.DataBits)
	assert.Equal(t, serial.TwoStopBits, cfg.StopBits)

	WithFraming('O', 3, 1.5)(&cfg)
	assert.Equal(t, serial.OddParity, cfg.Parity)
	assert.Equal(t, 7, cfg.DataBits, "invalid size ignored")
	assert.Equal(t, serial.OnePointFiveStopBits, cfg.StopBits)
}

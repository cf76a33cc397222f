package uart

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"

	proto "cellgain.ddns.net/cellgain-public/bootloader-efm/efmbootloader_protocol"
)

// Config holds the port settings. Flow control is always off.
type Config struct {
	Baud        int
	DataBits    int
	Parity      serial.Parity
	StopBits    serial.StopBits
	ReadTimeout time.Duration
}

// DefaultConfig is 115200 8N1 with a one second read timeout.
func DefaultConfig() Config {
	return Config{
		Baud:        115200,
		DataBits:    8,
		Parity:      serial.NoParity,
		StopBits:    serial.OneStopBit,
		ReadTimeout: time.Second,
	}
}

// Option changes a Config.
type Option func(*Config)

func WithBaud(baud int) Option {
	return func(c *Config) { c.Baud = baud }
}

func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.ReadTimeout = d }
}

// WithFraming sets parity ('N', 'E', 'O'), data bits and stop bits (1, 1.5, 2).
func WithFraming(parity byte, dataBits int, stopBits float64) Option {
	return func(c *Config) {
		switch parity {
		case 'E', 'e':
			c.Parity = serial.EvenParity
		case 'O', 'o':
			c.Parity = serial.OddParity
		default:
			c.Parity = serial.NoParity
		}
		if dataBits >= 5 && dataBits <= 8 {
			c.DataBits = dataBits
		}
		switch stopBits {
		case 1.5:
			c.StopBits = serial.OnePointFiveStopBits
		case 2:
			c.StopBits = serial.TwoStopBits
		default:
			c.StopBits = serial.OneStopBit
		}
	}
}

// Mode converts the config for go.bug.st/serial.
func (c Config) Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: c.Baud,
		DataBits: c.DataBits,
		Parity:   c.Parity,
		StopBits: c.StopBits,
	}
}

// Device is a serial port implementing the bootloader Channel.
type Device struct {
	dev     serial.Port
	name    string
	timeout time.Duration
}

var _ proto.Channel = (*Device)(nil)

// NewDevice opens port with DefaultConfig changed by opts.
func NewDevice(port string, opts ...Option) (*Device, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	dev, err := serial.Open(port, cfg.Mode())
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", port)
	}
	d := &Device{dev: dev, name: port}
	if err := d.SetTimeout(cfg.ReadTimeout); err != nil {
		dev.Close()
		return nil, err
	}
	if err := dev.ResetInputBuffer(); err != nil {
		log.WithError(err).Debug("reset input buffer")
	}

	log.WithFields(log.Fields{
		"port": port,
		"baud": cfg.Baud,
	}).Debug("serial port open")
	return d, nil
}

// Ports lists the serial ports of the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Close() error {
	return d.dev.Close()
}

func (d *Device) Read(buf []byte) (int, error) {
	return d.dev.Read(buf)
}

func (d *Device) Write(buf []byte) (int, error) {
	return d.dev.Write(buf)
}

func (d *Device) ReadLine() ([]byte, error) {
	return proto.ReadLine(d.dev)
}

func (d *Device) Timeout() time.Duration {
	return d.timeout
}

func (d *Device) SetTimeout(t time.Duration) error {
	if err := d.dev.SetReadTimeout(t); err != nil {
		return errors.Wrapf(err, "%s: set read timeout", d.name)
	}
	d.timeout = t
	return nil
}

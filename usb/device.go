package usb

import (
	"context"
	"sync"
	"time"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	proto "cellgain.ddns.net/cellgain-public/bootloader-efm/efmbootloader_protocol"
)

var ErrClosed = errors.New("device is closed")

// DeviceConfig selects the bulk data interface of the device.
type DeviceConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ConfigNumber    int
	InterfaceNum    int
	AltSetting      int
	InEndpointAddr  int
	OutEndpointAddr int
}

// DefaultConfig matches the CDC data interface of the EFM32 USB bootloader.
func DefaultConfig() DeviceConfig {
	return DeviceConfig{
		ReadTimeout:     time.Second,
		WriteTimeout:    5 * time.Second,
		ConfigNumber:    1,
		InterfaceNum:    1,
		AltSetting:      0,
		InEndpointAddr:  1,
		OutEndpointAddr: 1,
	}
}

type inEndpoint interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

type outEndpoint interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
}

// Device is a bootloader Channel over a pair of USB bulk endpoints. A read
// timeout returns (0, nil), like a serial port.
type Device struct {
	ctx   *gousb.Context
	dev   *gousb.Device
	cfg   *gousb.Config
	intf  *gousb.Interface
	epIn  inEndpoint
	epOut outEndpoint

	packetSize int
	pending    []byte
	timeout    time.Duration
	config     DeviceConfig

	mu     sync.Mutex
	closed bool
}

var _ proto.Channel = (*Device)(nil)

// NewDevice claims the configured interface of dev. The device and ctx are
// closed with the returned Device.
func NewDevice(ctx *gousb.Context, dev *gousb.Device, config DeviceConfig) (*Device, error) {
	if dev == nil {
		return nil, errors.New("device cannot be nil")
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultConfig().ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	d := &Device{
		ctx:     ctx,
		dev:     dev,
		config:  config,
		timeout: config.ReadTimeout,
	}
	if err := d.init(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) init() error {
	if err := d.dev.SetAutoDetach(true); err != nil {
		log.WithError(err).Warn("failed to set auto detach, continuing anyway")
	}

	cfg, err := d.dev.Config(d.config.ConfigNumber)
	if err != nil {
		return errors.Wrapf(err, "set config %d", d.config.ConfigNumber)
	}
	d.cfg = cfg

	intf, err := cfg.Interface(d.config.InterfaceNum, d.config.AltSetting)
	if err != nil {
		return errors.Wrapf(err, "claim interface %d", d.config.InterfaceNum)
	}
	d.intf = intf

	epIn, err := intf.InEndpoint(d.config.InEndpointAddr)
	if err != nil {
		return errors.Wrapf(err, "input endpoint %d", d.config.InEndpointAddr)
	}
	d.epIn = epIn
	d.packetSize = epIn.Desc.MaxPacketSize

	epOut, err := intf.OutEndpoint(d.config.OutEndpointAddr)
	if err != nil {
		return errors.Wrapf(err, "output endpoint %d", d.config.OutEndpointAddr)
	}
	d.epOut = epOut

	log.WithField("device", d.dev.String()).Debug("USB device initialized")
	return nil
}

// Read returns buffered data first, then at most one bulk transfer.
func (d *Device) Read(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	if len(d.pending) > 0 {
		n := copy(b, d.pending)
		d.pending = d.pending[n:]
		return n, nil
	}

	size := d.packetSize
	if size <= 0 {
		size = 64
	}
	buf := make([]byte, size)

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	n, err := d.epIn.ReadContext(ctx, buf)
	if err != nil && ctx.Err() == nil {
		return 0, errors.Wrap(err, "read")
	}

	m := copy(b, buf[:n])
	d.pending = append(d.pending, buf[m:n]...)
	return m, nil
}

func (d *Device) Write(b []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.config.WriteTimeout)
	defer cancel()
	n, err := d.epOut.WriteContext(ctx, b)
	if err != nil {
		if ctx.Err() != nil {
			return n, errors.Wrapf(err, "write timeout after %v", d.config.WriteTimeout)
		}
		return n, errors.Wrap(err, "write")
	}
	return n, nil
}

func (d *Device) ReadLine() ([]byte, error) {
	return proto.ReadLine(d)
}

func (d *Device) Timeout() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timeout
}

func (d *Device) SetTimeout(t time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.timeout = t
	return nil
}

// Close releases the interface, the device and its context.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if d.intf != nil {
		d.intf.Close()
	}
	if d.cfg != nil {
		keep(d.cfg.Close())
	}
	if d.dev != nil {
		keep(d.dev.Close())
	}
	if d.ctx != nil {
		keep(d.ctx.Close())
	}
	d.intf, d.cfg, d.dev, d.ctx = nil, nil, nil, nil
	d.epIn, d.epOut = nil, nil

	log.Debug("USB device closed")
	return first
}

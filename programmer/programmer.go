package programmer

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	proto "cellgain.ddns.net/cellgain-public/bootloader-efm/efmbootloader_protocol"
	"cellgain.ddns.net/cellgain-public/bootloader-efm/xmodem"
)

// ImageSource produces the firmware bytes.
type ImageSource interface {
	Load() ([]byte, error)
}

// ImageSourceFunc adapts a function to ImageSource.
type ImageSourceFunc func() ([]byte, error)

func (f ImageSourceFunc) Load() ([]byte, error) { return f() }

// Opener opens the link to the device. It is only called once the image
// has been loaded.
type Opener func() (proto.Channel, error)

// Programmer runs programming sessions against one device.
type Programmer struct {
	open   Opener
	source ImageSource
	config Config
}

// New creates a Programmer.
//
// Example:
//
//	prog := programmer.New(
//	    func() (efmbootloader_protocol.Channel, error) { return uart.NewDevice("/dev/ttyUSB0") },
//	    imageParse.NewImage("app.bin", 0),
//	    programmer.WithVerify(true),
//	)
//	result, err := prog.Program()
func New(open Opener, source ImageSource, opts ...Option) *Programmer {
	if open == nil || source == nil {
		panic("opener and image source cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Transfer == nil {
		cfg.Transfer = XModemTransfer(cfg.Progress, cfg.Logger)
	}

	return &Programmer{
		open:   open,
		source: source,
		config: cfg,
	}
}

// XModemTransfer sends the padded image with XMODEM over the session's
// getc/putc primitives.
func XModemTransfer(progress xmodem.ProgressFunc, logger log.FieldLogger) TransferFunc {
	return func(s *proto.Session, padded []byte) error {
		x := xmodem.New(s.Getc, s.Putc)
		x.Progress = progress
		if logger != nil {
			x.Log = logger
		}
		return x.Send(padded)
	}
}

// Program runs one session:
//  1. load the image
//  2. pad it to whole XMODEM blocks
//  3. open the channel
//  4. auto-baud
//  5. overwrite or update command
//  6. XMODEM transfer
//  7. optional CRC verification
//  8. boot
//
// It stops at the first failing step. The channel is closed on return.
func (p *Programmer) Program() (Result, error) {
	l := p.config.Logger
	start := time.Now()

	image, err := p.source.Load()
	if err != nil {
		return ImageLoadFailure, errors.Wrap(err, "load image")
	}
	if len(image) == 0 {
		return ImageLoadFailure, ErrEmptyImage
	}

	var expected uint16
	if p.config.Verify {
		if expected, err = p.expectedCRC(image); err != nil {
			return ImageLoadFailure, errors.Wrap(err, "expected CRC")
		}
	}

	padded := xmodem.Pad(image, p.config.BlockSize, xmodem.Filler)
	l.WithFields(log.Fields{
		"size":   len(image),
		"padded": len(padded),
	}).Info("image loaded")

	ch, err := p.open()
	if err != nil {
		return ChannelFailure, errors.Wrap(err, "open channel")
	}
	defer func() {
		if e := ch.Close(); e != nil {
			l.WithError(e).Debug("close channel")
		}
	}()

	s := proto.NewSession(ch)
	s.MaxRetries = p.config.MaxRetries
	s.Log = l

	r, err := s.SendCmd(proto.CmdAutoBaud)
	if err != nil {
		return AutoBaudFailure, err
	}
	if !proto.IsBanner(r) {
		return AutoBaudFailure, &ResponseError{Cmd: proto.CmdAutoBaud, Response: r}
	}
	l.WithField("banner", string(r)).Info("bootloader found")

	cmd := p.config.Mode.Command()
	r, err = s.SendCmd(cmd)
	if err != nil {
		return ModeCommandFailure, err
	}
	if !proto.IsReady(r) {
		return ModeCommandFailure, &ResponseError{Cmd: cmd, Response: r}
	}
	l.WithField("mode", p.config.Mode.String()).Info("device ready")

	if err := p.config.Transfer(s, padded); err != nil {
		return TransferFailure, errors.Wrap(err, "transfer")
	}
	l.WithField("elapsed", time.Since(start).String()).Info("transfer complete")

	if p.config.Verify {
		if res, err := p.verify(s, expected); err != nil {
			return res, err
		}
	}

	if err := s.Send(proto.CmdBoot); err != nil {
		l.WithError(err).Warn("boot command not sent")
	}
	l.WithField("elapsed", time.Since(start).String()).Info("programming complete")
	return Success, nil
}

func (p *Programmer) expectedCRC(image []byte) (uint16, error) {
	if p.config.Scope == ScopeApplication {
		return p.config.Calculator.Application(image)
	}
	return p.config.Calculator.Image(image)
}

func (p *Programmer) verify(s *proto.Session, expected uint16) (Result, error) {
	if err := s.OverrideTimeout(p.config.VerifyTimeout, false); err != nil {
		return CrcMismatch, err
	}
	cmd := p.config.Scope.Command()
	r, err := s.SendCmd(cmd)
	if err != nil {
		return CrcMismatch, err
	}
	actual, err := proto.ParseCRC(r)
	if err != nil {
		return CrcMismatch, err
	}
	if actual != expected {
		return CrcMismatch, &CRCMismatchError{
			Scope:    p.config.Scope,
			Expected: expected,
			Actual:   actual,
		}
	}
	p.config.Logger.WithFields(log.Fields{
		"scope": p.config.Scope.String(),
		"crc":   actual,
	}).Info("CRC verified")
	return Success, nil
}

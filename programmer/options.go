package programmer

import (
	"time"

	log "github.com/sirupsen/logrus"

	"cellgain.ddns.net/cellgain-public/bootloader-efm/crc"
	proto "cellgain.ddns.net/cellgain-public/bootloader-efm/efmbootloader_protocol"
	"cellgain.ddns.net/cellgain-public/bootloader-efm/xmodem"
)

// Mode is the upload command used for the transfer.
type Mode int

const (
	// Overwrite replaces the whole flash including the bootloader.
	Overwrite Mode = iota
	// Update keeps the bootloader and writes the application region.
	Update
)

func (m Mode) Command() proto.Command {
	if m == Update {
		return proto.CmdUpdate
	}
	return proto.CmdOverwrite
}

func (m Mode) String() string {
	if m == Update {
		return "update"
	}
	return "overwrite"
}

// VerifyScope selects which checksum is compared after the transfer.
type VerifyScope int

const (
	// ScopeFlash checksums the whole flash.
	ScopeFlash VerifyScope = iota
	// ScopeApplication checksums from the application offset on.
	ScopeApplication
)

func (v VerifyScope) Command() proto.Command {
	if v == ScopeApplication {
		return proto.CmdVerifyApplication
	}
	return proto.CmdVerifyFlash
}

func (v VerifyScope) String() string {
	if v == ScopeApplication {
		return "application"
	}
	return "flash"
}

// TransferFunc sends the padded image once the device is ready.
type TransferFunc func(s *proto.Session, padded []byte) error

// Config holds the programmer configuration.
type Config struct {
	Mode   Mode
	Verify bool
	Scope  VerifyScope

	// VerifyTimeout is the read timeout while the device computes its CRC.
	VerifyTimeout time.Duration
	MaxRetries    int
	BlockSize     int
	Calculator    crc.Calculator

	Transfer TransferFunc
	Progress xmodem.ProgressFunc
	Logger   log.FieldLogger
}

func defaultConfig() Config {
	return Config{
		Mode:          Overwrite,
		Scope:         ScopeFlash,
		VerifyTimeout: 10 * time.Second,
		MaxRetries:    proto.DefaultMaxRetries,
		BlockSize:     xmodem.BlockSize,
		Calculator:    crc.Default(),
		Logger:        log.StandardLogger(),
	}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithMode selects overwrite or update.
func WithMode(m Mode) Option {
	return func(c *Config) { c.Mode = m }
}

// WithVerify enables the CRC check after the transfer.
func WithVerify(verify bool) Option {
	return func(c *Config) { c.Verify = verify }
}

// WithVerifyScope selects the whole flash or the application region.
func WithVerifyScope(s VerifyScope) Option {
	return func(c *Config) { c.Scope = s }
}

func WithVerifyTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.VerifyTimeout = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxRetries = n
		}
	}
}

// WithCalculator replaces the flash layout used for the expected CRC.
func WithCalculator(calc crc.Calculator) Option {
	return func(c *Config) { c.Calculator = calc }
}

// WithTransfer replaces the XMODEM transfer.
func WithTransfer(t TransferFunc) Option {
	return func(c *Config) { c.Transfer = t }
}

// WithProgress is called after each acknowledged block.
func WithProgress(p xmodem.ProgressFunc) Option {
	return func(c *Config) { c.Progress = p }
}

func WithLogger(l log.FieldLogger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

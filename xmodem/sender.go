// Package xmodem sends a buffer with the XMODEM protocol (128 byte blocks,
// CRC-16 or additive checksum) over getc/putc callbacks.
package xmodem

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"cellgain.ddns.net/cellgain-public/bootloader-efm/crc"
)

const (
	SOH = 0x01
	EOT = 0x04
	ACK = 0x06
	NAK = 0x15
	CAN = 0x18
	SUB = 0x1A
	CRC = 'C'

	// BlockSize is the data size of one XMODEM block.
	BlockSize = 128
	// Filler pads images to whole blocks; it is the erased flash value.
	Filler = 0xFF

	DefaultRetries = 16
	DefaultTimeout = 10 * time.Second
)

var (
	ErrTransferCancelled = errors.New("transfer cancelled by receiver")
	ErrTooManyErrors     = errors.New("too many errors")
)

// GetcFunc reads up to size bytes and returns fewer on timeout.
type GetcFunc func(size int, timeout time.Duration) ([]byte, error)

// PutcFunc writes data.
type PutcFunc func(data []byte, timeout time.Duration) (int, error)

// ProgressFunc is called after each acknowledged block.
type ProgressFunc func(sent, total int)

// Sender holds the transport callbacks and transfer settings.
type Sender struct {
	Getc GetcFunc
	Putc PutcFunc

	// Retries bounds consecutive errors while waiting for the receiver,
	// per block and for the final EOT.
	Retries int
	Timeout time.Duration
	// Padding fills a short last block.
	Padding  byte
	Progress ProgressFunc
	Log      log.FieldLogger
}

// New returns a Sender with default settings.
func New(getc GetcFunc, putc PutcFunc) *Sender {
	return &Sender{
		Getc:    getc,
		Putc:    putc,
		Retries: DefaultRetries,
		Timeout: DefaultTimeout,
		Padding: SUB,
		Log:     log.StandardLogger(),
	}
}

// Send transfers data and returns once the receiver acknowledged EOT.
func (s *Sender) Send(data []byte) error {
	useCRC, err := s.waitStart()
	if err != nil {
		return err
	}
	s.Log.WithField("crc", useCRC).Debug("receiver ready")

	total := (len(data) + BlockSize - 1) / BlockSize
	seq := byte(1)
	for i := 0; i < total; i++ {
		if err := s.sendBlock(seq, s.block(data, i), useCRC); err != nil {
			return errors.Wrapf(err, "block %d", i+1)
		}
		if s.Progress != nil {
			s.Progress(i+1, total)
		}
		seq++
	}

	return s.finish()
}

func (s *Sender) block(data []byte, i int) []byte {
	start := i * BlockSize
	end := start + BlockSize
	if end <= len(data) {
		return data[start:end]
	}
	b := make([]byte, BlockSize)
	n := copy(b, data[start:])
	for ; n < BlockSize; n++ {
		b[n] = s.Padding
	}
	return b
}

func (s *Sender) waitStart() (bool, error) {
	errorCount := 0
	cancelled := false
	for {
		c, err := s.Getc(1, s.Timeout)
		if err != nil {
			return false, err
		}
		if len(c) == 1 {
			switch c[0] {
			case NAK:
				return false, nil
			case CRC:
				return true, nil
			case CAN:
				if cancelled {
					return false, ErrTransferCancelled
				}
				cancelled = true
				continue
			default:
				s.Log.Debugf("expected NAK, CRC or CAN, got 0x%02X", c[0])
			}
		}
		errorCount++
		if errorCount > s.Retries {
			return false, errors.Wrap(ErrTooManyErrors, "waiting for receiver")
		}
	}
}

func (s *Sender) sendBlock(seq byte, data []byte, useCRC bool) error {
	frame := make([]byte, 0, 3+len(data)+2)
	frame = append(frame, SOH, seq, 0xFF-seq)
	frame = append(frame, data...)
	if useCRC {
		sum := crc.Checksum(data)
		frame = append(frame, byte(sum>>8), byte(sum))
	} else {
		frame = append(frame, checksum(data))
	}

	errorCount := 0
	cancelled := false
	for {
		if _, err := s.Putc(frame, s.Timeout); err != nil {
			return err
		}
		c, err := s.Getc(1, s.Timeout)
		if err != nil {
			return err
		}
		if len(c) == 1 {
			switch c[0] {
			case ACK:
				return nil
			case CAN:
				if cancelled {
					return ErrTransferCancelled
				}
				cancelled = true
			case NAK:
				s.Log.Debugf("NAK for block %d", seq)
			default:
				s.Log.Debugf("expected ACK or NAK, got 0x%02X", c[0])
			}
		}
		errorCount++
		if errorCount > s.Retries {
			return ErrTooManyErrors
		}
	}
}

func (s *Sender) finish() error {
	errorCount := 0
	for {
		if _, err := s.Putc([]byte{EOT}, s.Timeout); err != nil {
			return err
		}
		c, err := s.Getc(1, s.Timeout)
		if err != nil {
			return err
		}
		if len(c) == 1 && c[0] == ACK {
			return nil
		}
		errorCount++
		if errorCount > s.Retries {
			return errors.Wrap(ErrTooManyErrors, "EOT not acknowledged")
		}
	}
}

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

package efmbootloader_protocol

import (
	"io"
	"time"
)

// MaxLineLength bounds ReadLine so a babbling device cannot grow a line forever.
const MaxLineLength = 256

// Channel is the byte link to the bootloader. Read returns (0, nil) when the
// read timeout expires without data, as serial ports do.
type Channel interface {
	io.ReadWriteCloser

	// ReadLine reads up to and including '\n'. On timeout it returns what was
	// read so far, which may be nothing.
	ReadLine() ([]byte, error)

	Timeout() time.Duration
	SetTimeout(d time.Duration) error
}

// ReadLine reads r one byte at a time until '\n', a timeout (a zero-length
// read) or MaxLineLength bytes. Reading byte-wise keeps any data after the
// line in the port for the next reader.
func ReadLine(r io.Reader) ([]byte, error) {
	line := make([]byte, 0, 64)
	b := make([]byte, 1)
	for len(line) < MaxLineLength {
		n, err := r.Read(b)
		if n == 1 {
			line = append(line, b[0])
			if b[0] == '\n' {
				return line, nil
			}
		}
		if err == io.EOF {
			return line, nil
		}
		if err != nil {
			return line, err
		}
		if n == 0 {
			return line, nil
		}
	}
	return line, nil
}

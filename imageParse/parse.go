package imageParse

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Filler fills gaps between HEX segments, the value of erased flash.
const Filler = 0xFF

var (
	ErrEmptyImage = errors.New("empty image")
	ErrBelowBase  = errors.New("segment below base address")
)

// Image is a firmware file to be flashed.
type Image struct {
	path string
	file *os.File
	base uint32
	// AutoBase makes a HEX image start at its lowest segment instead of base.
	AutoBase bool
}

// NewImage prepares path for loading. base is the flash address the image is
// programmed at; HEX segments are placed relative to it.
func NewImage(path string, base uint32) *Image {
	return &Image{path: path, base: base}
}

// Path returns the file path.
func (i *Image) Path() string {
	return i.path
}

// Load reads the whole image. .hex and .ihex files are parsed as Intel HEX,
// anything else is taken as a flat binary.
func (i *Image) Load() ([]byte, error) {
	if err := i.open(); err != nil {
		return nil, err
	}
	defer i.close()

	var (
		content []byte
		err     error
	)
	switch strings.ToLower(filepath.Ext(i.path)) {
	case ".hex", ".ihex":
		content, err = ParseHex(i.file, i.base, i.AutoBase)
	default:
		content, err = io.ReadAll(i.file)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", i.path)
	}
	if len(content) == 0 {
		return nil, errors.Wrapf(ErrEmptyImage, "load %s", i.path)
	}

	log.WithFields(log.Fields{
		"path": i.path,
		"size": len(content),
	}).Debug("image loaded")
	return content, nil
}

func (i *Image) open() error {
	var err error
	i.file, err = os.Open(i.path)
	return err
}

func (i *Image) close() {
	if e := i.file.Close(); e != nil {
		log.Debug(e)
	}
}

// ParseHex flattens an Intel HEX stream into a byte image starting at base.
// Gaps between segments are filled with Filler.
func ParseHex(r io.Reader, base uint32, autoBase bool) ([]byte, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, err
	}
	segs := mem.GetDataSegments()
	if len(segs) == 0 {
		return nil, nil
	}

	lo, hi := segs[0].Address, uint32(0)
	for _, s := range segs {
		if s.Address < lo {
			lo = s.Address
		}
		if end := s.Address + uint32(len(s.Data)); end > hi {
			hi = end
		}
	}
	if autoBase {
		base = lo
	}
	if lo < base {
		return nil, errors.Wrapf(ErrBelowBase, "0x%08X < 0x%08X", lo, base)
	}

	log.WithFields(log.Fields{
		"segments": len(segs),
		"start":    lo,
		"end":      hi,
	}).Trace("hex parsed")
	return mem.ToBinary(base, hi-base, Filler), nil
}

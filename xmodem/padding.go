package xmodem

// Pad returns content followed by filler so that the length is a multiple of
// blockSize. At least one filler byte is always added, so aligned input grows
// by a whole block.
func Pad(content []byte, blockSize int, filler byte) []byte {
	if blockSize <= 0 {
		blockSize = BlockSize
	}
	padding := blockSize - len(content)%blockSize
	out := make([]byte, len(content)+padding)
	copy(out, content)
	for i := len(content); i < len(out); i++ {
		out[i] = filler
	}
	return out
}

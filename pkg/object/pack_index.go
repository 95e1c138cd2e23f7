package object

import "fmt"

// PackIndexEntry is one row of a parsed idx v2 pack index.
type PackIndexEntry struct {
	OID    Hash
	Offset uint64
	CRC32  uint32
}

func hashToRaw(h Hash, width int) ([]byte, error) {
	if h.Width() != width {
		return nil, fmt.Errorf("hash %q does not match expected width %d bytes", h, width)
	}
	return hexToBytes(string(h))
}

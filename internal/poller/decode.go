package poller

import (
	"encoding/binary"

	"github.com/infertux/solar-exporter/internal/catalog"
)

// wordsFromBytes splits a Modbus register payload (big-endian, 2 bytes per
// register) into 16-bit words.
func wordsFromBytes(b []byte) []uint16 {
	words := make([]uint16, len(b)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(b[i*2 : i*2+2])
	}
	return words
}

// bytesFromWords is the inverse of wordsFromBytes, used when writing
// registers back (e.g. clock discipline).
func bytesFromWords(words []uint16) []byte {
	b := make([]byte, len(words)*2)
	for i, w := range words {
		binary.BigEndian.PutUint16(b[i*2:i*2+2], w)
	}
	return b
}

// Decode turns the raw words of a single register read into its scaled
// value. A Single register uses only w0; a Double register combines both
// words high-word-first: ((w0<<16)+w1)*scale. This ordering is pinned by
// spec.md §4.1.1 and by TestDecodeHighWordFirstOrdering, not inferred from the
// (mutually inconsistent) original C sources — see SPEC_FULL.md Open
// Questions.
func Decode(width catalog.Width, scale float64, words []uint16) float64 {
	switch width {
	case catalog.Double:
		raw := (uint32(words[0]) << 16) + uint32(words[1])
		return float64(raw) * scale
	default:
		return float64(words[0]) * scale
	}
}

// Encode is the inverse of Decode at scale 1.0, used to round-trip test
// the word ordering. Clock-discipline write-back payloads are built by
// encodeClock instead.
func Encode(width catalog.Width, scale float64, value float64) []uint16 {
	raw := uint32(value / scale)
	switch width {
	case catalog.Double:
		return []uint16{uint16(raw >> 16), uint16(raw & 0xFFFF)}
	default:
		return []uint16{uint16(raw)}
	}
}

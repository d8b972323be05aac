// Package payload classifies and unwraps downloaded camera payloads.
//
// The camera's file index lies: "jpg" entries may hold short H264
// fragments, empty placeholders, or the occasional real JPEG. Everything
// here is a pure function of bytes so content sniffing never depends on
// protocol state or the index's reported kind.
package payload

import (
	"bytes"
	"encoding/binary"
)

type Class string

const (
	RealImage     Class = "real_image"
	VideoFragment Class = "video_fragment"
	Placeholder   Class = "placeholder"
	Unknown       Class = "unknown"
)

// DefaultMinSize is the observed firmware floor under which an index entry
// has no retrievable content. Empirical for this firmware; overridable via
// configuration.
const DefaultMinSize = 100

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}

	nalStartCode4 = []byte{0x00, 0x00, 0x00, 0x01}
	nalStartCode3 = []byte{0x00, 0x00, 0x01}
)

// Classify tags raw downloaded bytes. minSize <= 0 falls back to
// DefaultMinSize.
func Classify(data []byte, minSize int) Class {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	if len(data) < minSize {
		return Placeholder
	}
	if bytes.HasPrefix(data, jpegSOI) {
		return RealImage
	}
	if looksLikeVideo(data) {
		return VideoFragment
	}
	return Unknown
}

func looksLikeVideo(data []byte) bool {
	if bytes.HasPrefix(data, nalStartCode4) || bytes.HasPrefix(data, nalStartCode3) {
		return true
	}
	// Raw 1426 transport stream: a known frame tag dword at offset 0.
	if len(data) >= 4 {
		switch binary.BigEndian.Uint32(data[:4]) {
		case tagVideoFrame, tagVideoFrameAlt, tagAudio, tagAux1, tagAux2:
			return true
		}
	}
	return false
}

// CountNALUnits counts Annex-B start codes, a cheap decodability signal.
func CountNALUnits(data []byte) int {
	return bytes.Count(data, nalStartCode4)
}

// ExtractEmbeddedJPEG scans for the largest SOI..EOI span. Some firmwares
// bury a whole JPEG inside an otherwise undecodable payload; anything
// under 1KB is noise, not a picture.
func ExtractEmbeddedJPEG(data []byte) ([]byte, bool) {
	const minUsable = 1024

	var best []byte
	start := 0
	for {
		i := bytes.Index(data[start:], jpegSOI)
		if i < 0 {
			break
		}
		i += start
		j := bytes.Index(data[i+2:], jpegEOI)
		if j < 0 {
			break
		}
		end := i + 2 + j + 2
		if end-i > len(best) {
			best = data[i:end]
		}
		start = i + 2
	}

	if len(best) >= minUsable {
		return best, true
	}
	return nil, false
}

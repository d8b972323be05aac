package payload

import "encoding/binary"

// Frame tags observed in the 1426 transport stream.
const (
	tagVideoFrame    = 0x1FC
	tagVideoFrameAlt = 0x1FE
	tagAudio         = 0x1FD
	tagAux1          = 0x1F9
	tagAux2          = 0x1FA

	// A JPEG SOI+APP0 signature read as a big-endian dword. Rare: the
	// camera splices raw JPEG bytes into the stream without a frame tag.
	tagInlineJPEG = 0xFFD8FFE0
)

// Demux strips the camera's frame container from a 1426 transport stream
// and returns the bare H264 elementary stream.
//
// Block layout after the big-endian tag dword:
//
//	0x1FC/0x1FE: 12-byte sub-header, last 4 bytes = payload length (LE)
//	0x1FD:       4-byte payload length (LE)
//	0x1F9/0x1FA: 4 bytes, last 2 = payload length (LE)
//
// An unknown tag means we are mid-payload or the stream is damaged; resync
// by sliding one byte forward instead of giving up.
func Demux(stream []byte) []byte {
	var out []byte
	cursor := 0
	remain := 0

	for cursor < len(stream) {
		if remain == 0 {
			if cursor+4 > len(stream) {
				break
			}
			tag := binary.BigEndian.Uint32(stream[cursor : cursor+4])
			cursor += 4

			switch tag {
			case tagVideoFrame, tagVideoFrameAlt:
				if cursor+12 > len(stream) {
					return out
				}
				remain = int(binary.LittleEndian.Uint32(stream[cursor+8 : cursor+12]))
				cursor += 12
			case tagAudio:
				if cursor+4 > len(stream) {
					return out
				}
				remain = int(binary.LittleEndian.Uint32(stream[cursor : cursor+4]))
				cursor += 4
			case tagAux1, tagAux2:
				if cursor+4 > len(stream) {
					return out
				}
				remain = int(binary.LittleEndian.Uint16(stream[cursor+2 : cursor+4]))
				cursor += 4
			case tagInlineJPEG:
				out = append(out, 0xFF, 0xD8, 0xFF, 0xE0)
				continue
			default:
				cursor -= 3 // slide one byte past the tag start
				continue
			}
		}

		take := remain
		if avail := len(stream) - cursor; take > avail {
			take = avail
		}
		if take <= 0 {
			break
		}
		out = append(out, stream[cursor:cursor+take]...)
		cursor += take
		remain -= take
	}
	return out
}

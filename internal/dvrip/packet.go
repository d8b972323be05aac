package dvrip

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const (
	packetMagic   = 0xFF
	packetVersion = 0x00
	headerSize    = 20

	// Cameras reject payloads missing the trailing newline+NUL.
	payloadTail = "\x0a\x00"

	maxPayloadSize = 4 << 20
)

// DVRIP message IDs observed on Xiongmai-family firmware.
const (
	msgLogin        uint16 = 1000
	msgKeepAlive    uint16 = 1006
	msgPlayControl  uint16 = 1420
	msgPlayClaim    uint16 = 1424
	msgDownloadData uint16 = 1426
	msgFileQuery    uint16 = 1440
	msgAlarmSet     uint16 = 1500
	msgAlarmPush    uint16 = 1504
)

// packet is one framed DVRIP message. Channel and EndFlag occupy the two
// bytes before MessageID; control requests leave them zero, download data
// packets use EndFlag != 0 to mark the last packet of a transfer.
type packet struct {
	SessionID uint32
	Sequence  uint32
	Channel   byte
	EndFlag   byte
	MessageID uint16
	Payload   []byte
}

func (p *packet) encode() []byte {
	buf := make([]byte, headerSize+len(p.Payload))
	buf[0] = packetMagic
	buf[1] = packetVersion
	binary.LittleEndian.PutUint32(buf[4:8], p.SessionID)
	binary.LittleEndian.PutUint32(buf[8:12], p.Sequence)
	buf[12] = p.Channel
	buf[13] = p.EndFlag
	binary.LittleEndian.PutUint16(buf[14:16], p.MessageID)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(p.Payload)))
	copy(buf[headerSize:], p.Payload)
	return buf
}

func writePacket(w io.Writer, p *packet) error {
	_, err := w.Write(p.encode())
	return err
}

func readPacket(r io.Reader) (*packet, error) {
	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	if hdr[0] != packetMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%02X", ErrProtocol, hdr[0])
	}
	p := &packet{
		SessionID: binary.LittleEndian.Uint32(hdr[4:8]),
		Sequence:  binary.LittleEndian.Uint32(hdr[8:12]),
		Channel:   hdr[12],
		EndFlag:   hdr[13],
		MessageID: binary.LittleEndian.Uint16(hdr[14:16]),
	}
	size := binary.LittleEndian.Uint32(hdr[16:20])
	if size > maxPayloadSize {
		return nil, fmt.Errorf("%w: payload length %d exceeds limit", ErrProtocol, size)
	}
	if size > 0 {
		p.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, p.Payload); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// jsonPayload marshals v and appends the protocol tail.
func jsonPayload(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, payloadTail...), nil
}

// decodeJSON strips trailing NUL/newline bytes before unmarshalling.
func decodeJSON(payload []byte, v interface{}) error {
	trimmed := bytes.TrimRight(payload, "\x00\x0a")
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty json payload", ErrProtocol)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return nil
}

// sofiaHash is the camera's password digest: md5 bytes are folded in pairs
// modulo 62 into an alphanumeric alphabet.
func sofiaHash(password string) string {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	sum := md5.Sum([]byte(password))
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = alphabet[(int(sum[2*i])+int(sum[2*i+1]))%62]
	}
	return string(out)
}

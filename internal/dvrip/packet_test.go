package dvrip

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketEncode(t *testing.T) {
	p := &packet{
		SessionID: 0x0000001F,
		Sequence:  2,
		MessageID: msgLogin,
		Payload:   []byte("{}"),
	}
	got := p.encode()

	want := []byte{
		0xFF, 0x00, 0x00, 0x00, // magic, version, reserved
		0x1F, 0x00, 0x00, 0x00, // session LE
		0x02, 0x00, 0x00, 0x00, // sequence LE
		0x00, 0x00, // channel, endflag
		0xE8, 0x03, // msgid 1000 LE
		0x02, 0x00, 0x00, 0x00, // payload length LE
		'{', '}',
	}
	assert.Equal(t, want, got)
}

func TestPacketRoundTrip(t *testing.T) {
	in := &packet{
		SessionID: 0xDEADBEEF,
		Sequence:  7,
		Channel:   1,
		EndFlag:   1,
		MessageID: msgDownloadData,
		Payload:   []byte("hello camera"),
	}

	var buf bytes.Buffer
	require.NoError(t, writePacket(&buf, in))

	out, err := readPacket(&buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPacketReadBadMagic(t *testing.T) {
	raw := make([]byte, headerSize)
	raw[0] = 0xAB

	_, err := readPacket(bytes.NewReader(raw))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestPacketReadOversizedPayload(t *testing.T) {
	p := &packet{MessageID: msgFileQuery}
	raw := p.encode()
	// Claim a payload bigger than the cap.
	raw[16] = 0xFF
	raw[17] = 0xFF
	raw[18] = 0xFF
	raw[19] = 0x7F

	_, err := readPacket(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestJSONPayloadTail(t *testing.T) {
	data, err := jsonPayload(map[string]string{"Name": "KeepAlive"})
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(data, []byte("\x0a\x00")))

	var out map[string]string
	require.NoError(t, decodeJSON(data, &out))
	assert.Equal(t, "KeepAlive", out["Name"])
}

func TestSofiaHash(t *testing.T) {
	// Known digests for this scheme.
	assert.Equal(t, "tlJwpbo6", sofiaHash(""))
	assert.Equal(t, "6QNMIQGe", sofiaHash("admin"))
	assert.Len(t, sofiaHash("anything else"), 8)
}

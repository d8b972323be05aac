package payload

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pad(prefix []byte, size int) []byte {
	out := make([]byte, size)
	copy(out, prefix)
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Class
	}{
		{"tiny placeholder", []byte{0xFF, 0xD8, 0x01}, Placeholder},
		{"empty", nil, Placeholder},
		{"jpeg", pad([]byte{0xFF, 0xD8, 0xFF, 0xE0}, 4096), RealImage},
		{"annexb 4-byte start code", pad([]byte{0x00, 0x00, 0x00, 0x01, 0x67}, 4096), VideoFragment},
		{"annexb 3-byte start code", pad([]byte{0x00, 0x00, 0x01, 0x67}, 4096), VideoFragment},
		{"transport tag 0x1FC", pad([]byte{0x00, 0x00, 0x01, 0xFC}, 4096), VideoFragment},
		{"transport tag 0x1FD", pad([]byte{0x00, 0x00, 0x01, 0xFD}, 4096), VideoFragment},
		{"opaque", pad([]byte{0xDE, 0xAD, 0xBE, 0xEF}, 4096), Unknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.data, 0))
		})
	}
}

func TestClassifyCustomMinSize(t *testing.T) {
	data := pad([]byte{0xFF, 0xD8}, 50)
	assert.Equal(t, Placeholder, Classify(data, 0))
	assert.Equal(t, RealImage, Classify(data, 10))
}

func TestCountNALUnits(t *testing.T) {
	var b bytes.Buffer
	for i := 0; i < 3; i++ {
		b.Write([]byte{0x00, 0x00, 0x00, 0x01, 0x65, 0xAA})
	}
	assert.Equal(t, 3, CountNALUnits(b.Bytes()))
	assert.Equal(t, 0, CountNALUnits([]byte{0x01, 0x02}))
}

func TestExtractEmbeddedJPEG(t *testing.T) {
	inner := make([]byte, 2048)
	inner[0], inner[1] = 0xFF, 0xD8
	inner[len(inner)-2], inner[len(inner)-1] = 0xFF, 0xD9

	data := append([]byte{0x00, 0x11, 0x22}, inner...)
	data = append(data, 0x33, 0x44)

	got, ok := ExtractEmbeddedJPEG(data)
	require.True(t, ok)
	assert.Equal(t, inner, got)
}

func TestExtractEmbeddedJPEGTooSmall(t *testing.T) {
	data := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	_, ok := ExtractEmbeddedJPEG(data)
	assert.False(t, ok)
}

func TestExtractEmbeddedJPEGPicksLargest(t *testing.T) {
	small := make([]byte, 1100)
	small[0], small[1] = 0xFF, 0xD8
	small[len(small)-2], small[len(small)-1] = 0xFF, 0xD9

	big := make([]byte, 3000)
	big[0], big[1] = 0xFF, 0xD8
	big[len(big)-2], big[len(big)-1] = 0xFF, 0xD9

	data := append(append([]byte{0xAB}, small...), big...)

	got, ok := ExtractEmbeddedJPEG(data)
	require.True(t, ok)
	assert.Len(t, got, len(big))
}

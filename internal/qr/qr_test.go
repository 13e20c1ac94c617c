package qr

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCode = "2@abcdefghijklmnopqrstuvwxyz0123456789,ABCDEF==,GHIJKL=="

func TestPNG(t *testing.T) {
	data, err := PNG(sampleCode, 256)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err, "output should be a decodable PNG")
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestPNGDefaultSize(t *testing.T) {
	data, err := PNG(sampleCode, 0)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultSize, img.Bounds().Dx())
}

func TestPNGEmptyCode(t *testing.T) {
	_, err := PNG("", 256)
	assert.ErrorIs(t, err, ErrEmptyCode)
}

func TestDataURI(t *testing.T) {
	uri, err := DataURI(sampleCode, 128)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/png;base64,"))
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	assert.NoError(t, err)
}

func TestTerminal(t *testing.T) {
	var buf bytes.Buffer
	Terminal(sampleCode, &buf)
	assert.NotZero(t, buf.Len(), "terminal QR should produce output")

	buf.Reset()
	Terminal("", &buf)
	assert.Zero(t, buf.Len(), "empty code should produce no output")
}

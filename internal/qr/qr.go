// Package qr renders WhatsApp pairing codes as PNG images, data URIs and
// terminal block art.
package qr

import (
	"encoding/base64"
	"errors"
	"io"

	"github.com/mdp/qrterminal/v3"
	qrcode "github.com/skip2/go-qrcode"
)

// DefaultSize is the PNG edge length used when the caller passes size <= 0.
const DefaultSize = 256

var ErrEmptyCode = errors.New("qr: empty pairing code")

// PNG encodes a pairing code as a PNG image.
func PNG(code string, size int) ([]byte, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(code, qrcode.Medium, size)
}

// DataURI encodes a pairing code as a data:image/png;base64 URI, ready for
// an <img> tag.
func DataURI(code string, size int) (string, error) {
	png, err := PNG(code, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// Terminal writes the pairing code as half-block art, for scanning straight
// off the server console.
func Terminal(code string, w io.Writer) {
	if code == "" {
		return
	}
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}

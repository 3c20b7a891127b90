package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const imageSize = 256

// EncodePNG renders the content as a QR code and returns it as a base64
// data URI, which is what order and ticket rows store for client display.
func EncodePNG(content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("qr content is required")
	}
	png, err := qrcode.Encode(content, qrcode.Medium, imageSize)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

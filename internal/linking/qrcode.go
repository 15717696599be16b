package linking

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// RenderQRCode turns a scan payload into a PNG data URL that a browser can
// put straight into an <img> tag.
func RenderQRCode(payload string) (string, error) {
	if payload == "" {
		return "", fmt.Errorf("empty scan payload")
	}

	png, err := qrcode.Encode(payload, qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

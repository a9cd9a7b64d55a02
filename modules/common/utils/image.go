package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"log"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/webp"
)

// ConvertImageToBase64 - 바이너리를 base64로 변환
func ConvertImageToBase64(data []byte) string {
	base64Str := base64.StdEncoding.EncodeToString(data)
	log.Printf("🔄 Converted to base64: %d chars (preview: %s...)",
		len(base64Str),
		base64Str[:min(50, len(base64Str))])
	return base64Str
}

// ConvertWebPToPNG - WebP 바이너리를 PNG로 변환
func ConvertWebPToPNG(webpData []byte) ([]byte, error) {
	log.Printf("🔄 Converting WebP to PNG (%d bytes)", len(webpData))

	img, err := webp.Decode(bytes.NewReader(webpData), &decoder.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to decode WebP: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}

	bounds := img.Bounds()
	log.Printf("✅ WebP converted to PNG: %dx%d, %d bytes → %d bytes",
		bounds.Dx(), bounds.Dy(), len(webpData), buf.Len())

	return buf.Bytes(), nil
}

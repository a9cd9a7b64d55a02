package studio

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"veo-studio-server/modules/common/utils"
)

// MediaKind - 업로드 미디어 종류
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// EncodedMedia - 업로드 파일 + base64 페이로드 (생성 후 변경 불가)
type EncodedMedia struct {
	name     string
	mimeType string
	data     []byte
	base64   string
}

func (m *EncodedMedia) Name() string     { return m.name }
func (m *EncodedMedia) MIMEType() string { return m.mimeType }
func (m *EncodedMedia) Base64() string   { return m.base64 }
func (m *EncodedMedia) Size() int        { return len(m.data) }

// Data returns a copy of the original bytes.
func (m *EncodedMedia) Data() []byte {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Kind is empty for anything that is neither an image nor a video.
func (m *EncodedMedia) Kind() MediaKind {
	switch {
	case strings.HasPrefix(m.mimeType, "video/"):
		return KindVideo
	case strings.HasPrefix(m.mimeType, "image/"):
		return KindImage
	}
	return ""
}

// NewVideoMedia wraps bytes we already hold (a previous result) without a
// base64 payload; extend requests use the handle, not the bytes.
func NewVideoMedia(name, mimeType string, data []byte) *EncodedMedia {
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return &EncodedMedia{name: name, mimeType: mimeType, data: buf}
}

// Encode - 파일을 읽어 EncodedMedia 생성
// 읽기 실패 시 재시도 없이 바로 에러 반환 (호출 측 상태는 그대로 유지)
func Encode(ctx context.Context, name, mimeType string, r io.Reader) (*EncodedMedia, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrEmptyMedia)
	}

	mimeType = normalizeMIME(mimeType, data)

	// Veo는 WebP 입력을 받지 않으므로 PNG로 변환
	if mimeType == "image/webp" {
		png, err := utils.ConvertWebPToPNG(data)
		if err != nil {
			return nil, fmt.Errorf("failed to convert %s: %w", name, err)
		}
		data = png
		mimeType = "image/png"
	}

	media := &EncodedMedia{
		name:     name,
		mimeType: mimeType,
		data:     data,
		base64:   utils.ConvertImageToBase64(data),
	}

	log.Printf("📎 [Encoder] %s encoded: %s, %d bytes", name, mimeType, len(data))
	return media, nil
}

// EncodeAs - Encode 후 미디어 종류 검증
func EncodeAs(ctx context.Context, kind MediaKind, name, mimeType string, r io.Reader) (*EncodedMedia, error) {
	media, err := Encode(ctx, name, mimeType, r)
	if err != nil {
		return nil, err
	}
	if media.Kind() != kind {
		return nil, fmt.Errorf("%s is %s, want %s: %w", name, media.mimeType, kind, ErrWrongMediaKind)
	}
	return media, nil
}

func normalizeMIME(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(declared, ";"); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	sniffed := http.DetectContentType(data)
	if i := strings.Index(sniffed, ";"); i >= 0 {
		sniffed = sniffed[:i]
	}
	return sniffed
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"veo-studio-server/modules/common/config"
)

type Client struct {
	baseURL    string
	serviceKey string
	bucket     string
	http       *http.Client
}

// NewClient - Storage 클라이언트 생성
// Supabase 설정이 없으면 nil 반환
func NewClient(cfg *config.Config) *Client {
	if !cfg.HistoryEnabled() {
		return nil
	}
	return &Client{
		baseURL:    cfg.SupabaseURL,
		serviceKey: cfg.SupabaseServiceKey,
		bucket:     cfg.SupabaseVideoBucket,
		http:       &http.Client{Timeout: 120 * time.Second},
	}
}

// UploadVideo - Supabase Storage에 생성된 영상 업로드
// 반환값: 버킷 내 파일 경로
func (c *Client) UploadVideo(ctx context.Context, videoData []byte, sessionID, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	fileName := fmt.Sprintf("generated_%d_%s.mp4", time.Now().UnixMilli(), uuid.New().String()[:8])
	filePath := fmt.Sprintf("generated-videos/session-%s/%s", sessionID, fileName)

	log.Printf("📤 Uploading video to storage: %s (%d bytes)", filePath, len(videoData))

	// Supabase Storage API URL
	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, c.bucket, filePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(videoData))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", mimeType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	log.Printf("✅ Video uploaded successfully: %s", filePath)
	return filePath, nil
}

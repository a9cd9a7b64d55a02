package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/supabase-community/supabase-go"
	"veo-studio-server/modules/common/config"
)

const TableGenerations = "veo_generations"

// Generation status
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Generation - veo_generations 테이블 레코드
type Generation struct {
	GenerationID string  `json:"generation_id"`
	SessionID    string  `json:"session_id"`
	Mode         string  `json:"mode"`
	Model        string  `json:"model"`
	AspectRatio  string  `json:"aspect_ratio"`
	Resolution   string  `json:"resolution"`
	Prompt       string  `json:"prompt"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message,omitempty"`
	VideoPath    *string `json:"video_path,omitempty"`
	CreatedAt    string  `json:"created_at,omitempty"`
	CompletedAt  *string `json:"completed_at,omitempty"`
}

type Client struct {
	supabase *supabase.Client
}

// NewClient - Database 클라이언트 생성
// Supabase 설정이 없으면 nil 반환 (기록 비활성화)
func NewClient(cfg *config.Config) *Client {
	if !cfg.HistoryEnabled() {
		log.Println("⚠️  Supabase not configured, generation history disabled")
		return nil
	}

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ Failed to create Supabase client: %v", err)
		return nil
	}

	return &Client{
		supabase: supabaseClient,
	}
}

// InsertGeneration - 생성 요청 기록
func (c *Client) InsertGeneration(ctx context.Context, g *Generation) error {
	log.Printf("💾 Recording generation %s (session %s, %s)", g.GenerationID, g.SessionID, g.Mode)

	if g.Status == "" {
		g.Status = StatusProcessing
	}

	_, _, err := c.supabase.From(TableGenerations).
		Insert(g, false, "", "", "").
		Execute()

	if err != nil {
		return fmt.Errorf("failed to insert generation: %w", err)
	}
	return nil
}

// CompleteGeneration - 성공 처리 (업로드된 영상 경로 포함)
func (c *Client) CompleteGeneration(ctx context.Context, generationID, videoPath string) error {
	updateData := map[string]interface{}{
		"status":       StatusCompleted,
		"completed_at": "now()",
	}
	if videoPath != "" {
		updateData["video_path"] = videoPath
	}
	return c.updateGeneration(generationID, updateData)
}

// FailGeneration - 실패 처리
func (c *Client) FailGeneration(ctx context.Context, generationID, message string) error {
	return c.updateGeneration(generationID, map[string]interface{}{
		"status":        StatusFailed,
		"error_message": message,
		"completed_at":  "now()",
	})
}

func (c *Client) updateGeneration(generationID string, updateData map[string]interface{}) error {
	log.Printf("📝 Updating generation %s status to: %v", generationID, updateData["status"])

	_, _, err := c.supabase.From(TableGenerations).
		Update(updateData, "", "").
		Eq("generation_id", generationID).
		Execute()

	if err != nil {
		return fmt.Errorf("failed to update generation: %w", err)
	}

	log.Printf("✅ Generation %s updated", generationID)
	return nil
}

// ListGenerations - 세션의 생성 기록 조회 (최신순)
func (c *Client) ListGenerations(ctx context.Context, sessionID string) ([]Generation, error) {
	var generations []Generation

	data, _, err := c.supabase.From(TableGenerations).
		Select("*", "exact", false).
		Eq("session_id", sessionID).
		Execute()

	if err != nil {
		return nil, fmt.Errorf("failed to query generations: %w", err)
	}

	if err := json.Unmarshal(data, &generations); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// created_at 은 RFC3339 문자열이라 사전순 = 시간순
	sort.Slice(generations, func(i, j int) bool {
		return generations[i].CreatedAt > generations[j].CreatedAt
	})

	log.Printf("✅ Fetched %d generations for session %s", len(generations), sessionID)
	return generations, nil
}

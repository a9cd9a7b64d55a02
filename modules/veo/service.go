package veo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"
	"veo-studio-server/modules/common/gemini"
	"veo-studio-server/modules/studio"
)

// KeySource resolves the API key of the caller on every generation.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// videoAPI is the slice of the genai client the generator needs.
type videoAPI interface {
	start(ctx context.Context, model string, src *genai.GenerateVideosSource, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	poll(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
	download(ctx context.Context, video *genai.GeneratedVideo) ([]byte, error)
}

type genaiAPI struct {
	client *genai.Client
	vertex bool
}

func (a genaiAPI) start(ctx context.Context, model string, src *genai.GenerateVideosSource, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return a.client.Models.GenerateVideosFromSource(ctx, model, src, cfg)
}

func (a genaiAPI) poll(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return a.client.Operations.GetVideosOperation(ctx, op, nil)
}

// Files.Download 는 Gemini API 전용. Vertex AI 는 영상을 inline bytes 로 반환
func (a genaiAPI) download(ctx context.Context, video *genai.GeneratedVideo) ([]byte, error) {
	if a.vertex {
		return nil, fmt.Errorf("video %s was not returned inline; Vertex AI results cannot be downloaded through the Files API", video.Video.URI)
	}
	return a.client.Files.Download(ctx, genai.NewDownloadURIFromGeneratedVideo(video), nil)
}

// Service implements studio.Generator on top of the Veo models.
type Service struct {
	config Config
	keys   KeySource
	newAPI func(ctx context.Context, apiKey string) (videoAPI, error)
}

// NewService - Veo 생성기 생성
// keys 는 Vertex AI 백엔드에서는 nil 가능
func NewService(cfg Config, clients *gemini.Factory, keys KeySource) *Service {
	vertex := !clients.UsesAPIKeys()
	return &Service{
		config: cfg,
		keys:   keys,
		newAPI: func(ctx context.Context, apiKey string) (videoAPI, error) {
			client, err := clients.Client(ctx, apiKey)
			if err != nil {
				return nil, err
			}
			return genaiAPI{client: client, vertex: vertex}, nil
		},
	}
}

// Generate runs one generation: start the operation, poll until done and
// download the first produced video.
func (s *Service) Generate(ctx context.Context, req *studio.GenerationRequest) (*studio.Result, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	apiKey := ""
	if s.keys != nil {
		key, err := s.keys.APIKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve API key: %w", err)
		}
		apiKey = key
	}

	api, err := s.newAPI(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	log.Printf("🎬 [Veo] Starting generation: model=%s, mode=%s, %s, %s",
		req.Model, req.Mode, req.AspectRatio, req.Resolution)

	op, err := api.start(ctx, string(req.Model), buildSource(req), buildConfig(req))
	if err != nil {
		log.Printf("❌ [Veo] Failed to start generation: %v", err)
		return nil, err
	}
	log.Printf("⏳ [Veo] Operation started: %s", op.Name)

	op, err = waitForOperation(ctx, api, op, s.config.PollInterval)
	if err != nil {
		return nil, err
	}

	generated, err := firstVideo(op)
	if err != nil {
		log.Printf("❌ [Veo] %v", err)
		return nil, err
	}
	video := generated.Video

	// inline bytes 가 있으면 다운로드 생략
	data := video.VideoBytes
	if len(data) == 0 {
		data, err = api.download(ctx, generated)
		if err != nil {
			return nil, fmt.Errorf("failed to download video: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, errors.New("downloaded video is empty")
	}

	mimeType := video.MIMEType
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	log.Printf("✅ [Veo] Generation completed in %.1fs: %d bytes", time.Since(startTime).Seconds(), len(data))
	return &studio.Result{
		Video:    data,
		MIMEType: mimeType,
		Handle:   &studio.VideoHandle{URI: video.URI, MIMEType: mimeType},
	}, nil
}

// firstVideo - 완료된 operation 에서 첫 번째 영상 추출
func firstVideo(op *genai.GenerateVideosOperation) (*genai.GeneratedVideo, error) {
	if op.Error != nil {
		return nil, operationError(op.Error)
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		msg := "No videos were generated."
		if op.Response != nil && len(op.Response.RAIMediaFilteredReasons) > 0 {
			msg += " " + strings.Join(op.Response.RAIMediaFilteredReasons, " ")
		}
		return nil, errors.New(msg)
	}
	return op.Response.GeneratedVideos[0], nil
}

// operationError keeps the remote message verbatim so it can be classified.
func operationError(e map[string]any) error {
	if msg, ok := e["message"].(string); ok && msg != "" {
		return errors.New(msg)
	}
	return fmt.Errorf("operation failed: %v", e)
}

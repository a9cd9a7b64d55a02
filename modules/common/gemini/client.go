package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"google.golang.org/genai"
	"veo-studio-server/modules/common/config"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ErrNoAPIKey is returned when the Gemini backend is asked for a client without a key.
var ErrNoAPIKey = errors.New("no API key provided")

// Options - genai 클라이언트 생성 옵션
type Options struct {
	Backend         string
	Project         string
	Location        string
	CredentialsJSON string
	CredentialsPath string
}

// OptionsFromConfig - 설정에서 옵션 추출
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Backend:         cfg.GeminiBackend,
		Project:         cfg.GoogleCloudProject,
		Location:        cfg.GoogleCloudLocation,
		CredentialsJSON: cfg.VertexCredentialsJSON,
		CredentialsPath: cfg.VertexCredentialsPath,
	}
}

// Factory hands out genai clients. Gemini API clients are bound to the
// caller's key and created per call; the Vertex AI client is shared.
type Factory struct {
	opts Options

	mu     sync.Mutex
	vertex *genai.Client
}

func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

// UsesAPIKeys reports whether clients need a per-caller API key.
func (f *Factory) UsesAPIKeys() bool {
	return f.opts.Backend != config.BackendVertex
}

// Client - 백엔드에 맞는 genai 클라이언트 반환
func (f *Factory) Client(ctx context.Context, apiKey string) (*genai.Client, error) {
	if !f.UsesAPIKeys() {
		return f.vertexClient(ctx)
	}

	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	// 새 클라이언트 생성
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

func (f *Factory) vertexClient(ctx context.Context) (*genai.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.vertex != nil {
		return f.vertex, nil
	}

	creds, err := vertexCredentials(f.opts)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     f.opts.Project,
		Location:    f.opts.Location,
		Credentials: creds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	log.Printf("✅ [VertexAI] Client initialized for project=%s, location=%s", f.opts.Project, f.opts.Location)
	f.vertex = client
	return client, nil
}

// vertexCredentials - 환경 변수 자동 처리
func vertexCredentials(opts Options) (*auth.Credentials, error) {
	detect := &credentials.DetectOptions{Scopes: []string{cloudPlatformScope}}

	switch {
	case opts.CredentialsJSON != "":
		// 1. VERTEXAI_CREDENTIALS_JSON (Render 배포용)
		log.Println("✅ [VertexAI] Using VERTEXAI_CREDENTIALS_JSON from environment")
		if !json.Valid([]byte(opts.CredentialsJSON)) {
			return nil, fmt.Errorf("invalid JSON credentials in VERTEXAI_CREDENTIALS_JSON")
		}
		detect.CredentialsJSON = []byte(opts.CredentialsJSON)
	case opts.CredentialsPath != "":
		// 2. VERTEXAI_CREDENTIALS_PATH (로컬 테스트용)
		log.Printf("✅ [VertexAI] Using credentials from file: %s", opts.CredentialsPath)
		data, err := os.ReadFile(opts.CredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("invalid JSON credentials in %s", opts.CredentialsPath)
		}
		detect.CredentialsJSON = data
	default:
		// 3. Application Default Credentials (ADC)
		log.Println("⚠️  [VertexAI] No explicit credentials found, using Application Default Credentials")
	}

	creds, err := credentials.DetectDefault(detect)
	if err != nil {
		return nil, fmt.Errorf("failed to detect Vertex AI credentials: %w", err)
	}
	return creds, nil
}

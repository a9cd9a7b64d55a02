package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Server
	Port               string
	SessionIdleTimeout time.Duration

	// Gemini API
	GeminiAPIKey  string
	GeminiBackend string

	// Vertex AI
	GoogleCloudProject    string
	GoogleCloudLocation   string
	VertexCredentialsJSON string
	VertexCredentialsPath string

	// Veo
	VeoPollInterval time.Duration
	VeoTimeout      time.Duration

	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool
	KeyTTL        time.Duration

	// Supabase
	SupabaseURL         string
	SupabaseServiceKey  string
	SupabaseVideoBucket string
}

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	cfg := &Config{
		// Server
		Port:               getEnv("PORT", "8080"),
		SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),

		// Gemini API
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiBackend: getEnv("GEMINI_BACKEND", BackendGemini),

		// Vertex AI
		GoogleCloudProject:    getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:   getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		VertexCredentialsJSON: getEnv("VERTEXAI_CREDENTIALS_JSON", ""),
		VertexCredentialsPath: getEnv("VERTEXAI_CREDENTIALS_PATH", ""),

		// Veo
		VeoPollInterval: getDuration("VEO_POLL_INTERVAL", 10*time.Second),
		VeoTimeout:      getDuration("VEO_TIMEOUT", 10*time.Minute),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getBool("REDIS_USE_TLS", true),
		KeyTTL:        getDuration("KEY_TTL", 24*time.Hour),

		// Supabase
		SupabaseURL:         getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:  getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseVideoBucket: getEnv("SUPABASE_VIDEO_BUCKET", "videos"),
	}

	// 필수 환경변수 검증
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Backend: %s", cfg.GeminiBackend)
	if cfg.RedisHost != "" {
		log.Printf("   Redis: %s (TLS: %v)", cfg.GetRedisAddr(), cfg.RedisUseTLS)
	}
	if cfg.HistoryEnabled() {
		log.Printf("   Supabase: %s (bucket: %s)", cfg.SupabaseURL, cfg.SupabaseVideoBucket)
	}
	log.Printf("   Veo: poll every %s, timeout %s", cfg.VeoPollInterval, cfg.VeoTimeout)

	return cfg, nil
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	switch c.GeminiBackend {
	case BackendGemini:
		// 서버 키가 없으면 세션별 키를 Redis 에 저장해야 함
		if c.GeminiAPIKey == "" && c.RedisHost == "" {
			return fmt.Errorf("GEMINI_API_KEY or REDIS_HOST is required")
		}
	case BackendVertex:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required for the vertex backend")
		}
	default:
		return fmt.Errorf("GEMINI_BACKEND must be %q or %q, got %q", BackendGemini, BackendVertex, c.GeminiBackend)
	}
	if c.VeoPollInterval <= 0 {
		return fmt.Errorf("VEO_POLL_INTERVAL must be positive")
	}
	if (c.SupabaseURL == "") != (c.SupabaseServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}
	return nil
}

// HistoryEnabled - Supabase 기록 사용 여부
func (c *Config) HistoryEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
		log.Printf("⚠️  Invalid %s=%q, using %v", key, value, defaultValue)
	}
	return defaultValue
}

// getDuration accepts Go durations ("90s") or plain seconds ("90").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("⚠️  Invalid %s=%q, using %s", key, value, defaultValue)
	return defaultValue
}

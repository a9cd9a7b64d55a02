package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"veo-studio-server/modules/common/config"
	"veo-studio-server/modules/common/database"
	"veo-studio-server/modules/common/gemini"
	redisutil "veo-studio-server/modules/common/redis"
	"veo-studio-server/modules/common/storage"
	"veo-studio-server/modules/credential"
	"veo-studio-server/modules/session"
	"veo-studio-server/modules/studio"
	"veo-studio-server/modules/veo"

	"github.com/gorilla/mux"
)

const cleanupInterval = 5 * time.Minute

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "veo-studio",
	})
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Redis (없으면 메모리 키 저장소)
	rdb := redisutil.Connect(cfg)
	if rdb != nil {
		defer rdb.Close()
	}
	keys := credential.NewStore(rdb, cfg.KeyTTL)

	factory := gemini.NewFactory(gemini.OptionsFromConfig(cfg))
	veoCfg := veo.LoadConfig(cfg)

	deps := session.Deps{
		NewGenerator: func(ks veo.KeySource) studio.Generator {
			return veo.NewService(veoCfg, factory, ks)
		},
		Keys: keys,
		KeyOptions: credential.Options{
			ServerKey: cfg.GeminiAPIKey,
			Managed:   !factory.UsesAPIKeys(),
		},
		URLs:        studio.NewObjectURLs(),
		IdleTimeout: cfg.SessionIdleTimeout,
	}

	// 생성 기록 (Supabase 설정 시에만)
	if db := database.NewClient(cfg); db != nil {
		deps.History = db
	}
	if st := storage.NewClient(cfg); st != nil {
		deps.Uploader = st
	}

	manager := session.NewManager(deps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 정리 루틴 시작
	manager.StartCleanupRoutine(ctx, cleanupInterval)

	// 라우터 설정
	r := mux.NewRouter()

	// CORS 미들웨어 적용
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	session.NewHandler(manager).RegisterRoutes(r)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	log.Printf("🚀 Veo Studio Server starting on port %s (backend: %s)", cfg.Port, cfg.GeminiBackend)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws?session={id}", cfg.Port)
	log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)
	log.Printf("📊 Metrics: http://localhost:%s/metrics", cfg.Port)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		log.Println("🛑 Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("⚠️  HTTP shutdown error: %v", err)
		}
		manager.Shutdown(shutdownCtx)
	}()

	// 서버 시작
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
	<-done
}

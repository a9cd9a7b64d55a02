package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"veo-studio-server/modules/common/database"
	"veo-studio-server/modules/studio"
)

// HistoryStore records generations. Implemented by database.Client.
type HistoryStore interface {
	InsertGeneration(ctx context.Context, g *database.Generation) error
	CompleteGeneration(ctx context.Context, generationID, videoPath string) error
	FailGeneration(ctx context.Context, generationID, message string) error
	ListGenerations(ctx context.Context, sessionID string) ([]database.Generation, error)
}

// VideoUploader archives result videos. Implemented by storage.Client.
type VideoUploader interface {
	UploadVideo(ctx context.Context, videoData []byte, sessionID, mimeType string) (string, error)
}

const (
	historyTimeout   = 2 * time.Minute
	historyQueueSize = 16
)

// recorder - 세션의 생성 이력을 Supabase 에 기록
// 이벤트는 큐에 넣고 별도 goroutine 에서 순서대로 처리 (스튜디오 흐름을 막지 않음)
// 기록 실패는 로그만 남김
type recorder struct {
	sessionID string
	store     HistoryStore
	uploader  VideoUploader

	mu     sync.Mutex
	closed bool
	events chan studio.Event

	current string
}

func newRecorder(sessionID string, store HistoryStore, uploader VideoUploader) *recorder {
	r := &recorder{
		sessionID: sessionID,
		store:     store,
		uploader:  uploader,
		events:    make(chan studio.Event, historyQueueSize),
	}
	go r.loop()
	return r
}

func (r *recorder) onEvent(ev studio.Event) {
	switch ev.Type {
	case studio.EventSubmitted, studio.EventSucceeded, studio.EventFailed:
	default:
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		log.Printf("⚠️  [History] Queue full for session %s, dropping %s", r.sessionID, ev.Type)
	}
}

func (r *recorder) loop() {
	for ev := range r.events {
		r.handle(ev)
	}
}

// close stops accepting events; queued ones are still written.
func (r *recorder) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
}

func (r *recorder) handle(ev studio.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	switch ev.Type {
	case studio.EventSubmitted:
		r.started(ctx, ev.Request)
	case studio.EventSucceeded:
		r.succeeded(ctx, ev.Result)
	case studio.EventFailed:
		msg := ""
		if ev.Failure != nil {
			msg = ev.Failure.Message
		}
		r.failed(ctx, msg)
	}
}

func (r *recorder) started(ctx context.Context, req *studio.GenerationRequest) {
	if req == nil {
		return
	}
	id := uuid.New().String()
	r.current = id

	err := r.store.InsertGeneration(ctx, &database.Generation{
		GenerationID: id,
		SessionID:    r.sessionID,
		Mode:         string(req.Mode),
		Model:        string(req.Model),
		AspectRatio:  string(req.AspectRatio),
		Resolution:   string(req.Resolution),
		Prompt:       req.Prompt,
		Status:       database.StatusProcessing,
	})
	if err != nil {
		log.Printf("⚠️  [History] %v", err)
	}
}

func (r *recorder) succeeded(ctx context.Context, res *studio.Result) {
	id := r.take()
	if id == "" {
		return
	}

	path := ""
	if r.uploader != nil && res != nil {
		p, err := r.uploader.UploadVideo(ctx, res.Video, r.sessionID, res.MIMEType)
		if err != nil {
			log.Printf("⚠️  [History] Video upload failed: %v", err)
		} else {
			path = p
		}
	}

	if err := r.store.CompleteGeneration(ctx, id, path); err != nil {
		log.Printf("⚠️  [History] %v", err)
	}
}

func (r *recorder) failed(ctx context.Context, message string) {
	id := r.take()
	if id == "" {
		return
	}
	if err := r.store.FailGeneration(ctx, id, message); err != nil {
		log.Printf("⚠️  [History] %v", err)
	}
}

func (r *recorder) take() string {
	id := r.current
	r.current = ""
	return id
}

package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"veo-studio-server/modules/common/database"
	"veo-studio-server/modules/credential"
	"veo-studio-server/modules/studio"
)

const maxUploadSize = 64 << 20

var (
	errSessionNotFound = errors.New("session not found")
	errUnknownSlot     = errors.New("unknown media slot")
)

// Response - 공통 응답
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	State   *State `json:"state,omitempty"`
}

// HistoryResponse - 생성 기록 응답
type HistoryResponse struct {
	Success     bool                  `json:"success"`
	Enabled     bool                  `json:"enabled"`
	Error       string                `json:"error,omitempty"`
	Generations []database.Generation `json:"generations"`
}

// DraftUpdate - PATCH /draft 요청 (보낸 필드만 반영)
type DraftUpdate struct {
	Mode        *studio.GenerationMode `json:"mode,omitempty"`
	Model       *studio.VeoModel       `json:"model,omitempty"`
	AspectRatio *studio.AspectRatio    `json:"aspectRatio,omitempty"`
	Resolution  *studio.Resolution     `json:"resolution,omitempty"`
	Prompt      *string                `json:"prompt,omitempty"`
	IsLooping   *bool                  `json:"isLooping,omitempty"`
}

// KeyRequest - POST /key 요청
type KeyRequest struct {
	APIKey string `json:"apiKey"`
}

type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.ServeWS)
	r.HandleFunc("/metrics", h.Metrics).Methods("GET")
	r.HandleFunc("/admin/cleanup", h.ForceCleanup).Methods("POST")
	r.HandleFunc("/api/videos/{videoId}", h.ServeVideo).Methods("GET", "HEAD")

	api := r.PathPrefix("/api/sessions").Subrouter()
	api.HandleFunc("", h.CreateSession).Methods("POST")
	api.HandleFunc("/{sessionId}", h.GetSession).Methods("GET")
	api.HandleFunc("/{sessionId}", h.DeleteSession).Methods("DELETE")
	api.HandleFunc("/{sessionId}/draft", h.UpdateDraft).Methods("PATCH")
	api.HandleFunc("/{sessionId}/draft/media/{slot}", h.UploadMedia).Methods("POST")
	api.HandleFunc("/{sessionId}/draft/media/{slot}", h.RemoveMedia).Methods("DELETE")
	api.HandleFunc("/{sessionId}/generate", h.Generate).Methods("POST")
	api.HandleFunc("/{sessionId}/retry", h.Retry).Methods("POST")
	api.HandleFunc("/{sessionId}/new", h.NewVideo).Methods("POST")
	api.HandleFunc("/{sessionId}/try-again", h.TryAgain).Methods("POST")
	api.HandleFunc("/{sessionId}/extend", h.Extend).Methods("POST")
	api.HandleFunc("/{sessionId}/key", h.SelectKey).Methods("POST")
	api.HandleFunc("/{sessionId}/key-dialog/continue", h.ContinueKeyDialog).Methods("POST")
	api.HandleFunc("/{sessionId}/history", h.History).Methods("GET")

	log.Println("✅ Studio routes registered: /api/sessions, /api/videos, /ws, /metrics, /admin/cleanup")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("❌ Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, Response{Success: false, Error: err.Error()})
}

func writeState(w http.ResponseWriter, status int, s *Session) {
	writeJSON(w, status, Response{Success: true, State: s.State()})
}

// statusFor - 에러 → HTTP 상태 코드
func statusFor(err error) int {
	switch {
	case errors.Is(err, errSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, studio.ErrKeySelectionRequired):
		return http.StatusPreconditionRequired
	case errors.Is(err, studio.ErrBusy),
		errors.Is(err, studio.ErrNothingToRetry),
		errors.Is(err, studio.ErrCannotExtend),
		errors.Is(err, studio.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, studio.ErrNotReady),
		errors.Is(err, studio.ErrFieldLocked),
		errors.Is(err, studio.ErrTooManyReferences),
		errors.Is(err, studio.ErrInvalidValue),
		errors.Is(err, studio.ErrEmptyMedia),
		errors.Is(err, studio.ErrWrongMediaKind),
		errors.Is(err, studio.ErrMediaNotAllowed),
		errors.Is(err, credential.ErrEmptyKey),
		errors.Is(err, errUnknownSlot):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeResult - 에러가 있으면 에러 + 현재 상태, 없으면 현재 상태
func writeResult(w http.ResponseWriter, s *Session, err error, okStatus int) {
	if err != nil {
		writeJSON(w, statusFor(err), Response{Success: false, Error: err.Error(), State: s.State()})
		return
	}
	writeState(w, okStatus, s)
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	s, ok := h.manager.Get(mux.Vars(r)["sessionId"])
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound)
	}
	return s, ok
}

// CreateSession - POST /api/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.manager.Create(r.Context())
	writeState(w, http.StatusCreated, s)
}

// GetSession - GET /api/sessions/{sessionId}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeState(w, http.StatusOK, s)
}

// DeleteSession - DELETE /api/sessions/{sessionId}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Close(r.Context(), mux.Vars(r)["sessionId"]) {
		writeError(w, http.StatusNotFound, errSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true})
}

// UpdateDraft - PATCH /api/sessions/{sessionId}/draft
// mode 를 먼저 적용 (모드 전환 시 미디어 초기화 + 잠금 값 설정)
func (h *Handler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req DraftUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	form := s.form
	err := func() error {
		if req.Mode != nil {
			// Extend Video 는 Extend 액션으로만 진입
			if !req.Mode.Selectable() {
				return fmt.Errorf("mode %q: %w", *req.Mode, studio.ErrInvalidValue)
			}
			if err := form.SetMode(*req.Mode); err != nil {
				return err
			}
		}
		if req.Model != nil {
			if err := form.SetModel(*req.Model); err != nil {
				return err
			}
		}
		if req.AspectRatio != nil {
			if err := form.SetAspectRatio(*req.AspectRatio); err != nil {
				return err
			}
		}
		if req.Resolution != nil {
			if err := form.SetResolution(*req.Resolution); err != nil {
				return err
			}
		}
		if req.Prompt != nil {
			form.SetPrompt(*req.Prompt)
		}
		if req.IsLooping != nil {
			if err := form.SetLooping(*req.IsLooping); err != nil {
				return err
			}
		}
		return nil
	}()

	s.PushState("draft_updated")
	writeResult(w, s, err, http.StatusOK)
}

// UploadMedia - POST /api/sessions/{sessionId}/draft/media/{slot}
// multipart 필드명: file
func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	slot := mux.Vars(r)["slot"]

	switch slot {
	case "start", "end", "reference", "style":
	case "video":
		// extend 입력 영상은 이전 생성 결과에서만 채워짐
		writeResult(w, s, fmt.Errorf("input video: %w", studio.ErrMediaNotAllowed), http.StatusOK)
		return
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("%s: %w", slot, errUnknownSlot))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err))
		return
	}
	defer file.Close()

	// 인코딩 실패 시 draft 는 그대로 유지
	media, err := studio.EncodeAs(r.Context(), studio.KindImage, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		log.Printf("❌ [Upload] %s/%s: %v", s.id, slot, err)
		writeResult(w, s, err, http.StatusOK)
		return
	}

	switch slot {
	case "start":
		err = s.form.SetStartFrame(media)
	case "end":
		err = s.form.SetEndFrame(media)
	case "reference":
		err = s.form.AddReferenceImage(media)
	case "style":
		err = s.form.SetStyleImage(media)
	}

	s.PushState("draft_updated")
	writeResult(w, s, err, http.StatusOK)
}

// RemoveMedia - DELETE /api/sessions/{sessionId}/draft/media/{slot}
func (h *Handler) RemoveMedia(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var err error
	switch slot := mux.Vars(r)["slot"]; slot {
	case "start":
		s.form.RemoveStartFrame()
	case "end":
		s.form.RemoveEndFrame()
	case "reference":
		index, convErr := strconv.Atoi(r.URL.Query().Get("index"))
		if convErr != nil {
			err = fmt.Errorf("index: %w", studio.ErrInvalidValue)
			break
		}
		err = s.form.RemoveReferenceImage(index)
	case "style":
		s.form.RemoveStyleImage()
	case "video":
		s.form.RemoveInputVideo()
	default:
		err = fmt.Errorf("%s: %w", slot, errUnknownSlot)
	}

	s.PushState("draft_updated")
	writeResult(w, s, err, http.StatusOK)
}

// Generate - POST /api/sessions/{sessionId}/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	req, err := s.form.Submit()
	if err == nil {
		err = s.orch.Submit(r.Context(), req)
	}
	writeResult(w, s, err, http.StatusAccepted)
}

// Retry - POST /api/sessions/{sessionId}/retry
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeResult(w, s, s.orch.Retry(r.Context()), http.StatusAccepted)
}

// NewVideo - POST /api/sessions/{sessionId}/new
func (h *Handler) NewVideo(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeResult(w, s, s.orch.NewVideo(), http.StatusOK)
}

// TryAgain - POST /api/sessions/{sessionId}/try-again
func (h *Handler) TryAgain(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeResult(w, s, s.orch.TryAgain(), http.StatusOK)
}

// Extend - POST /api/sessions/{sessionId}/extend
func (h *Handler) Extend(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeResult(w, s, s.orch.Extend(), http.StatusOK)
}

// SelectKey - POST /api/sessions/{sessionId}/key
func (h *Handler) SelectKey(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req KeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	err := s.keys.SelectKey(r.Context(), req.APIKey)
	if err == nil {
		s.PushState("key_selected")
	}
	writeResult(w, s, err, http.StatusOK)
}

// ContinueKeyDialog - POST /api/sessions/{sessionId}/key-dialog/continue
func (h *Handler) ContinueKeyDialog(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeResult(w, s, s.orch.ContinueKeySelection(r.Context()), http.StatusOK)
}

// History - GET /api/sessions/{sessionId}/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	store := h.manager.History()
	if store == nil {
		writeJSON(w, http.StatusOK, HistoryResponse{Success: true, Generations: []database.Generation{}})
		return
	}

	gens, err := store.ListGenerations(r.Context(), s.id)
	if err != nil {
		log.Printf("❌ [History] %v", err)
		writeJSON(w, http.StatusBadGateway, HistoryResponse{Success: false, Enabled: true, Error: err.Error(), Generations: []database.Generation{}})
		return
	}
	if gens == nil {
		gens = []database.Generation{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Success: true, Enabled: true, Generations: gens})
}

// ServeVideo - GET /api/videos/{videoId}
// Range 요청 지원 (video 태그 탐색용)
func (h *Handler) ServeVideo(w http.ResponseWriter, r *http.Request) {
	data, mimeType, ok := h.manager.URLs().Lookup(mux.Vars(r)["videoId"])
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("video not found"))
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "video.mp4", time.Time{}, bytes.NewReader(data))
}

// Metrics - GET /metrics
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, sessions := h.manager.Metrics()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"server": map[string]interface{}{
			"uptime":           time.Since(metrics.StartTime).String(),
			"startTime":        metrics.StartTime,
			"totalSessions":    metrics.TotalSessions,
			"activeSessions":   metrics.ActiveSessions,
			"totalConnections": metrics.TotalConnections,
			"liveVideos":       h.manager.URLs().Live(),
		},
		"sessions": sessions,
	})
}

// ForceCleanup - POST /admin/cleanup (관리자용 즉시 정리)
func (h *Handler) ForceCleanup(w http.ResponseWriter, r *http.Request) {
	cleaned := h.manager.CleanupIdle(r.Context(), time.Now())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "Cleanup completed",
		"cleaned": cleaned,
	})
}

package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"veo-studio-server/modules/credential"
	"veo-studio-server/modules/studio"
	"veo-studio-server/modules/veo"
)

// Deps - 세션 생성에 필요한 의존성
type Deps struct {
	// NewGenerator builds the generator of one session from its key source.
	NewGenerator func(keys veo.KeySource) studio.Generator
	Keys         *credential.Store
	KeyOptions   credential.Options
	URLs         *studio.ObjectURLs
	// History and Uploader are optional.
	History     HistoryStore
	Uploader    VideoUploader
	IdleTimeout time.Duration
}

// 서버 메트릭
type ServerMetrics struct {
	TotalSessions    int       `json:"totalSessions"`
	ActiveSessions   int       `json:"activeSessions"`
	TotalConnections int       `json:"totalConnections"`
	StartTime        time.Time `json:"startTime"`
}

// SessionInfo - 메트릭용 세션 요약
type SessionInfo struct {
	SessionID    string          `json:"sessionId"`
	State        studio.AppState `json:"state"`
	ClientCount  int             `json:"clientCount"`
	CreatedAt    time.Time       `json:"createdAt"`
	LastActivity time.Time       `json:"lastActivity"`
	Age          string          `json:"age"`
	Inactive     string          `json:"inactive"`
}

// 세션 매니저
type Manager struct {
	deps     Deps
	sessions map[string]*Session
	mutex    sync.RWMutex

	metrics      ServerMetrics
	metricsMutex sync.RWMutex
}

func NewManager(deps Deps) *Manager {
	if deps.URLs == nil {
		deps.URLs = studio.NewObjectURLs()
	}
	if deps.Keys == nil {
		deps.Keys = credential.NewStore(nil, 0)
	}
	return &Manager{
		deps:     deps,
		sessions: make(map[string]*Session),
		metrics:  ServerMetrics{StartTime: time.Now()},
	}
}

// URLs - 결과 영상 레지스트리
func (m *Manager) URLs() *studio.ObjectURLs {
	return m.deps.URLs
}

// History - 기록 저장소 (없으면 nil)
func (m *Manager) History() HistoryStore {
	return m.deps.History
}

// Create - 새 세션 생성 후 초기 키 확인
func (m *Manager) Create(ctx context.Context) *Session {
	now := time.Now()
	s := &Session{
		id:           uuid.New().String(),
		clients:      make(map[*Client]bool),
		createdAt:    now,
		lastActivity: now,
	}

	opts := m.deps.KeyOptions
	opts.Open = s.openKeySelector
	s.keys = credential.NewSelector(s.id, m.deps.Keys, opts)
	s.form = studio.NewForm()
	s.orch = studio.NewOrchestrator(m.deps.NewGenerator(s.keys), s.keys, s.form, m.deps.URLs)
	s.orch.OnEvent(s.onEvent)
	if m.deps.History != nil {
		s.history = newRecorder(s.id, m.deps.History, m.deps.Uploader)
		s.orch.OnEvent(s.history.onEvent)
	}

	m.mutex.Lock()
	m.sessions[s.id] = s
	m.mutex.Unlock()

	// 메트릭 업데이트
	m.metricsMutex.Lock()
	m.metrics.TotalSessions++
	m.metrics.ActiveSessions++
	total, active := m.metrics.TotalSessions, m.metrics.ActiveSessions
	m.metricsMutex.Unlock()

	log.Printf("✅ Created new session: %s (Total: %d, Active: %d)", s.id, total, active)

	s.orch.CheckInitialKey(ctx)
	return s
}

// Get - 세션 조회 (활동 시간 갱신)
func (m *Manager) Get(id string) (*Session, bool) {
	m.mutex.RLock()
	s, ok := m.sessions[id]
	m.mutex.RUnlock()
	if ok {
		s.touch()
	}
	return s, ok
}

// Close - 세션 종료
func (m *Manager) Close(ctx context.Context, id string) bool {
	m.mutex.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mutex.Unlock()

	if !ok {
		return false
	}
	m.closeSession(ctx, s, "closed")
	return true
}

func (m *Manager) closeSession(ctx context.Context, s *Session, reason string) {
	s.close(ctx)

	m.metricsMutex.Lock()
	m.metrics.ActiveSessions--
	active := m.metrics.ActiveSessions
	m.metricsMutex.Unlock()

	log.Printf("🧹 Session %s %s (Age: %v, Active: %d)", s.id, reason, time.Since(s.createdAt).Round(time.Second), active)
}

// CleanupIdle - 비활성 세션 정리
// 연결된 클라이언트가 없고 생성 중이 아닌 세션만 대상
func (m *Manager) CleanupIdle(ctx context.Context, now time.Time) int {
	if m.deps.IdleTimeout <= 0 {
		return 0
	}

	var expired []*Session
	m.mutex.Lock()
	for id, s := range m.sessions {
		s.mutex.RLock()
		idle := now.Sub(s.lastActivity) > m.deps.IdleTimeout && len(s.clients) == 0
		s.mutex.RUnlock()

		if idle && s.orch.Snapshot().State != studio.StateLoading {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.mutex.Unlock()

	for _, s := range expired {
		m.closeSession(ctx, s, "expired")
	}
	if len(expired) > 0 {
		log.Printf("🗑️  Cleaned up %d idle sessions", len(expired))
	}
	return len(expired)
}

// StartCleanupRoutine - 정기적 정리 작업 시작
func (m *Manager) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.CleanupIdle(ctx, now)
			}
		}
	}()

	log.Printf("🔄 Started session cleanup routine (every %s, idle after %s)", interval, m.deps.IdleTimeout)
}

// Shutdown - 모든 세션 종료
func (m *Manager) Shutdown(ctx context.Context) {
	m.mutex.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mutex.Unlock()

	for _, s := range sessions {
		m.closeSession(ctx, s, "shut down")
	}
}

func (m *Manager) countConnection() {
	m.metricsMutex.Lock()
	m.metrics.TotalConnections++
	m.metricsMutex.Unlock()
}

// Metrics - 서버 메트릭 + 세션 목록
func (m *Manager) Metrics() (ServerMetrics, []SessionInfo) {
	m.metricsMutex.RLock()
	metrics := m.metrics
	m.metricsMutex.RUnlock()

	m.mutex.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mutex.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		s.mutex.RLock()
		info := SessionInfo{
			SessionID:    s.id,
			ClientCount:  len(s.clients),
			CreatedAt:    s.createdAt,
			LastActivity: s.lastActivity,
			Age:          time.Since(s.createdAt).String(),
			Inactive:     time.Since(s.lastActivity).String(),
		}
		s.mutex.RUnlock()
		info.State = s.orch.Snapshot().State
		infos = append(infos, info)
	}
	return metrics, infos
}

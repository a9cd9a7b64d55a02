package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"veo-studio-server/modules/credential"
	"veo-studio-server/modules/studio"
)

// 메시지 타입
const (
	MessageState           = "state"
	MessageOpenKeySelector = "open_key_selector"
	MessageSessionClosed   = "session_closed"
)

// Message is pushed to every WebSocket client of a session.
type Message struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Event     string `json:"event,omitempty"`
	State     *State `json:"state,omitempty"`
}

// MediaView - 업로드된 미디어 요약 (바이트 제외)
type MediaView struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Size     int    `json:"size"`
}

// DraftView is the JSON projection of the draft form.
type DraftView struct {
	Prompt          string                `json:"prompt"`
	Model           studio.VeoModel       `json:"model"`
	AspectRatio     studio.AspectRatio    `json:"aspectRatio"`
	Resolution      studio.Resolution     `json:"resolution"`
	Mode            studio.GenerationMode `json:"mode"`
	IsLooping       bool                  `json:"isLooping"`
	StartFrame      *MediaView            `json:"startFrame,omitempty"`
	EndFrame        *MediaView            `json:"endFrame,omitempty"`
	ReferenceImages []MediaView           `json:"referenceImages"`
	StyleImage      *MediaView            `json:"styleImage,omitempty"`
	InputVideo      *MediaView            `json:"inputVideo,omitempty"`
	HasVideoHandle  bool                  `json:"hasVideoHandle"`
}

// State is what GET /api/sessions/{id} returns and what WebSocket pushes.
type State struct {
	SessionID string           `json:"sessionId"`
	Studio    studio.Snapshot  `json:"studio"`
	View      studio.View      `json:"view"`
	Draft     DraftView        `json:"draft"`
	Readiness studio.Readiness `json:"readiness"`
	Locks     studio.Locks     `json:"locks"`
}

// Session - 스튜디오 세션 (브라우저 탭 하나)
type Session struct {
	id   string
	form *studio.Form
	orch *studio.Orchestrator
	keys *credential.Selector
	// history is nil when generations are not archived.
	history *recorder

	clients      map[*Client]bool
	mutex        sync.RWMutex
	createdAt    time.Time
	lastActivity time.Time
	closed       bool
}

func (s *Session) ID() string                         { return s.id }
func (s *Session) Form() *studio.Form                 { return s.form }
func (s *Session) Orchestrator() *studio.Orchestrator { return s.orch }
func (s *Session) Keys() *credential.Selector         { return s.keys }

func (s *Session) touch() {
	s.mutex.Lock()
	s.lastActivity = time.Now()
	s.mutex.Unlock()
}

// State - 현재 세션 상태 조립
func (s *Session) State() *State {
	snap := s.orch.Snapshot()
	return &State{
		SessionID: s.id,
		Studio:    snap,
		View:      studio.Present(snap),
		Draft:     draftView(s.form.Draft()),
		Readiness: s.form.Readiness(),
		Locks:     s.form.Locks(),
	}
}

func draftView(d studio.GenerationRequest) DraftView {
	v := DraftView{
		Prompt:          d.Prompt,
		Model:           d.Model,
		AspectRatio:     d.AspectRatio,
		Resolution:      d.Resolution,
		Mode:            d.Mode,
		IsLooping:       d.IsLooping,
		StartFrame:      mediaView(d.StartFrame),
		EndFrame:        mediaView(d.EndFrame),
		ReferenceImages: make([]MediaView, 0, len(d.ReferenceImages)),
		StyleImage:      mediaView(d.StyleImage),
		InputVideo:      mediaView(d.InputVideo),
		HasVideoHandle:  d.InputVideoObject != nil,
	}
	for _, ref := range d.ReferenceImages {
		v.ReferenceImages = append(v.ReferenceImages, *mediaView(ref))
	}
	return v
}

func mediaView(m *studio.EncodedMedia) *MediaView {
	if m == nil {
		return nil
	}
	return &MediaView{Name: m.Name(), MIMEType: m.MIMEType(), Size: m.Size()}
}

// PushState - 현재 상태를 모든 클라이언트에게 전송
func (s *Session) PushState(event string) {
	s.broadcastToAll(Message{Type: MessageState, SessionID: s.id, Event: event, State: s.State()})
}

func (s *Session) onEvent(ev studio.Event) {
	s.broadcastToAll(Message{
		Type:      MessageState,
		SessionID: s.id,
		Event:     string(ev.Type),
		State:     s.State(),
	})
}

// openKeySelector asks connected front ends to show their key picker.
func (s *Session) openKeySelector(ctx context.Context) error {
	s.broadcastToAll(Message{Type: MessageOpenKeySelector, SessionID: s.id})
	return nil
}

// 클라이언트를 세션에 추가
func (s *Session) addClient(client *Client) bool {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return false
	}
	s.clients[client] = true
	s.lastActivity = time.Now()
	clientCount := len(s.clients)
	s.mutex.Unlock()

	log.Printf("👤 Client joined session %s (Clients: %d)", s.id, clientCount)
	return true
}

// 클라이언트를 세션에서 제거
func (s *Session) removeClient(client *Client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, exists := s.clients[client]; exists {
		close(client.send)
		delete(s.clients, client)
		s.lastActivity = time.Now()
		log.Printf("👋 Client left session %s (Remaining: %d)", s.id, len(s.clients))
	}
}

func (s *Session) clientCount() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.clients)
}

// 모든 클라이언트에게 메시지 브로드캐스트
// 버퍼가 가득 찬 클라이언트는 연결 해제
func (s *Session) broadcastToAll(message Message) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for client := range s.clients {
		select {
		case client.send <- messageBytes:
		default:
			close(client.send)
			delete(s.clients, client)
			log.Printf("⚠️  Dropped slow client from session %s", s.id)
		}
	}
}

// close - 진행 중인 생성 취소, URL 해제, 클라이언트 연결 종료
func (s *Session) close(ctx context.Context) {
	s.broadcastToAll(Message{Type: MessageSessionClosed, SessionID: s.id})

	s.orch.Close()
	if s.history != nil {
		s.history.close()
	}
	if err := s.keys.Forget(ctx); err != nil {
		log.Printf("⚠️  Failed to forget key for session %s: %v", s.id, err)
	}

	s.mutex.Lock()
	s.closed = true
	for client := range s.clients {
		close(client.send)
		delete(s.clients, client)
	}
	s.mutex.Unlock()
}

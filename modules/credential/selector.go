package credential

import (
	"context"
	"errors"
	"log"
	"strings"
)

// ErrEmptyKey is returned when an empty key is selected.
var ErrEmptyKey = errors.New("API key is empty")

// Selector is one session's view of the key capability. It reports whether
// a key is available, asks the front end to open its key picker and resolves
// the key used for generation.
type Selector struct {
	sessionID string
	store     *Store
	serverKey string
	managed   bool
	open      func(ctx context.Context) error
}

// Options - Selector 생성 옵션
type Options struct {
	// ServerKey is used when the session has not selected its own key.
	ServerKey string
	// Managed means the backend authenticates without API keys (Vertex AI).
	Managed bool
	// Open asks the front end to show its key picker.
	Open func(ctx context.Context) error
}

func NewSelector(sessionID string, store *Store, opts Options) *Selector {
	return &Selector{
		sessionID: sessionID,
		store:     store,
		serverKey: opts.ServerKey,
		managed:   opts.Managed,
		open:      opts.Open,
	}
}

func (s *Selector) HasSelectedKey(ctx context.Context) (bool, error) {
	if s.managed || s.serverKey != "" {
		return true, nil
	}
	key, err := s.store.Get(ctx, s.sessionID)
	if err != nil {
		return false, err
	}
	return key != "", nil
}

// OpenSelectKey only signals the front end; the key arrives via SelectKey.
func (s *Selector) OpenSelectKey(ctx context.Context) error {
	log.Printf("🔑 [Credential] Asking session %s to select an API key", s.sessionID)
	if s.open == nil {
		return nil
	}
	return s.open(ctx)
}

// SelectKey stores the key the user picked for this session.
func (s *Selector) SelectKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.store.Set(ctx, s.sessionID, key); err != nil {
		return err
	}
	log.Printf("✅ [Credential] Key selected for session %s", s.sessionID)
	return nil
}

// APIKey prefers the session's own key over the server key.
func (s *Selector) APIKey(ctx context.Context) (string, error) {
	if s.managed {
		return "", nil
	}
	key, err := s.store.Get(ctx, s.sessionID)
	if err != nil {
		return "", err
	}
	if key != "" {
		return key, nil
	}
	return s.serverKey, nil
}

// Forget drops the session's stored key.
func (s *Selector) Forget(ctx context.Context) error {
	return s.store.Delete(ctx, s.sessionID)
}

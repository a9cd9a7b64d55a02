package studio

import (
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// VideoURLPrefix is where registered blobs are served.
const VideoURLPrefix = "/api/videos/"

type blob struct {
	data     []byte
	mimeType string
}

// ObjectURLs - 생성된 영상 blob 을 URL 로 노출하는 레지스트리
// 브라우저의 createObjectURL / revokeObjectURL 과 같은 역할
type ObjectURLs struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

func NewObjectURLs() *ObjectURLs {
	return &ObjectURLs{blobs: make(map[string]blob)}
}

// Create registers data and returns the URL that serves it.
func (o *ObjectURLs) Create(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	id := uuid.New().String()

	o.mu.Lock()
	o.blobs[id] = blob{data: data, mimeType: mimeType}
	live := len(o.blobs)
	o.mu.Unlock()

	log.Printf("🎞️  [ObjectURL] Created %s (%d bytes, live: %d)", id, len(data), live)
	return VideoURLPrefix + id
}

// Revoke releases the blob behind url. Unknown URLs are ignored.
func (o *ObjectURLs) Revoke(url string) {
	if url == "" {
		return
	}
	id := strings.TrimPrefix(url, VideoURLPrefix)

	o.mu.Lock()
	_, ok := o.blobs[id]
	delete(o.blobs, id)
	live := len(o.blobs)
	o.mu.Unlock()

	if ok {
		log.Printf("🗑️  [ObjectURL] Revoked %s (live: %d)", id, live)
	}
}

// Lookup returns the blob registered under id.
func (o *ObjectURLs) Lookup(id string) ([]byte, string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	b, ok := o.blobs[id]
	return b.data, b.mimeType, ok
}

// Live is the number of blobs not yet revoked.
func (o *ObjectURLs) Live() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.blobs)
}

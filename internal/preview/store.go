package preview

import (
	"bytes"
	"errors"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dialoguerec/internal/domain"
)

// Prefix is the asset path under which preview handles are served.
const Prefix = "/preview/"

type entry struct {
	data     []byte
	mimeType string
	created  time.Time
}

// Store keeps artifacts addressable for local playback until released.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Acquire registers the artifact and returns its playback URL.
func (s *Store) Acquire(artifact domain.Artifact) (string, error) {
	if len(artifact.Bytes) == 0 {
		return "", errors.New("cannot preview an empty recording")
	}
	id := uuid.NewString()
	handle := Prefix + id + extensionFor(artifact.MIMEType)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[handle] = entry{data: artifact.Bytes, mimeType: artifact.MIMEType, created: time.Now()}
	return handle, nil
}

// Release revokes a handle. Unknown handles are ignored.
func (s *Store) Release(handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, handle)
}

// Len reports how many handles are live.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// ServeHTTP streams a live handle with range support for the audio element.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, Prefix) {
		http.NotFound(w, r)
		return
	}
	s.mu.RLock()
	e, ok := s.entries[r.URL.Path]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	if e.mimeType != "" {
		w.Header().Set("Content-Type", e.mimeType)
	}
	http.ServeContent(w, r, path.Base(r.URL.Path), e.created, bytes.NewReader(e.data))
}

func extensionFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "audio/webm"), strings.HasPrefix(mimeType, "video/webm"):
		return ".webm"
	case strings.HasPrefix(mimeType, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(mimeType, "audio/wav"):
		return ".wav"
	default:
		return ""
	}
}

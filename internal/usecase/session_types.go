package usecase

import (
	"sync"

	"dialoguerec/internal/ports"
)

type activeSession struct {
	id     string
	title  string
	device ports.AudioSession
	timer  *sessionTimer

	chunkMu sync.Mutex
	chunks  [][]byte
	sealed  bool
}

func (s *activeSession) append(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	s.chunkMu.Lock()
	defer s.chunkMu.Unlock()
	if s.sealed {
		return false
	}
	s.chunks = append(s.chunks, append([]byte(nil), data...))
	return true
}

// seal freezes the chunk list; later deliveries are dropped.
func (s *activeSession) seal() [][]byte {
	s.chunkMu.Lock()
	defer s.chunkMu.Unlock()
	s.sealed = true
	return s.chunks
}

func (s *activeSession) chunkCount() int {
	s.chunkMu.Lock()
	defer s.chunkMu.Unlock()
	return len(s.chunks)
}

// sessionSink binds device callbacks to the session that opened the device.
type sessionSink struct {
	controller *CaptureController
	session    *activeSession
}

func (s sessionSink) Chunk(data []byte) {
	s.session.append(data)
}

func (s sessionSink) Fault(err error) {
	// The device goroutine is blocked in this call; Close waits for it.
	go s.controller.fail(s.session, err)
}

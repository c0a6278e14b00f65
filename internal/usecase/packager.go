package usecase

import (
	"time"

	"dialoguerec/internal/domain"
	"dialoguerec/internal/ports"
)

// RecordingMIMEType is the container/codec tag of captured audio.
const RecordingMIMEType = "audio/webm"

// packager turns captured chunks into an Artifact and owns its preview handle.
type packager struct {
	previews ports.PreviewStore
	now      func() time.Time
	handle   string
}

func newPackager(previews ports.PreviewStore, now func() time.Time) *packager {
	if now == nil {
		now = time.Now
	}
	return &packager{previews: previews, now: now}
}

// Package concatenates chunks in order. Equal input yields identical bytes.
func Package(chunks [][]byte) domain.Artifact {
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	payload := make([]byte, 0, total)
	for _, chunk := range chunks {
		payload = append(payload, chunk...)
	}
	return domain.Artifact{
		Bytes:     payload,
		MIMEType:  RecordingMIMEType,
		SizeBytes: len(payload),
	}
}

// Finalize packages chunks and attaches a fresh preview handle, releasing the
// previous one first.
func (p *packager) Finalize(chunks [][]byte) (domain.Artifact, error) {
	p.Release()

	artifact := Package(chunks)
	artifact.CreatedAt = p.now()
	if p.previews == nil {
		return artifact, nil
	}
	handle, err := p.previews.Acquire(artifact)
	if err != nil {
		return artifact, err
	}
	p.handle = handle
	artifact.PreviewHandle = handle
	return artifact, nil
}

// Release revokes the current preview handle, if any.
func (p *packager) Release() {
	if p.handle == "" {
		return
	}
	if p.previews != nil {
		p.previews.Release(p.handle)
	}
	p.handle = ""
}

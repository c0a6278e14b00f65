package ports

import (
	"context"
	"io"
	"net/http"
	"time"

	"dialoguerec/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate    int
	Channels      int
	InputFormat   string
	InputDevice   string
	ChunkInterval time.Duration
}

// DeviceState mirrors the recorder state reported by the device session.
type DeviceState string

const (
	DeviceStateRecording DeviceState = "recording"
	DeviceStatePaused    DeviceState = "paused"
	DeviceStateClosed    DeviceState = "closed"
)

// ChunkSink receives device output. Calls are made from a single goroutine
// in capture order.
type ChunkSink interface {
	Chunk(data []byte)
	Fault(err error)
}

// AudioSession is a live capture session. Close returns only after the last
// chunk has been delivered; no callback fires after Close returns. Audio
// captured between Pause and Resume is discarded.
type AudioSession interface {
	State() DeviceState
	Pause() error
	Resume() error
	Close() error
}

// AudioCapture opens microphone capture sessions.
type AudioCapture interface {
	Open(ctx context.Context, cfg AudioConfig, sink ChunkSink) (AudioSession, error)
}

// Ticker delivers timer ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates tickers; replaced in tests.
type TickerFactory func(interval time.Duration) Ticker

// ProgressFunc receives upload progress in percent.
type ProgressFunc func(percent int)

// RecordingSubmission is a finalized recording with its metadata.
type RecordingSubmission struct {
	Title      string
	TemplateID string
	Artifact   domain.Artifact
}

// RecordingUploader sends recordings to the dialogue service.
type RecordingUploader interface {
	SubmitRecording(ctx context.Context, sub RecordingSubmission, progress ProgressFunc) (domain.Dialogue, error)
}

// FileSubmission is an audio/video file streamed as multipart form data.
type FileSubmission struct {
	Title      string
	TemplateID string
	FileName   string
	MIMEType   string
	Size       int64
	Body       io.Reader
}

// TranscriptSubmission is pasted dialogue text.
type TranscriptSubmission struct {
	Title      string
	TemplateID string
	Content    string
	Language   domain.Language
}

// DialogueUploader sends file and transcript submissions.
type DialogueUploader interface {
	UploadFile(ctx context.Context, sub FileSubmission, progress ProgressFunc) (domain.Dialogue, error)
	SubmitTranscript(ctx context.Context, sub TranscriptSubmission, progress ProgressFunc) (domain.Dialogue, error)
}

// PreviewStore hands out revocable local playback handles.
type PreviewStore interface {
	Acquire(artifact domain.Artifact) (string, error)
	Release(handle string)
	http.Handler
}

// EventSink emits backend state/events to the UI.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	Elapsed(seconds int, formatted string)
	UploadProgress(percent int)
	SessionError(code domain.ErrorCode, detail string)
}

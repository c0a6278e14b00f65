package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dialoguerec/internal/domain"
	"dialoguerec/internal/ports"
	"dialoguerec/internal/validation"
)

var (
	ErrNoActiveSession = errors.New("no active recording session")
	ErrSessionActive   = errors.New("a recording session already exists; reset it first")
	ErrNoArtifact      = errors.New("no recording to upload")
)

// Config controls recording behavior.
type Config struct {
	Audio        ports.AudioConfig
	TickInterval time.Duration
	Ceiling      int
	NewTicker    ports.TickerFactory
	Now          func() time.Time
}

// UploadOptions carries submission metadata. A blank Title falls back to the
// title the recording was started with.
type UploadOptions struct {
	Title      string
	TemplateID string
}

// CaptureController owns the single recording session and its upload job.
type CaptureController struct {
	audio    ports.AudioCapture
	uploader ports.RecordingUploader
	events   ports.EventSink
	packager *packager
	logger   *zap.Logger
	cfg      Config

	// opMu serializes transitions; mu guards the fields read by Status.
	opMu sync.Mutex

	mu           sync.Mutex
	state        domain.SessionState
	current      *activeSession
	artifact     *domain.Artifact
	errorMessage string
	uploading    bool
	uploadStatus domain.UploadStatus
	progress     int
}

func NewCaptureController(
	audio ports.AudioCapture,
	uploader ports.RecordingUploader,
	previews ports.PreviewStore,
	events ports.EventSink,
	logger *zap.Logger,
	cfg Config,
) *CaptureController {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	if cfg.Audio.ChunkInterval <= 0 {
		cfg.Audio.ChunkInterval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaptureController{
		audio:        audio,
		uploader:     uploader,
		events:       events,
		packager:     newPackager(previews, cfg.Now),
		logger:       logger,
		cfg:          cfg,
		state:        domain.SessionStateIdle,
		uploadStatus: domain.UploadStatusIdle,
	}
}

// Start acquires the microphone and begins recording.
func (c *CaptureController) Start(ctx context.Context, title string) error {
	if err := validation.Title(title); err != nil {
		return err
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.getState() != domain.SessionStateIdle {
		return ErrSessionActive
	}

	// A leftover handle from an earlier recording must not outlive it.
	c.packager.Release()

	session := &activeSession{id: uuid.NewString(), title: strings.TrimSpace(title)}
	device, err := c.audio.Open(ctx, c.cfg.Audio, sessionSink{controller: c, session: session})
	if err != nil {
		deviceErr := classifyDeviceError(err)
		c.logger.Warn("audio device unavailable", zap.String("code", string(deviceErr.Code)), zap.Error(err))
		return deviceErr
	}
	session.device = device
	session.timer = newSessionTimer(
		c.cfg.NewTicker,
		c.cfg.TickInterval,
		c.cfg.Ceiling,
		func(elapsed int) { c.events.Elapsed(elapsed, FormatElapsed(elapsed)) },
		func() { c.stopAtCeiling(session) },
	)

	c.mu.Lock()
	c.current = session
	c.artifact = nil
	c.errorMessage = ""
	c.state = domain.SessionStateRecording
	c.uploadStatus = domain.UploadStatusIdle
	c.progress = 0
	c.mu.Unlock()

	session.timer.Start()
	c.logger.Info("recording started", zap.String("session", session.id))
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	return nil
}

// Pause suspends capture. It is a no-op unless the device is recording.
func (c *CaptureController) Pause() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	session := c.getCurrent()
	if session == nil || c.getState() != domain.SessionStateRecording {
		return nil
	}
	if session.device.State() != ports.DeviceStateRecording {
		return nil
	}
	if err := session.device.Pause(); err != nil {
		return err
	}
	session.timer.Stop()

	if session.timer.Elapsed() >= c.cfg.Ceiling {
		// The ceiling tick raced with this pause.
		c.stopLocked(session, domain.SessionReasonCeilingReached)
		return nil
	}

	c.setState(domain.SessionStatePaused)
	c.events.SessionStateChanged(domain.SessionStatePaused, domain.SessionReasonRecordingPaused)
	return nil
}

// Resume continues a paused capture. It is a no-op unless the device is paused.
func (c *CaptureController) Resume() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	session := c.getCurrent()
	if session == nil || c.getState() != domain.SessionStatePaused {
		return nil
	}
	if session.device.State() != ports.DeviceStatePaused {
		return nil
	}
	if err := session.device.Resume(); err != nil {
		return err
	}

	c.setState(domain.SessionStateRecording)
	session.timer.Start()
	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingResumed)
	return nil
}

// Stop ends capture and finalizes the artifact.
func (c *CaptureController) Stop() (domain.Artifact, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	session := c.getCurrent()
	state := c.getState()
	if session == nil || (state != domain.SessionStateRecording && state != domain.SessionStatePaused) {
		return domain.Artifact{}, ErrNoActiveSession
	}
	return c.stopLocked(session, domain.SessionReasonRecordingStopped)
}

// Reset discards the stopped session and its artifact.
func (c *CaptureController) Reset() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.uploading {
		c.mu.Unlock()
		return domain.ErrUploadInProgress
	}
	if c.state != domain.SessionStateStopped {
		c.mu.Unlock()
		return ErrNoActiveSession
	}
	c.mu.Unlock()

	c.discardLocked()
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingReset)
	return nil
}

// Upload sends the finalized artifact. On failure the artifact is kept so the
// caller can resubmit; on success the session is discarded.
func (c *CaptureController) Upload(ctx context.Context, opts UploadOptions) (domain.Dialogue, error) {
	c.opMu.Lock()
	c.mu.Lock()
	if c.uploading {
		c.mu.Unlock()
		c.opMu.Unlock()
		return domain.Dialogue{}, domain.ErrUploadInProgress
	}
	if c.state != domain.SessionStateStopped || c.artifact == nil || c.artifact.SizeBytes == 0 || c.current == nil {
		c.mu.Unlock()
		c.opMu.Unlock()
		return domain.Dialogue{}, ErrNoArtifact
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = c.current.title
	}
	if err := validation.Title(title); err != nil {
		c.mu.Unlock()
		c.opMu.Unlock()
		return domain.Dialogue{}, err
	}
	artifact := *c.artifact
	session := c.current
	c.uploading = true
	c.uploadStatus = domain.UploadStatusSending
	c.progress = 0
	c.mu.Unlock()
	c.opMu.Unlock()

	c.events.UploadProgress(0)
	dialogue, err := c.uploader.SubmitRecording(ctx, ports.RecordingSubmission{
		Title:      title,
		TemplateID: opts.TemplateID,
		Artifact:   artifact,
	}, c.reportProgress)

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	c.uploading = false
	c.progress = 0
	if err != nil {
		c.uploadStatus = domain.UploadStatusFailed
		c.errorMessage = err.Error()
		c.mu.Unlock()
		c.events.UploadProgress(0)
		c.logger.Warn("recording upload failed", zap.String("session", session.id), zap.Error(err))
		return domain.Dialogue{}, err
	}
	c.uploadStatus = domain.UploadStatusSucceeded
	c.mu.Unlock()
	c.events.UploadProgress(0)

	c.discardLocked()
	c.logger.Info("recording uploaded", zap.String("session", session.id), zap.String("dialogue", dialogue.ID))
	c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingUploaded)
	return dialogue, nil
}

// Status returns the current capture status.
func (c *CaptureController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := domain.Status{
		State:    c.state,
		Active:   c.state == domain.SessionStateRecording || c.state == domain.SessionStatePaused,
		Upload:   c.uploadStatus,
		Progress: c.progress,
		Message:  c.errorMessage,
	}
	if c.current != nil {
		status.Title = c.current.title
		if c.current.timer != nil {
			status.ElapsedSeconds = c.current.timer.Elapsed()
		}
	}
	status.Elapsed = FormatElapsed(status.ElapsedSeconds)
	if c.artifact != nil {
		status.Artifact = &domain.ArtifactInfo{
			MIMEType:      c.artifact.MIMEType,
			SizeBytes:     c.artifact.SizeBytes,
			PreviewHandle: c.artifact.PreviewHandle,
		}
	}
	return status
}

// Artifact returns the finalized recording, if one is held.
func (c *CaptureController) Artifact() (domain.Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.artifact == nil {
		return domain.Artifact{}, false
	}
	return *c.artifact, true
}

// Close tears down any live session and releases the preview handle.
func (c *CaptureController) Close() error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	var err error
	session := c.getCurrent()
	if session != nil {
		state := c.getState()
		if state == domain.SessionStateRecording || state == domain.SessionStatePaused {
			session.timer.Stop()
			err = session.device.Close()
			session.seal()
		}
	}
	c.discardLocked()
	return err
}

func (c *CaptureController) stopAtCeiling(session *activeSession) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.getCurrent() != session {
		return
	}
	state := c.getState()
	if state != domain.SessionStateRecording && state != domain.SessionStatePaused {
		return
	}
	c.logger.Info("recording ceiling reached", zap.String("session", session.id), zap.Int("seconds", c.cfg.Ceiling))
	if _, err := c.stopLocked(session, domain.SessionReasonCeilingReached); err != nil {
		c.events.SessionError(domain.ErrorCodeRecordingFailed, err.Error())
	}
}

// stopLocked must be called with opMu held.
func (c *CaptureController) stopLocked(session *activeSession, reason domain.SessionStateReason) (domain.Artifact, error) {
	session.timer.Stop()
	if err := session.device.Close(); err != nil {
		c.logger.Warn("audio device did not close cleanly", zap.String("session", session.id), zap.Error(err))
	}
	chunks := session.seal()

	artifact, err := c.packager.Finalize(chunks)
	if err != nil {
		// The recording is still usable without a preview.
		c.logger.Warn("preview handle unavailable", zap.String("session", session.id), zap.Error(err))
	}

	c.mu.Lock()
	c.artifact = &artifact
	c.state = domain.SessionStateStopped
	c.mu.Unlock()

	c.logger.Info("recording stopped",
		zap.String("session", session.id),
		zap.String("reason", string(reason)),
		zap.Int("chunks", len(chunks)),
		zap.Int("bytes", artifact.SizeBytes),
	)
	c.events.SessionStateChanged(domain.SessionStateStopped, reason)
	return artifact, nil
}

func (c *CaptureController) fail(session *activeSession, cause error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.getCurrent() != session {
		return
	}
	state := c.getState()
	if state != domain.SessionStateRecording && state != domain.SessionStatePaused {
		return
	}

	session.timer.Stop()
	_ = session.device.Close()
	session.seal()

	message := "recording failed"
	if cause != nil {
		message = "recording failed: " + cause.Error()
	}
	c.mu.Lock()
	c.state = domain.SessionStateStopped
	c.artifact = nil
	c.errorMessage = message
	c.mu.Unlock()

	c.logger.Error("audio device fault", zap.String("session", session.id), zap.Error(cause))
	c.events.SessionError(domain.ErrorCodeRecordingFailed, message)
	c.events.SessionStateChanged(domain.SessionStateStopped, domain.SessionReasonRecordingFailed)
}

func (c *CaptureController) discardLocked() {
	c.packager.Release()

	c.mu.Lock()
	c.current = nil
	c.artifact = nil
	c.errorMessage = ""
	c.state = domain.SessionStateIdle
	c.progress = 0
	c.mu.Unlock()
}

func (c *CaptureController) getCurrent() *activeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *CaptureController) getState() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *CaptureController) setState(state domain.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *CaptureController) reportProgress(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	c.mu.Lock()
	if !c.uploading || percent < c.progress {
		c.mu.Unlock()
		return
	}
	c.progress = percent
	c.mu.Unlock()

	c.events.UploadProgress(percent)
}

func classifyDeviceError(err error) *domain.DeviceError {
	var deviceErr *domain.DeviceError
	if errors.As(err, &deviceErr) {
		return deviceErr
	}
	return &domain.DeviceError{Code: domain.ErrorCodeDeviceUnavailable, Err: err}
}

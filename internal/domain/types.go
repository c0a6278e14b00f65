package domain

import (
	"errors"
	"time"
)

// ErrUploadInProgress rejects a submission while another one is in flight.
var ErrUploadInProgress = errors.New("an upload is already in progress")

// SessionState models the capture lifecycle.
type SessionState string

const (
	SessionStateIdle      SessionState = "idle"
	SessionStateRecording SessionState = "recording"
	SessionStatePaused    SessionState = "paused"
	SessionStateStopped   SessionState = "stopped"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady             SessionStateReason = "ready"
	SessionReasonRecordingStarted  SessionStateReason = "recording_started"
	SessionReasonRecordingPaused   SessionStateReason = "recording_paused"
	SessionReasonRecordingResumed  SessionStateReason = "recording_resumed"
	SessionReasonRecordingStopped  SessionStateReason = "recording_stopped"
	SessionReasonCeilingReached    SessionStateReason = "ceiling_reached"
	SessionReasonRecordingFailed   SessionStateReason = "recording_failed"
	SessionReasonRecordingReset    SessionStateReason = "recording_reset"
	SessionReasonRecordingUploaded SessionStateReason = "recording_uploaded"
)

// ErrorCode identifies the recoverable failures surfaced to the user.
type ErrorCode string

const (
	ErrorCodeStartup ErrorCode = "startup"

	ErrorCodePermissionDenied  ErrorCode = "permission_denied"
	ErrorCodeDeviceNotFound    ErrorCode = "device_not_found"
	ErrorCodeDeviceUnavailable ErrorCode = "device_unavailable"
	ErrorCodeRecordingFailed   ErrorCode = "recording_failed"

	ErrorCodeTitleMissing        ErrorCode = "title_missing"
	ErrorCodeTitleTooLong        ErrorCode = "title_too_long"
	ErrorCodeFileTooLarge        ErrorCode = "file_too_large"
	ErrorCodeUnsupportedType     ErrorCode = "unsupported_type"
	ErrorCodeTranscriptEmpty     ErrorCode = "transcript_empty"
	ErrorCodeTranscriptTooShort  ErrorCode = "transcript_too_short"
	ErrorCodeTranscriptTooLong   ErrorCode = "transcript_too_long"
	ErrorCodeUnsupportedLanguage ErrorCode = "unsupported_language"

	ErrorCodeNetworkFailure    ErrorCode = "network_failure"
	ErrorCodeServerRejected    ErrorCode = "server_rejected"
	ErrorCodeMalformedResponse ErrorCode = "malformed_response"
	ErrorCodeUploadInProgress  ErrorCode = "upload_in_progress"
)

// DeviceError reports why an audio input device could not be acquired.
type DeviceError struct {
	Code ErrorCode
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Artifact is a finalized recording. Bytes must not be modified after creation.
type Artifact struct {
	Bytes         []byte    `json:"-"`
	MIMEType      string    `json:"mimeType"`
	SizeBytes     int       `json:"sizeBytes"`
	PreviewHandle string    `json:"previewHandle,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// UploadStatus tracks one transmission attempt.
type UploadStatus string

const (
	UploadStatusIdle      UploadStatus = "idle"
	UploadStatusSending   UploadStatus = "sending"
	UploadStatusSucceeded UploadStatus = "succeeded"
	UploadStatusFailed    UploadStatus = "failed"
)

// InputType is the dialogue submission path.
type InputType string

const (
	InputTypeRecording  InputType = "recording"
	InputTypeFile       InputType = "file"
	InputTypeTranscript InputType = "transcript"
)

// Language is the detected transcript script.
type Language string

const (
	LanguageEnglish     Language = "english"
	LanguageHebrew      Language = "hebrew"
	LanguageUnsupported Language = "unsupported"
)

// Dialogue is the server-side resource created by a submission.
type Dialogue struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id,omitempty"`
	Title          string         `json:"title"`
	Content        string         `json:"content,omitempty"`
	Transcript     string         `json:"transcript,omitempty"`
	AudioURL       string         `json:"audio_url,omitempty"`
	VideoURL       string         `json:"video_url,omitempty"`
	AnalysisStatus string         `json:"analysis_status,omitempty"`
	Language       string         `json:"language,omitempty"`
	Status         string         `json:"status,omitempty"`
	TemplateID     string         `json:"template_id,omitempty"`
	Metadata       map[string]any `json:"analysis_metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Template is an avatar template offered for video generation.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatar_url"`
	VoiceID     string `json:"voice_id"`
	Category    string `json:"category"`
	IsActive    bool   `json:"is_active"`
}

// TemplateSuggestion is the server's template pick for a dialogue.
type TemplateSuggestion struct {
	TemplateID   string  `json:"templateId"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
	FallbackUsed bool    `json:"fallbackUsed"`
}

// User is the authenticated account.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// ArtifactInfo summarizes an artifact for the UI.
type ArtifactInfo struct {
	MIMEType      string `json:"mimeType"`
	SizeBytes     int    `json:"sizeBytes"`
	PreviewHandle string `json:"previewHandle"`
}

// Status summarizes the current capture status.
type Status struct {
	State          SessionState  `json:"state"`
	Active         bool          `json:"active"`
	ElapsedSeconds int           `json:"elapsedSeconds"`
	Elapsed        string        `json:"elapsed"`
	Title          string        `json:"title,omitempty"`
	Artifact       *ArtifactInfo `json:"artifact,omitempty"`
	Upload         UploadStatus  `json:"upload"`
	Progress       int           `json:"progress"`
	Message        string        `json:"message,omitempty"`
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"dialoguerec/internal/api"
	"dialoguerec/internal/bootstrap"
	"dialoguerec/internal/domain"
	"dialoguerec/internal/messages"
	"dialoguerec/internal/templates"
	"dialoguerec/internal/upload"
	"dialoguerec/internal/usecase"
	"dialoguerec/internal/validation"
)

const (
	eventSession  = "dialogue:session"
	eventElapsed  = "dialogue:elapsed"
	eventProgress = "dialogue:progress"
	eventError    = "dialogue:error"
	eventLanguage = "dialogue:language"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services bootstrap.Services
	ready    bool
	bootErr  error
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a.languageDetected)
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.services = services
	a.ready = true
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if !a.ready {
		return
	}
	if err := a.services.Controller.Close(); err != nil {
		a.services.Logger.Warn("capture teardown failed", zap.Error(err))
	}
	_ = a.services.Logger.Sync()
}

// StartRecording acquires the microphone and begins a titled recording.
func (a *App) StartRecording(title string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Start(a.ctx, title); err != nil {
		return a.services.Controller.Status(), a.report(err)
	}
	return a.services.Controller.Status(), nil
}

// PauseRecording suspends the running recording.
func (a *App) PauseRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Pause(); err != nil {
		return a.services.Controller.Status(), a.report(err)
	}
	return a.services.Controller.Status(), nil
}

// ResumeRecording continues a paused recording.
func (a *App) ResumeRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Resume(); err != nil {
		return a.services.Controller.Status(), a.report(err)
	}
	return a.services.Controller.Status(), nil
}

// StopRecording finalizes the recording for preview and upload.
func (a *App) StopRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if _, err := a.services.Controller.Stop(); err != nil {
		return a.services.Controller.Status(), a.report(err)
	}
	return a.services.Controller.Status(), nil
}

// ResetRecording discards the finalized recording.
func (a *App) ResetRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.services.Controller.Reset(); err != nil && !errors.Is(err, usecase.ErrNoActiveSession) {
		return a.services.Controller.Status(), a.report(err)
	}
	return a.services.Controller.Status(), nil
}

// UploadRecording submits the finalized recording. A blank title keeps the
// title the recording was started with.
func (a *App) UploadRecording(title, templateID string) (domain.Dialogue, error) {
	if err := a.requireReady(); err != nil {
		return domain.Dialogue{}, err
	}
	dialogue, err := a.services.Controller.Upload(a.ctx, usecase.UploadOptions{Title: title, TemplateID: templateID})
	if err != nil {
		return domain.Dialogue{}, a.report(err)
	}
	return dialogue, nil
}

// FileInfo describes a picked file after validation.
type FileInfo struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	SizeText string `json:"sizeText"`
	MIMEType string `json:"mimeType"`
	Audio    bool   `json:"audio"`
}

// ChooseFile opens the native picker and validates the selection.
func (a *App) ChooseFile() (FileInfo, error) {
	if err := a.requireReady(); err != nil {
		return FileInfo{}, err
	}
	path, err := runtime.OpenFileDialog(a.ctx, runtime.OpenDialogOptions{
		Title: "Choose a dialogue recording",
		Filters: []runtime.FileFilter{
			{DisplayName: "Audio and video", Pattern: "*.mp3;*.wav;*.m4a;*.ogg;*.aac;*.webm;*.mp4;*.mov;*.avi;*.mkv"},
		},
	})
	if err != nil {
		return FileInfo{}, err
	}
	if path == "" {
		return FileInfo{}, nil
	}
	return a.InspectFile(path)
}

// InspectFile validates a file path without uploading it.
func (a *App) InspectFile(path string) (FileInfo, error) {
	if err := a.requireReady(); err != nil {
		return FileInfo{}, err
	}
	candidate, mimeType, err := a.services.Submissions.CheckFile(path)
	if err != nil {
		return FileInfo{}, a.report(err)
	}
	return FileInfo{
		Path:     path,
		Name:     candidate.Name,
		Size:     candidate.Size,
		SizeText: validation.HumanSize(candidate.Size),
		MIMEType: mimeType,
		Audio:    validation.IsAudio(mimeType),
	}, nil
}

// UploadFile validates and submits an audio/video file.
func (a *App) UploadFile(path, title, templateID string) (domain.Dialogue, error) {
	if err := a.requireReady(); err != nil {
		return domain.Dialogue{}, err
	}
	dialogue, err := a.services.Submissions.SubmitFile(a.ctx, path, title, templateID)
	if err != nil {
		return domain.Dialogue{}, a.report(err)
	}
	return dialogue, nil
}

// UpdateTranscript schedules language detection for the edited text.
func (a *App) UpdateTranscript(content string) {
	if !a.ready {
		return
	}
	a.services.Detector.Update(content)
}

// SubmitTranscript validates and submits pasted dialogue text.
func (a *App) SubmitTranscript(title, content, templateID string) (domain.Dialogue, error) {
	if err := a.requireReady(); err != nil {
		return domain.Dialogue{}, err
	}
	dialogue, err := a.services.Submissions.SubmitTranscript(a.ctx, title, content, templateID)
	if err != nil {
		return domain.Dialogue{}, a.report(err)
	}
	return dialogue, nil
}

// LoadTemplates returns the template picker state for a created dialogue.
func (a *App) LoadTemplates(dialogueID string) (templates.Selection, error) {
	if err := a.requireReady(); err != nil {
		return templates.Selection{}, err
	}
	selection, err := a.services.Templates.LoadSelection(a.ctx, dialogueID)
	if err != nil {
		a.services.Logger.Warn("template selection failed", zap.String("dialogue", dialogueID), zap.Error(err))
		return templates.Selection{}, err
	}
	return selection, nil
}

// Login stores the identity handed over by the sign-in view.
func (a *App) Login(user domain.User, token string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if token == "" {
		return errors.New("a session token is required")
	}
	a.services.Session.Login(user, token)
	a.services.Logger.Info("signed in", zap.String("user", user.ID))
	return nil
}

// Logout forgets the identity and discards any unsent recording.
func (a *App) Logout() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if a.services.Uploads.Busy() {
		return a.report(domain.ErrUploadInProgress)
	}
	if err := a.services.Controller.Close(); err != nil {
		a.services.Logger.Warn("capture teardown failed", zap.Error(err))
	}
	a.services.Session.Clear()
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingReset)
	return nil
}

// ExportRecording saves the finalized recording to a user-chosen path.
func (a *App) ExportRecording() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	artifact, ok := a.services.Controller.Artifact()
	if !ok {
		return "", usecase.ErrNoArtifact
	}
	path, err := runtime.SaveFileDialog(a.ctx, runtime.SaveDialogOptions{
		Title:           "Save recording",
		DefaultFilename: exportFileName(a.userID(), artifact.CreatedAt),
	})
	if err != nil || path == "" {
		return "", err
	}
	if err := os.WriteFile(path, artifact.Bytes, 0o600); err != nil {
		return "", fmt.Errorf("failed to save recording: %w", err)
	}
	return path, nil
}

// GetStatus returns the current capture status.
func (a *App) GetStatus() domain.Status {
	if !a.ready {
		status := domain.Status{State: domain.SessionStateIdle, Elapsed: usecase.FormatElapsed(0), Upload: domain.UploadStatusIdle}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.services.Controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if !a.ready {
		return map[string]string{}
	}
	cfg := a.services.Config
	return map[string]string{
		"apiBaseUrl":       cfg.API.BaseURL,
		"locale":           a.services.Messages.Locale(),
		"audioInput":       cfg.Audio.InputDevice,
		"audioInputFormat": cfg.Audio.InputFormat,
		"maxRecording":     usecase.FormatElapsed(cfg.Session.MaxRecordingSeconds),
		"maxFileSize":      validation.HumanSize(validation.MaxFileSize),
	}
}

// ServeHTTP serves preview handles through the Wails asset server.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !a.ready {
		http.NotFound(w, r)
		return
	}
	a.services.Previews.ServeHTTP(w, r)
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if !a.ready {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) userID() string {
	if !a.ready {
		return "anonymous"
	}
	if user, ok := a.services.Session.User(); ok && user.ID != "" {
		return user.ID
	}
	return "anonymous"
}

// report emits err to the UI when it carries a known code and returns it.
func (a *App) report(err error) error {
	if code := errorCode(err); code != "" {
		a.SessionError(code, err.Error())
	}
	return err
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": a.catalog().State(reason),
	})
}

// Elapsed emits the recording clock.
func (a *App) Elapsed(seconds int, formatted string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventElapsed, map[string]any{
		"seconds":   seconds,
		"formatted": formatted,
	})
}

// UploadProgress emits transmission progress in percent.
func (a *App) UploadProgress(percent int) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventProgress, map[string]int{"percent": percent})
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": a.catalog().Error(code, detail),
		"detail":  detail,
	})
}

func (a *App) languageDetected(detection validation.Detection) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventLanguage, detection)
}

func (a *App) catalog() *messages.Catalog {
	if a.ready {
		return a.services.Messages
	}
	return fallbackCatalog
}

var fallbackCatalog = mustCatalog()

func mustCatalog() *messages.Catalog {
	catalog, err := messages.New("en")
	if err != nil {
		panic(err)
	}
	return catalog
}

func exportFileName(userID string, createdAt time.Time) string {
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return api.GenerateFileName("recording.webm", userID, createdAt)
}

// errorCode extracts the user-facing failure code carried by err.
func errorCode(err error) domain.ErrorCode {
	if err == nil {
		return ""
	}
	var validationErr *validation.Error
	if errors.As(err, &validationErr) {
		return validationErr.Code
	}
	var deviceErr *domain.DeviceError
	if errors.As(err, &deviceErr) {
		return deviceErr.Code
	}
	var uploadErr *upload.Error
	if errors.As(err, &uploadErr) {
		return uploadErr.Code
	}
	if errors.Is(err, domain.ErrUploadInProgress) {
		return domain.ErrorCodeUploadInProgress
	}
	return ""
}

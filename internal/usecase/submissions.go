package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"dialoguerec/internal/domain"
	"dialoguerec/internal/ports"
	"dialoguerec/internal/validation"
)

const sniffLength = 512

// SubmissionService handles the file and transcript input paths. Validation
// runs before anything is opened or sent.
type SubmissionService struct {
	uploader ports.DialogueUploader
	events   ports.EventSink
	logger   *zap.Logger
}

func NewSubmissionService(uploader ports.DialogueUploader, events ports.EventSink, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{uploader: uploader, events: events, logger: logger}
}

// CheckFile validates a candidate file without sending it.
func (s *SubmissionService) CheckFile(path string) (validation.FileCandidate, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return validation.FileCandidate{}, "", fmt.Errorf("failed to open %q: %w", filepath.Base(path), err)
	}
	defer file.Close()
	return inspectFile(file, path)
}

// SubmitFile validates and uploads an audio/video file.
func (s *SubmissionService) SubmitFile(ctx context.Context, path, title, templateID string) (domain.Dialogue, error) {
	if err := validation.Title(title); err != nil {
		return domain.Dialogue{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return domain.Dialogue{}, fmt.Errorf("failed to open %q: %w", filepath.Base(path), err)
	}
	defer file.Close()

	candidate, mimeType, err := inspectFile(file, path)
	if err != nil {
		return domain.Dialogue{}, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return domain.Dialogue{}, fmt.Errorf("failed to rewind %q: %w", candidate.Name, err)
	}

	s.logger.Info("uploading dialogue file",
		zap.String("file", candidate.Name),
		zap.String("mime", mimeType),
		zap.Int64("bytes", candidate.Size),
	)
	return s.uploader.UploadFile(ctx, ports.FileSubmission{
		Title:      title,
		TemplateID: templateID,
		FileName:   candidate.Name,
		MIMEType:   mimeType,
		Size:       candidate.Size,
		Body:       file,
	}, s.events.UploadProgress)
}

// SubmitTranscript validates and sends pasted text.
func (s *SubmissionService) SubmitTranscript(ctx context.Context, title, content, templateID string) (domain.Dialogue, error) {
	if err := validation.Title(title); err != nil {
		return domain.Dialogue{}, err
	}
	result, err := validation.Transcript(content)
	if err != nil {
		return domain.Dialogue{}, err
	}

	s.logger.Info("submitting transcript",
		zap.String("language", string(result.Language)),
		zap.Int("words", result.Words),
	)
	return s.uploader.SubmitTranscript(ctx, ports.TranscriptSubmission{
		Title:      title,
		TemplateID: templateID,
		Content:    content,
		Language:   result.Language,
	}, s.events.UploadProgress)
}

func inspectFile(file *os.File, path string) (validation.FileCandidate, string, error) {
	info, err := file.Stat()
	if err != nil {
		return validation.FileCandidate{}, "", fmt.Errorf("failed to stat %q: %w", filepath.Base(path), err)
	}
	candidate := validation.FileCandidate{Name: filepath.Base(path), Size: info.Size()}

	// Size is checked before reading anything.
	if candidate.Size <= validation.MaxFileSize {
		head := make([]byte, sniffLength)
		n, err := io.ReadFull(file, head)
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return candidate, "", fmt.Errorf("failed to read %q: %w", candidate.Name, err)
		}
		candidate.Head = head[:n]
	}

	mimeType, err := validation.File(candidate)
	if err != nil {
		return candidate, "", err
	}
	return candidate, mimeType, nil
}

package usecase

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"dialoguerec/internal/domain"
	"dialoguerec/internal/ports"
	"dialoguerec/internal/validation"
)

type fakeDialogueUploader struct {
	mu          sync.Mutex
	files       []ports.FileSubmission
	fileBodies  []string
	transcripts []ports.TranscriptSubmission
}

func (f *fakeDialogueUploader) UploadFile(_ context.Context, sub ports.FileSubmission, progress ports.ProgressFunc) (domain.Dialogue, error) {
	body, err := io.ReadAll(sub.Body)
	if err != nil {
		return domain.Dialogue{}, err
	}
	progress(100)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, sub)
	f.fileBodies = append(f.fileBodies, string(body))
	return domain.Dialogue{ID: "file-1", Title: sub.Title}, nil
}

func (f *fakeDialogueUploader) SubmitTranscript(_ context.Context, sub ports.TranscriptSubmission, _ ports.ProgressFunc) (domain.Dialogue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, sub)
	return domain.Dialogue{ID: "text-1", Title: sub.Title, Language: string(sub.Language)}, nil
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	return path
}

func TestSubmitFileUploadsValidAudio(t *testing.T) {
	t.Parallel()

	content := append([]byte("ID3\x03\x00\x00\x00\x00\x00\x00"), []byte(strings.Repeat("x", 64))...)
	path := writeFile(t, "session.mp3", content)
	uploader := &fakeDialogueUploader{}
	events := &fakeEventSink{}
	service := NewSubmissionService(uploader, events, zap.NewNop())

	dialogue, err := service.SubmitFile(context.Background(), path, "Therapy session", "tpl")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if dialogue.ID != "file-1" {
		t.Fatalf("unexpected dialogue %+v", dialogue)
	}
	sub := uploader.files[0]
	if sub.FileName != "session.mp3" || sub.MIMEType != "audio/mpeg" || sub.Size != int64(len(content)) || sub.TemplateID != "tpl" {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if uploader.fileBodies[0] != string(content) {
		t.Fatalf("file must be streamed from the start")
	}
	if progress := events.snapshotProgress(); len(progress) != 1 || progress[0] != 100 {
		t.Fatalf("expected progress forwarded to the event sink, got %v", progress)
	}
}

func TestSubmitFileRejectsBeforeSending(t *testing.T) {
	t.Parallel()

	large := filepath.Join(t.TempDir(), "huge.mp4")
	f, err := os.Create(large)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := f.Truncate(validation.MaxFileSize + 1); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}
	_ = f.Close()

	cases := map[string]struct {
		path  string
		title string
		want  domain.ErrorCode
	}{
		"missing title": {path: writeFile(t, "a.mp3", []byte("ID3data")), title: " ", want: domain.ErrorCodeTitleMissing},
		"too large":     {path: large, title: "t", want: domain.ErrorCodeFileTooLarge},
		"text file":     {path: writeFile(t, "notes.txt", []byte("just some notes")), title: "t", want: domain.ErrorCodeUnsupportedType},
		"empty file":    {path: writeFile(t, "empty.wav", nil), title: "t", want: domain.ErrorCodeUnsupportedType},
		"text as audio": {path: writeFile(t, "notes.mp3", []byte("just some notes")), title: "t", want: domain.ErrorCodeUnsupportedType},
	}
	for name, tc := range cases {
		uploader := &fakeDialogueUploader{}
		service := NewSubmissionService(uploader, &fakeEventSink{}, nil)

		_, err := service.SubmitFile(context.Background(), tc.path, tc.title, "")
		var validationErr *validation.Error
		if !errors.As(err, &validationErr) || validationErr.Code != tc.want {
			t.Fatalf("%s: expected %s, got %v", name, tc.want, err)
		}
		if len(uploader.files) != 0 {
			t.Fatalf("%s: rejected file reached the transport", name)
		}
	}
}

func TestSubmitFileMissingPath(t *testing.T) {
	t.Parallel()

	service := NewSubmissionService(&fakeDialogueUploader{}, &fakeEventSink{}, nil)
	if _, err := service.SubmitFile(context.Background(), filepath.Join(t.TempDir(), "nope.mp3"), "t", ""); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestSubmitTranscript(t *testing.T) {
	t.Parallel()

	uploader := &fakeDialogueUploader{}
	service := NewSubmissionService(uploader, &fakeEventSink{}, nil)

	_, err := service.SubmitTranscript(context.Background(), "t", "too short to send", "")
	if !errors.Is(err, validation.ErrTranscriptTooShort) {
		t.Fatalf("expected too short, got %v", err)
	}
	if len(uploader.transcripts) != 0 {
		t.Fatalf("short transcript reached the transport")
	}

	content := "שלום לך, איך אתה מרגיש היום? אני מרגיש הרבה יותר טוב מאתמול בערב"
	dialogue, err := service.SubmitTranscript(context.Background(), "Evening", content, "tpl")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if dialogue.Language != string(domain.LanguageHebrew) {
		t.Fatalf("unexpected dialogue: %+v", dialogue)
	}
	sub := uploader.transcripts[0]
	if sub.Language != domain.LanguageHebrew || sub.Content != content || sub.TemplateID != "tpl" {
		t.Fatalf("unexpected submission: %+v", sub)
	}
}

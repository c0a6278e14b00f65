package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"dialoguerec/internal/api"
	"dialoguerec/internal/domain"
	"dialoguerec/internal/ports"
)

const (
	recordPath = "/api/dialogues/record"
	uploadPath = "/api/dialogues/upload"

	defaultTimeout  = 5 * time.Minute
	maxResponseSize = 4 << 20
)

// TokenSource supplies the bearer token attached to each request.
type TokenSource interface {
	Token() (string, bool)
}

// Config controls the dialogue service transport.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client submits dialogues to the remote service. Only one submission may be
// in flight at a time; concurrent attempts are rejected, not queued.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	tokens  TokenSource
	logger  *zap.Logger

	busy atomic.Bool
}

func NewClient(cfg Config, tokens TokenSource, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("dialogue service base URL is not configured")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid dialogue service base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: base,
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
		tokens:  tokens,
		logger:  logger,
	}, nil
}

type recordRequest struct {
	Title      string `json:"title"`
	AudioData  string `json:"audio_data"`
	TemplateID string `json:"template_id,omitempty"`
}

type dialoguePayload struct {
	Dialogue *domain.Dialogue `json:"dialogue"`
}

// SubmitRecording posts a finalized recording as base64 JSON.
func (c *Client) SubmitRecording(ctx context.Context, sub ports.RecordingSubmission, progress ports.ProgressFunc) (domain.Dialogue, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return domain.Dialogue{}, domain.ErrUploadInProgress
	}
	defer c.busy.Store(false)

	payload, err := json.Marshal(recordRequest{
		Title:      strings.TrimSpace(sub.Title),
		AudioData:  base64.StdEncoding.EncodeToString(sub.Artifact.Bytes),
		TemplateID: sub.TemplateID,
	})
	if err != nil {
		return domain.Dialogue{}, fmt.Errorf("failed to encode recording: %w", err)
	}

	return c.send(ctx, request{
		path:        recordPath,
		contentType: "application/json",
		body:        bytes.NewReader(payload),
		length:      int64(len(payload)),
		accept:      []int{http.StatusOK, http.StatusCreated},
		kind:        domain.InputTypeRecording,
	}, progress)
}

// UploadFile streams an audio/video file as multipart form data. The server
// must answer 201 Created.
func (c *Client) UploadFile(ctx context.Context, sub ports.FileSubmission, progress ports.ProgressFunc) (domain.Dialogue, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return domain.Dialogue{}, domain.ErrUploadInProgress
	}
	defer c.busy.Store(false)

	fields := []formField{
		{name: "title", value: strings.TrimSpace(sub.Title)},
		{name: "input_type", value: string(domain.InputTypeFile)},
	}
	if sub.TemplateID != "" {
		fields = append(fields, formField{name: "template_id", value: sub.TemplateID})
	}
	body, length, contentType, err := buildMultipart(fields, &formFile{
		field:    "audio_file",
		name:     sub.FileName,
		mimeType: sub.MIMEType,
		size:     sub.Size,
		body:     sub.Body,
	})
	if err != nil {
		return domain.Dialogue{}, err
	}

	return c.send(ctx, request{
		path:        uploadPath,
		contentType: contentType,
		body:        body,
		length:      length,
		accept:      []int{http.StatusCreated},
		kind:        domain.InputTypeFile,
	}, progress)
}

// SubmitTranscript posts pasted text through the upload endpoint.
func (c *Client) SubmitTranscript(ctx context.Context, sub ports.TranscriptSubmission, progress ports.ProgressFunc) (domain.Dialogue, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return domain.Dialogue{}, domain.ErrUploadInProgress
	}
	defer c.busy.Store(false)

	fields := []formField{
		{name: "title", value: strings.TrimSpace(sub.Title)},
		{name: "content", value: sub.Content},
		{name: "input_type", value: string(domain.InputTypeTranscript)},
	}
	if sub.Language != "" {
		fields = append(fields, formField{name: "language", value: string(sub.Language)})
	}
	if sub.TemplateID != "" {
		fields = append(fields, formField{name: "template_id", value: sub.TemplateID})
	}
	body, length, contentType, err := buildMultipart(fields, nil)
	if err != nil {
		return domain.Dialogue{}, err
	}

	return c.send(ctx, request{
		path:        uploadPath,
		contentType: contentType,
		body:        body,
		length:      length,
		accept:      []int{http.StatusOK, http.StatusCreated},
		kind:        domain.InputTypeTranscript,
	}, progress)
}

// Busy reports whether a submission is in flight.
func (c *Client) Busy() bool {
	return c.busy.Load()
}

type request struct {
	path        string
	contentType string
	body        io.Reader
	length      int64
	accept      []int
	kind        domain.InputType
}

func (c *Client) send(ctx context.Context, r request, progress ports.ProgressFunc) (domain.Dialogue, error) {
	tracker := newProgressTracker(progress)
	defer tracker.finish()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := &countingReader{r: r.body, total: r.length, tracker: tracker}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+r.path, body)
	if err != nil {
		return domain.Dialogue{}, errNetwork("could not build request", err)
	}
	req.ContentLength = r.length
	req.Header.Set("Content-Type", r.contentType)
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	started := time.Now()
	c.logger.Debug("submitting dialogue", zap.String("input_type", string(r.kind)), zap.Int64("bytes", r.length))

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.Dialogue{}, errNetwork(fmt.Sprintf("upload timed out after %s", c.timeout), err)
		}
		return domain.Dialogue{}, errNetwork("network error during upload", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return domain.Dialogue{}, errNetwork("connection lost while reading the response", err)
	}

	dialogue, err := decodeDialogue(resp.StatusCode, raw, r.accept)
	if err != nil {
		c.logger.Warn("dialogue submission failed",
			zap.String("input_type", string(r.kind)),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
		return domain.Dialogue{}, err
	}

	c.logger.Info("dialogue submitted",
		zap.String("input_type", string(r.kind)),
		zap.String("dialogue", dialogue.ID),
		zap.Duration("took", time.Since(started)),
	)
	return dialogue, nil
}

func decodeDialogue(status int, raw []byte, accept []int) (domain.Dialogue, error) {
	var envelope api.Envelope[dialoguePayload]
	decodeErr := json.Unmarshal(raw, &envelope)

	if !statusAccepted(status, accept) {
		message := fmt.Sprintf("upload failed with status: %d", status)
		if decodeErr == nil && strings.TrimSpace(envelope.Error) != "" {
			message = strings.TrimSpace(envelope.Error)
		}
		return domain.Dialogue{}, errRejected(status, message)
	}
	if decodeErr != nil {
		return domain.Dialogue{}, errMalformed(status, decodeErr)
	}
	if !envelope.Success {
		message := strings.TrimSpace(envelope.Error)
		if message == "" {
			message = "upload failed"
		}
		return domain.Dialogue{}, errRejected(status, message)
	}
	if envelope.Data == nil || envelope.Data.Dialogue == nil || envelope.Data.Dialogue.ID == "" {
		return domain.Dialogue{}, errMalformed(status, errors.New("response did not include the created dialogue"))
	}
	return *envelope.Data.Dialogue, nil
}

func statusAccepted(status int, accept []int) bool {
	for _, code := range accept {
		if status == code {
			return true
		}
	}
	return false
}

type formField struct {
	name  string
	value string
}

type formFile struct {
	field    string
	name     string
	mimeType string
	size     int64
	body     io.Reader
}

// buildMultipart lays out the form so the file streams from its reader while
// the total length is still known up front.
func buildMultipart(fields []formField, file *formFile) (io.Reader, int64, string, error) {
	var head bytes.Buffer
	writer := multipart.NewWriter(&head)
	for _, field := range fields {
		if err := writer.WriteField(field.name, field.value); err != nil {
			return nil, 0, "", fmt.Errorf("failed to write form field %q: %w", field.name, err)
		}
	}

	if file == nil {
		if err := writer.Close(); err != nil {
			return nil, 0, "", fmt.Errorf("failed to finish form: %w", err)
		}
		return bytes.NewReader(head.Bytes()), int64(head.Len()), writer.FormDataContentType(), nil
	}

	mimeType := file.mimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.name))
	header.Set("Content-Type", mimeType)
	if _, err := writer.CreatePart(header); err != nil {
		return nil, 0, "", fmt.Errorf("failed to write file header: %w", err)
	}
	prefix := append([]byte(nil), head.Bytes()...)

	head.Reset()
	if err := writer.Close(); err != nil {
		return nil, 0, "", fmt.Errorf("failed to finish form: %w", err)
	}
	suffix := append([]byte(nil), head.Bytes()...)

	body := io.MultiReader(bytes.NewReader(prefix), io.LimitReader(file.body, file.size), bytes.NewReader(suffix))
	length := int64(len(prefix)) + file.size + int64(len(suffix))
	return body, length, writer.FormDataContentType(), nil
}

package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dialoguerec/internal/domain"
)

// TokenSource supplies the bearer token attached to each request.
type TokenSource interface {
	Token() (string, bool)
}

// Client reads avatar templates and per-dialogue suggestions.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	timeout time.Duration
	logger  *zap.Logger
}

func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource, timeout time.Duration, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
		tokens:  tokens,
		timeout: timeout,
		logger:  logger,
	}
}

// ConfidenceBand buckets a suggestion confidence for display.
type ConfidenceBand string

const (
	ConfidenceHigh   ConfidenceBand = "high"
	ConfidenceMedium ConfidenceBand = "medium"
	ConfidenceLow    ConfidenceBand = "low"
)

// Band classifies confidence: >= 0.8 high, >= 0.6 medium, otherwise low.
func Band(confidence float64) ConfidenceBand {
	switch {
	case confidence >= 0.8:
		return ConfidenceHigh
	case confidence >= 0.6:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Selection is the template picker's initial state for a dialogue.
type Selection struct {
	Templates  []domain.Template         `json:"templates"`
	Suggestion domain.TemplateSuggestion `json:"suggestion"`
	SelectedID string                    `json:"selectedId"`
	Band       ConfidenceBand            `json:"band"`
}

// List returns all templates.
func (c *Client) List(ctx context.Context) ([]domain.Template, error) {
	var body struct {
		Templates []domain.Template `json:"templates"`
	}
	if err := c.get(ctx, "/api/templates", &body); err != nil {
		return nil, fmt.Errorf("failed to fetch templates: %w", err)
	}
	return body.Templates, nil
}

// Suggest returns the server's template pick for a dialogue.
func (c *Client) Suggest(ctx context.Context, dialogueID string) (domain.TemplateSuggestion, error) {
	dialogueID = strings.TrimSpace(dialogueID)
	if dialogueID == "" {
		return domain.TemplateSuggestion{}, errors.New("dialogue id is required")
	}
	var body struct {
		Suggestion *domain.TemplateSuggestion `json:"suggestion"`
	}
	if err := c.get(ctx, "/api/templates/suggest/"+url.PathEscape(dialogueID), &body); err != nil {
		return domain.TemplateSuggestion{}, fmt.Errorf("failed to fetch template suggestion: %w", err)
	}
	if body.Suggestion == nil {
		return domain.TemplateSuggestion{}, errors.New("failed to fetch template suggestion: response had no suggestion")
	}
	return *body.Suggestion, nil
}

// LoadSelection fetches templates and the suggestion concurrently and
// pre-selects the suggested template.
func (c *Client) LoadSelection(ctx context.Context, dialogueID string) (Selection, error) {
	var (
		list       []domain.Template
		suggestion domain.TemplateSuggestion
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		list, err = c.List(groupCtx)
		return err
	})
	group.Go(func() error {
		var err error
		suggestion, err = c.Suggest(groupCtx, dialogueID)
		return err
	})
	if err := group.Wait(); err != nil {
		return Selection{}, err
	}

	c.logger.Debug("template selection loaded",
		zap.String("dialogue", dialogueID),
		zap.Int("templates", len(list)),
		zap.String("suggested", suggestion.TemplateID),
		zap.Float64("confidence", suggestion.Confidence),
	)
	return Selection{
		Templates:  list,
		Suggestion: suggestion,
		SelectedID: suggestion.TemplateID,
		Band:       Band(suggestion.Confidence),
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.baseURL == "" {
		return errors.New("dialogue service base URL is not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(out); err != nil {
		return fmt.Errorf("invalid response body: %w", err)
	}
	return nil
}

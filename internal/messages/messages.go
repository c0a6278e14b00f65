package messages

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"dialoguerec/internal/domain"
)

//go:embed locales/*.json
var locales embed.FS

const unknownID = "unknown"

// Catalog renders user-facing text for error codes and state reasons.
type Catalog struct {
	locale    string
	localizer *i18n.Localizer
}

// New loads the embedded catalogs. Unknown locales fall back to English.
func New(locale string) (*Catalog, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	for _, file := range []string{"locales/en.json", "locales/he.json"} {
		if _, err := bundle.LoadMessageFileFS(locales, file); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	locale = strings.TrimSpace(locale)
	if locale == "" {
		locale = language.English.String()
	}
	return &Catalog{
		locale:    locale,
		localizer: i18n.NewLocalizer(bundle, locale, language.English.String()),
	}, nil
}

// Locale returns the requested locale.
func (c *Catalog) Locale() string {
	return c.locale
}

// Error renders a message for a failure code. Codes with a placeholder embed
// detail; the rest ignore it.
func (c *Catalog) Error(code domain.ErrorCode, detail string) string {
	detail = strings.TrimSpace(detail)
	if text, ok := c.localize(string(code), detail); ok {
		return text
	}
	if detail == "" {
		detail = string(code)
	}
	text, _ := c.localize(unknownID, detail)
	return text
}

// State renders the status line for a transition reason.
func (c *Catalog) State(reason domain.SessionStateReason) string {
	text, _ := c.localize("state_"+string(reason), "")
	return text
}

func (c *Catalog) localize(id, detail string) (string, bool) {
	text, err := c.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: map[string]string{"Detail": detail},
	})
	if err != nil || text == "" {
		return "", false
	}
	return text, true
}

package validation

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/bep/debounce"

	"dialoguerec/internal/domain"
)

// Detection is the outcome of one debounced language scan.
type Detection struct {
	Language   domain.Language `json:"language"`
	Words      int             `json:"words"`
	Characters int             `json:"characters"`
}

// LanguageDetector re-runs detection after a quiet period following the last
// content change. Only the latest content is scanned.
type LanguageDetector struct {
	debounced func(f func())
	onDetect  func(Detection)

	mu      sync.Mutex
	content string
}

func NewLanguageDetector(quiet time.Duration, onDetect func(Detection)) *LanguageDetector {
	if quiet <= 0 {
		quiet = time.Second
	}
	return &LanguageDetector{
		debounced: debounce.New(quiet),
		onDetect:  onDetect,
	}
}

// Update records new content and schedules a scan.
func (d *LanguageDetector) Update(content string) {
	d.mu.Lock()
	d.content = content
	d.mu.Unlock()

	d.debounced(d.scan)
}

func (d *LanguageDetector) scan() {
	d.mu.Lock()
	content := d.content
	d.mu.Unlock()

	detection := Detection{
		Words:      CountWords(content),
		Characters: utf8.RuneCountInString(content),
	}
	if strings.TrimSpace(content) != "" {
		detection.Language = DetectLanguage(content)
	}
	if d.onDetect != nil {
		d.onDetect(detection)
	}
}

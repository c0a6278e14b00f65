package validation

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/wailsapp/mimetype"

	"dialoguerec/internal/domain"
)

const (
	MaxTitleLength       = 255
	MaxFileSize          = 100 * 1024 * 1024
	MinTranscriptWords   = 10
	MaxTranscriptLength  = 10000
	genericBinaryMIME    = "application/octet-stream"
	maxFileSizeHumanized = "100MB"
)

var allowedAudioTypes = map[string]bool{
	"audio/mpeg":  true,
	"audio/mp3":   true,
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/wave":  true,
	"audio/m4a":   true,
	"audio/x-m4a": true,
	"audio/mp4":   true,
	"audio/ogg":   true,
	"audio/aac":   true,
	"audio/webm":  true,
}

var allowedVideoTypes = map[string]bool{
	"video/mp4":        true,
	"video/mov":        true,
	"video/quicktime":  true,
	"video/avi":        true,
	"video/x-msvideo":  true,
	"video/webm":       true,
	"video/mkv":        true,
	"video/x-matroska": true,
}

// genericContainers are sniff results too vague to overrule the extension.
var genericContainers = map[string]bool{
	genericBinaryMIME: true,
	"application/ogg": true,
}

var allowedExtensions = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/m4a",
	".ogg":  "audio/ogg",
	".aac":  "audio/aac",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/avi",
	".webm": "video/webm",
	".mkv":  "video/mkv",
}

// Error is a rejected user action. It is returned before any side effect.
type Error struct {
	Code    domain.ErrorCode
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches validation errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func newError(code domain.ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Sentinel values for errors.Is.
var (
	ErrTitleMissing        = &Error{Code: domain.ErrorCodeTitleMissing}
	ErrFileTooLarge        = &Error{Code: domain.ErrorCodeFileTooLarge}
	ErrUnsupportedType     = &Error{Code: domain.ErrorCodeUnsupportedType}
	ErrTranscriptTooShort  = &Error{Code: domain.ErrorCodeTranscriptTooShort}
	ErrUnsupportedLanguage = &Error{Code: domain.ErrorCodeUnsupportedLanguage}
)

// Title requires a non-blank title of bounded length.
func Title(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return newError(domain.ErrorCodeTitleMissing, "please enter a title first")
	}
	if utf8.RuneCountInString(trimmed) > MaxTitleLength {
		return newError(domain.ErrorCodeTitleTooLong, "title must be at most %d characters", MaxTitleLength)
	}
	return nil
}

// FileCandidate describes a file picked for upload. Head holds the first bytes
// of the file and is used when the declared type is missing.
type FileCandidate struct {
	Name     string
	MIMEType string
	Size     int64
	Head     []byte
}

// File checks size and type and returns the effective MIME type.
func File(candidate FileCandidate) (string, error) {
	if candidate.Size > MaxFileSize {
		return "", newError(domain.ErrorCodeFileTooLarge,
			"file too large (%s). Maximum size is %s", HumanSize(candidate.Size), maxFileSizeHumanized)
	}
	if candidate.Size <= 0 {
		return "", newError(domain.ErrorCodeUnsupportedType, "file %q is empty", candidate.Name)
	}

	mimeType := normalizeMIME(candidate.MIMEType)
	if mimeType == "" || mimeType == genericBinaryMIME {
		mimeType = sniffMIME(candidate)
	}
	if !IsAllowedMIME(mimeType) {
		return "", newError(domain.ErrorCodeUnsupportedType,
			"unsupported file type %q. Please upload audio (MP3, WAV, M4A, OGG) or video (MP4, MOV, AVI, WebM) files", displayType(mimeType, candidate.Name))
	}
	return mimeType, nil
}

// IsAllowedMIME reports whether the type is on the audio/video allow-list.
func IsAllowedMIME(mimeType string) bool {
	mimeType = normalizeMIME(mimeType)
	return allowedAudioTypes[mimeType] || allowedVideoTypes[mimeType]
}

// IsAudio reports whether the type is an allowed audio type.
func IsAudio(mimeType string) bool {
	return allowedAudioTypes[normalizeMIME(mimeType)]
}

func sniffMIME(candidate FileCandidate) string {
	if len(candidate.Head) > 0 {
		if detected := mimetype.Detect(candidate.Head); detected != nil {
			sniffed := normalizeMIME(detected.String())
			if IsAllowedMIME(sniffed) {
				return sniffed
			}
			// Content identified as something else wins over the extension.
			if !genericContainers[sniffed] {
				return sniffed
			}
		}
	}
	ext := strings.ToLower(filepath.Ext(candidate.Name))
	if byExt, ok := allowedExtensions[ext]; ok {
		return byExt
	}
	return ""
}

func normalizeMIME(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(value)
	}
	return mediaType
}

func displayType(mimeType, name string) string {
	if mimeType != "" {
		return mimeType
	}
	if ext := filepath.Ext(name); ext != "" {
		return ext
	}
	return "unknown"
}

// HumanSize formats a byte count the way the upload view shows it.
func HumanSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB"}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	formatted := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", value), "0"), ".")
	return formatted + " " + units[i]
}

// TranscriptResult carries the counts computed while validating a transcript.
type TranscriptResult struct {
	Language   domain.Language
	Words      int
	Characters int
}

// Transcript validates pasted dialogue text.
func Transcript(content string) (TranscriptResult, error) {
	result := TranscriptResult{
		Words:      CountWords(content),
		Characters: utf8.RuneCountInString(content),
	}
	if strings.TrimSpace(content) == "" {
		return result, newError(domain.ErrorCodeTranscriptEmpty, "please enter your transcript")
	}
	if result.Characters > MaxTranscriptLength {
		return result, newError(domain.ErrorCodeTranscriptTooLong,
			"transcript must be at most %d characters", MaxTranscriptLength)
	}
	if result.Words < MinTranscriptWords {
		return result, newError(domain.ErrorCodeTranscriptTooShort,
			"transcript must be at least %d words (got %d)", MinTranscriptWords, result.Words)
	}
	result.Language = DetectLanguage(content)
	if result.Language == domain.LanguageUnsupported {
		return result, newError(domain.ErrorCodeUnsupportedLanguage, "please provide text in English or Hebrew")
	}
	return result, nil
}

// CountWords counts whitespace separated words.
func CountWords(content string) int {
	return len(strings.Fields(content))
}

// DetectLanguage is a character-range heuristic: any Hebrew block rune wins,
// then any ASCII letter means English.
func DetectLanguage(content string) domain.Language {
	latin := false
	for _, r := range content {
		if r >= 0x0590 && r <= 0x05FF {
			return domain.LanguageHebrew
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			latin = true
		}
	}
	if latin {
		return domain.LanguageEnglish
	}
	return domain.LanguageUnsupported
}

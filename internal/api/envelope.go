package api

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Envelope is the response shape shared by every dialogue service endpoint.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Paginated is the envelope variant returned by list endpoints.
type Paginated[T any] struct {
	Success    bool       `json:"success"`
	Data       []T        `json:"data"`
	Error      string     `json:"error,omitempty"`
	Message    string     `json:"message,omitempty"`
	Pagination Pagination `json:"pagination"`
}

// PageInfo is the derived pagination arithmetic.
type PageInfo struct {
	Pagination
	Offset  int  `json:"offset"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

// CalculatePagination derives page counts and neighbours. A non-positive
// limit yields zero pages.
func CalculatePagination(page, limit, total int) PageInfo {
	info := PageInfo{Pagination: Pagination{Page: page, Limit: limit, Total: total}}
	if limit > 0 {
		info.TotalPages = (total + limit - 1) / limit
		info.Offset = (page - 1) * limit
	}
	if info.Offset < 0 {
		info.Offset = 0
	}
	info.HasNext = page < info.TotalPages
	info.HasPrev = page > 1
	return info
}

// Success wraps data in a successful envelope.
func Success[T any](data T, message string) Envelope[T] {
	return Envelope[T]{Success: true, Data: &data, Message: message}
}

// Failure wraps an error message in a failed envelope.
func Failure[T any](message string) Envelope[T] {
	return Envelope[T]{Success: false, Error: message}
}

// GenerateFileName names a stored upload as <userID>_<unix millis>.<ext>.
func GenerateFileName(originalName, userID string, now time.Time) string {
	ext := strings.TrimPrefix(filepath.Ext(originalName), ".")
	if ext == "" {
		ext = filepath.Base(originalName)
	}
	return fmt.Sprintf("%s_%d.%s", userID, now.UnixMilli(), ext)
}

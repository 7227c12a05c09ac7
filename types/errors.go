package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorMarkerPrefix is how some extraction services report failure in-band.
const ErrorMarkerPrefix = "Error:"

var (
	ErrUnsupportedCategory = errors.New("unsupported media type")
	ErrEmptyContent        = errors.New("no text could be extracted")
)

// IsErrorMarker reports whether extracted text is actually a failure report.
func IsErrorMarker(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), ErrorMarkerPrefix)
}

// ExtractionError means the media could not be turned into text. Nothing is stored.
type ExtractionError struct {
	Category Category
	Source   string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s from %s: %v", e.Category, e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StorageError wraps insert, select and delete failures of the chunk table.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

type SearchServiceError struct {
	Err error
}

func (e *SearchServiceError) Error() string {
	return fmt.Sprintf("search service: %v", e.Err)
}

func (e *SearchServiceError) Unwrap() error { return e.Err }

type CompletionServiceError struct {
	Model string
	Err   error
}

func (e *CompletionServiceError) Error() string {
	return fmt.Sprintf("completion service (%s): %v", e.Model, e.Err)
}

func (e *CompletionServiceError) Unwrap() error { return e.Err }

// SpeechError is reported when text-to-speech fails. It never fails a chat turn.
type SpeechError struct {
	Err error
}

func (e *SpeechError) Error() string {
	return fmt.Sprintf("speech synthesis: %v", e.Err)
}

func (e *SpeechError) Unwrap() error { return e.Err }

package preview

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPages is returned when a document parses but yields nothing to show.
	ErrNoPages = errors.New("no pages available for preview")

	ErrAlreadyLoaded  = errors.New("preview session already loaded")
	ErrSessionClosed  = errors.New("preview session closed")
	ErrPageOutOfRange = errors.New("page out of range")
	ErrInvalidPageCap = errors.New("page cap must be positive")
)

// MissingSourceError means there is no source document to preview.
type MissingSourceError struct{}

func (e *MissingSourceError) Error() string {
	return "no source document reference"
}

// FetchKind classifies why a download failed.
type FetchKind string

const (
	FetchNotFound         FetchKind = "not_found"
	FetchPermissionDenied FetchKind = "permission_denied"
	FetchNetwork          FetchKind = "network"
	FetchTooLarge         FetchKind = "too_large"
)

// FetchError wraps a storage failure while downloading the source document.
type FetchError struct {
	Source SourceRef
	Kind   FetchKind
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s (%s): %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means the bytes are not a readable document.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse document: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Reason maps a pipeline failure to the message shown in the preview dialog.
func Reason(err error) string {
	var (
		missing *MissingSourceError
		fetch   *FetchError
		parse   *ParseError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &missing):
		return "لا يتوفر ملف لمعاينة هذا الكتاب"
	case errors.As(err, &fetch):
		if fetch.Kind == FetchNotFound {
			return "ملف الكتاب غير موجود"
		}
		if fetch.Kind == FetchPermissionDenied {
			return "لا تملك صلاحية الوصول إلى ملف الكتاب"
		}
		if fetch.Kind == FetchTooLarge {
			return "ملف الكتاب أكبر من أن تتم معاينته"
		}
		return "تعذر تحميل ملف الكتاب"
	case errors.As(err, &parse), errors.Is(err, ErrNoPages):
		return "تعذر عرض معاينة الكتاب"
	default:
		return "حدث خطأ أثناء تحميل المعاينة"
	}
}

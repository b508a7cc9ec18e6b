package models

// These structs define the JSON payloads for the preview HTTP function and
// the storage event consumed by the indexer.

// OpenPreviewRequest opens a preview dialog for a book. DialogID identifies
// the client dialog instance; a signed-in viewer reopening with the same
// DialogID replaces their previous session.
type OpenPreviewRequest struct {
	BookID   string `json:"bookId" validate:"required,max=128"`
	DialogID string `json:"dialogId" validate:"required,max=128"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// GCSEvent is the payload of a GCS object.finalized event.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        string `json:"size"`
}

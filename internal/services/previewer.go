package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/go-playground/validator/v10"

	"github.com/Lllllllleong/bookpreview/internal/catalog"
	"github.com/Lllllllleong/bookpreview/internal/gcp"
	"github.com/Lllllllleong/bookpreview/internal/identity"
	"github.com/Lllllllleong/bookpreview/internal/models"
	"github.com/Lllllllleong/bookpreview/internal/pdfdoc"
	"github.com/Lllllllleong/bookpreview/internal/preview"
)

// PreviewerConfig holds all configuration for the book-preview service.
type PreviewerConfig struct {
	ProjectID          string        `validate:"required"`
	BooksCollection    string        `validate:"required"`
	ProfilesCollection string        `validate:"required"`
	JWTSecret          string        `validate:"required"`
	PageCap            int           `validate:"min=1"`
	Scale              float64       `validate:"gt=0,lte=4"`
	JPEGQuality        int           `validate:"min=1,max=100"`
	Concurrency        int           `validate:"min=1"`
	SessionTTL         time.Duration `validate:"gt=0"`
	MaxSourceBytes     int64         `validate:"min=0"`
}

// PreviewerFunction serves bounded book previews over HTTP.
type PreviewerFunction struct {
	books    catalog.Store
	viewers  identity.Lookup
	sessions *preview.Manager
	validate *validator.Validate
	config   PreviewerConfig
}

func loadPreviewerConfig(v *validator.Validate) (*PreviewerConfig, error) {
	cfg := &PreviewerConfig{
		ProjectID:          gcp.GetEnv("PROJECT_ID", ""),
		BooksCollection:    gcp.GetEnv("BOOKS_COLLECTION", "books"),
		ProfilesCollection: gcp.GetEnv("PROFILES_COLLECTION", "profiles"),
		JWTSecret:          gcp.GetEnv("AUTH_JWT_SECRET", ""),
		PageCap:            gcp.GetEnvInt("PREVIEW_PAGE_CAP", 3),
		Scale:              gcp.GetEnvFloat("PREVIEW_SCALE", preview.DefaultScale),
		JPEGQuality:        gcp.GetEnvInt("PREVIEW_JPEG_QUALITY", preview.DefaultJPEGQuality),
		Concurrency:        gcp.GetEnvInt("PREVIEW_CONCURRENCY", preview.DefaultConcurrency),
		SessionTTL:         gcp.GetEnvDuration("PREVIEW_SESSION_TTL", preview.DefaultSessionTTL),
		MaxSourceBytes:     int64(gcp.GetEnvInt("PREVIEW_MAX_SOURCE_BYTES", 200<<20)),
	}
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid preview configuration: %w", err)
	}
	return cfg, nil
}

// NewPreviewer creates a PreviewerFunction backed by Cloud Storage and Firestore.
func NewPreviewer(ctx context.Context) (*PreviewerFunction, error) {
	v := validator.New()
	config, err := loadPreviewerConfig(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	pipeline := &preview.Pipeline{
		Fetcher: gcp.NewStorageFetcher(storageClient, config.MaxSourceBytes),
		Parser:  pdfdoc.NewFitzParser(),
		Rasterizer: &preview.Rasterizer{
			Scale:            config.Scale,
			Quality:          config.JPEGQuality,
			Concurrency:      config.Concurrency,
			MaxSurfacePixels: preview.DefaultMaxSurfacePixels,
		},
	}
	books := catalog.NewRepository(firestoreClient, config.BooksCollection)
	viewers := identity.NewTokenLookup(config.JWTSecret, identity.NewFirestoreRoles(firestoreClient, config.ProfilesCollection))

	f := NewPreviewerWith(*config, books, viewers, pipeline)
	slog.Info("Book preview logic initialized.", "pageCap", config.PageCap, "scale", config.Scale, "sessionTtl", config.SessionTTL.String())
	return f, nil
}

// NewPreviewerWith wires a PreviewerFunction from explicit collaborators.
func NewPreviewerWith(config PreviewerConfig, books catalog.Store, viewers identity.Lookup, pipeline *preview.Pipeline) *PreviewerFunction {
	return &PreviewerFunction{
		books:    books,
		viewers:  viewers,
		sessions: preview.NewManager(pipeline, config.SessionTTL, preview.DefaultSessionCleanup),
		validate: validator.New(),
		config:   config,
	}
}

// Handler returns the HTTP routes of the preview API.
func (f *PreviewerFunction) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /previews", f.handleOpen)
	mux.HandleFunc("GET /previews/{id}", f.withSession(f.handleView))
	mux.HandleFunc("POST /previews/{id}/advance", f.withSession(f.handleAdvance))
	mux.HandleFunc("POST /previews/{id}/retreat", f.withSession(f.handleRetreat))
	mux.HandleFunc("GET /previews/{id}/pages/{n}", f.withSession(f.handlePage))
	mux.HandleFunc("DELETE /previews/{id}", f.handleClose)
	return mux
}

func (f *PreviewerFunction) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req models.OpenPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		writeError(w, http.StatusBadRequest, "could not parse JSON", nil)
		return
	}
	if err := f.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request", validationDetails(err))
		return
	}
	logCtx := slog.With("bookId", req.BookID, "dialogId", req.DialogID)

	viewer, ok := f.resolveViewer(w, r, logCtx)
	if !ok {
		return
	}

	book, err := f.books.Get(r.Context(), req.BookID)
	if err != nil {
		if errors.Is(err, catalog.ErrBookNotFound) {
			writeError(w, http.StatusNotFound, "book not found", nil)
			return
		}
		logCtx.Error("Failed to load book", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load book", nil)
		return
	}
	if !book.IsPublished() && !viewer.IsAdmin() {
		logCtx.Info("Refused preview of unpublished book.", "userId", viewer.UserID)
		writeError(w, http.StatusForbidden, "book is not published", nil)
		return
	}

	src := preview.SourceRef{Bucket: book.SourceBucket, Path: book.SourcePath}
	session, err := f.sessions.Open(r.Context(), viewer.UserID, dialogKey(viewer, req.DialogID), src, f.pageCap(book))
	if err != nil {
		if errors.Is(err, preview.ErrSessionClosed) {
			writeError(w, http.StatusConflict, "preview superseded by a newer request", nil)
			return
		}
		logCtx.Error("Failed to open preview session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to open preview", nil)
		return
	}
	code := http.StatusCreated
	if session.State() == preview.StateFailed {
		code = http.StatusOK
	}
	writeJSON(w, code, session.View())
}

// resolveViewer identifies the caller, writing 401 or 500 when it cannot.
func (f *PreviewerFunction) resolveViewer(w http.ResponseWriter, r *http.Request, logCtx *slog.Logger) (identity.Viewer, bool) {
	viewer, err := f.viewers.Resolve(r.Context(), identity.BearerToken(r))
	if err == nil {
		return viewer, true
	}
	if errors.Is(err, identity.ErrInvalidToken) {
		logCtx.Warn("Rejected preview request with invalid token.", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid token", nil)
		return identity.Anonymous, false
	}
	logCtx.Error("Failed to resolve viewer", "error", err)
	writeError(w, http.StatusInternalServerError, "failed to resolve viewer", nil)
	return identity.Anonymous, false
}

func (f *PreviewerFunction) pageCap(book *models.Book) int {
	if book.PreviewPageCap > 0 {
		return book.PreviewPageCap
	}
	return f.config.PageCap
}

// dialogKey scopes client dialog ids to the viewer. Anonymous visitors cannot
// be told apart, so their opens get no key and never supersede each other.
func dialogKey(v identity.Viewer, dialogID string) string {
	if !v.Authenticated() {
		return ""
	}
	return v.UserID + "/" + dialogID
}

// withSession resolves the caller and the session it owns. Sessions owned by
// someone else are reported as not found.
func (f *PreviewerFunction) withSession(next func(http.ResponseWriter, *http.Request, *preview.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		viewer, ok := f.resolveViewer(w, r, slog.With("sessionId", id))
		if !ok {
			return
		}
		session, ok := f.sessions.Get(id, viewer.UserID)
		if !ok {
			writeError(w, http.StatusNotFound, "preview session not found", nil)
			return
		}
		next(w, r, session)
	}
}

func (f *PreviewerFunction) handleView(w http.ResponseWriter, _ *http.Request, s *preview.Session) {
	writeJSON(w, http.StatusOK, s.View())
}

func (f *PreviewerFunction) handleAdvance(w http.ResponseWriter, _ *http.Request, s *preview.Session) {
	s.Advance()
	writeJSON(w, http.StatusOK, s.View())
}

func (f *PreviewerFunction) handleRetreat(w http.ResponseWriter, _ *http.Request, s *preview.Session) {
	s.Retreat()
	writeJSON(w, http.StatusOK, s.View())
}

func (f *PreviewerFunction) handlePage(w http.ResponseWriter, r *http.Request, s *preview.Session) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be a number", nil)
		return
	}
	page, err := s.Page(n)
	if err != nil {
		writeError(w, http.StatusNotFound, "page not available", nil)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(page.JPEG)))
	if _, err := w.Write(page.JPEG); err != nil {
		slog.Warn("Failed to write page image", "sessionId", s.ID(), "page", n, "error", err)
	}
}

func (f *PreviewerFunction) handleClose(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	viewer, ok := f.resolveViewer(w, r, slog.With("sessionId", id))
	if !ok {
		return
	}
	if !f.sessions.Close(id, viewer.UserID) {
		writeError(w, http.StatusNotFound, "preview session not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string, details map[string]string) {
	writeJSON(w, code, models.ErrorResponse{Error: msg, Details: details})
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

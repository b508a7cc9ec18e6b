package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/bookpreview/internal/services"
)

var (
	previewHandler http.Handler
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleBookPreview", handleBookPreview)
}

func main() {}

// handleBookPreview is the HTTP entry point for the preview API.
func handleBookPreview(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		var f *services.PreviewerFunction
		f, initErr = services.NewPreviewer(context.Background())
		if initErr == nil {
			previewHandler = f.Handler()
		}
	})
	if initErr != nil {
		slog.Error("Critical: Previewer initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	previewHandler.ServeHTTP(w, r)
}

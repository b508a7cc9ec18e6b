// Command local serves the preview and indexer functions from one process for
// development. Set FUNCTION_TARGET to serve a single function at "/".
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"

	"github.com/Lllllllleong/bookpreview/internal/gcp"
	"github.com/Lllllllleong/bookpreview/internal/models"
	"github.com/Lllllllleong/bookpreview/internal/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "no .env file loaded:", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	ctx := context.Background()
	previewer, err := services.NewPreviewer(ctx)
	if err != nil {
		slog.Error("Failed to initialize previewer", "error", err)
		os.Exit(1)
	}
	indexer, err := services.NewIndexer(ctx)
	if err != nil {
		slog.Error("Failed to initialize indexer", "error", err)
		os.Exit(1)
	}

	functions.HTTP("HandleBookPreview", previewer.Handler().ServeHTTP)
	functions.CloudEvent("IndexBookSource", func(ctx context.Context, e cloudevents.Event) error {
		var gcsEvent models.GCSEvent
		if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
			return fmt.Errorf("json.Unmarshal: %w", err)
		}
		return indexer.Process(ctx, gcsEvent)
	})

	port := gcp.GetEnv("PORT", "8080")
	slog.Info("Serving functions locally.", "port", port)
	if err := funcframework.Start(port); err != nil {
		slog.Error("funcframework.Start failed", "error", err)
		os.Exit(1)
	}
}

package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/bookpreview/internal/preview"
)

const (
	saveMaxRetries = 4
	saveTimeout    = 50 * time.Second
)

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
// Transient failures are retried with exponential backoff.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < saveMaxRetries; i++ {
		err := writeIfAbsent(ctx, bucket, objectName, contentType, content)
		if err == nil {
			return nil
		}
		if isPreconditionFailed(err) {
			slog.Info("Object already exists; skipping write.", "gcsObject", objectName)
			return nil
		}

		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", objectName,
			"attempt", i+1,
			"maxRetries", saveMaxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", objectName, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", objectName, "error", lastErr)
	return fmt.Errorf("upload for %s failed after all retries: %w", objectName, lastErr)
}

func writeIfAbsent(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(writeCtx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// StorageFetcher downloads book sources from Cloud Storage. It does not retry:
// a failed download fails the preview session.
type StorageFetcher struct {
	client   *storage.Client
	maxBytes int64
}

// NewStorageFetcher returns a fetcher refusing objects above maxBytes
// (0 disables the limit).
func NewStorageFetcher(client *storage.Client, maxBytes int64) *StorageFetcher {
	return &StorageFetcher{client: client, maxBytes: maxBytes}
}

func (f *StorageFetcher) Fetch(ctx context.Context, src preview.SourceRef) ([]byte, error) {
	r, err := f.client.Bucket(src.Bucket).Object(src.Path).NewReader(ctx)
	if err != nil {
		return nil, ClassifyFetchError(src, err)
	}
	defer r.Close()

	if f.maxBytes > 0 && r.Attrs.Size > f.maxBytes {
		return nil, &preview.FetchError{
			Source: src,
			Kind:   preview.FetchTooLarge,
			Err:    fmt.Errorf("object is %d bytes, limit %d", r.Attrs.Size, f.maxBytes),
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ClassifyFetchError(src, err)
	}
	return data, nil
}

// ClassifyFetchError wraps a storage error in a *preview.FetchError.
func ClassifyFetchError(src preview.SourceRef, err error) error {
	kind := preview.FetchNetwork
	var gerr *googleapi.Error
	switch {
	case errors.Is(err, storage.ErrObjectNotExist), errors.Is(err, storage.ErrBucketNotExist):
		kind = preview.FetchNotFound
	case errors.As(err, &gerr):
		switch gerr.Code {
		case http.StatusNotFound:
			kind = preview.FetchNotFound
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = preview.FetchPermissionDenied
		}
	}
	return &preview.FetchError{Source: src, Kind: kind, Err: err}
}

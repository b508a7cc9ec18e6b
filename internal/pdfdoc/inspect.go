package pdfdoc

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Info is what the indexer records about an uploaded book source.
type Info struct {
	PageCount int
	FileHash  string
	Size      int
}

func relaxedConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// Inspect validates a PDF in relaxed mode and counts its pages.
func Inspect(data []byte) (*Info, error) {
	cfg := relaxedConfig()
	if err := api.Validate(bytes.NewReader(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to validate PDF: %w", err)
	}
	pageCount, err := api.PageCount(bytes.NewReader(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	return &Info{
		PageCount: pageCount,
		FileHash:  Hash(data),
		Size:      len(data),
	}, nil
}

// Optimize rewrites a PDF with pdfcpu's optimizer, dropping duplicate
// resources. Preview rendering of the optimized file is cheaper.
func Optimize(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &out, relaxedConfig()); err != nil {
		return nil, fmt.Errorf("failed to optimize PDF: %w", err)
	}
	return out.Bytes(), nil
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

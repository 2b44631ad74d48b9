package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/stratos/foresight/internal/types"
	"go.uber.org/zap"
)

// NDJSONContentType is the media type of the /analyze response.
const NDJSONContentType = "application/x-ndjson"

// Analyze submits a request and returns the streaming response body. The
// caller must close it. Cancelling ctx aborts the body read.
func (c *Client) Analyze(ctx context.Context, req types.AnalysisRequest) (io.ReadCloser, error) {
	resp, err := c.postJSON(ctx, c.streamClient, "/analyze", req, NDJSONContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStream, err)
	}

	c.logger.Info("Analysis stream opened",
		zap.String("content_type", resp.Header.Get("Content-Type")),
		zap.String("region", req.Region),
		zap.String("time_frame", req.TimeFrame))

	return resp.Body, nil
}

// GeneratePDF asks the backend to build a report from per-agent payloads
// and returns the PDF bytes.
func (c *Client) GeneratePDF(ctx context.Context, req types.ExportRequest) ([]byte, error) {
	resp, err := c.postJSON(ctx, c.httpClient, "/generate-pdf", req, "application/pdf")
	if err != nil {
		return nil, fmt.Errorf("generate pdf: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("generate pdf: backend returned an empty document")
	}
	return data, nil
}

// PDFFilename returns the report file name for t.
func PDFFilename(t time.Time) string {
	return fmt.Sprintf("strategic_analysis_%s.pdf", t.Format("20060102_150405"))
}

// SavePDF writes data under dir and returns the full path.
func SavePDF(dir string, data []byte, now time.Time) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(dir, PDFFilename(now))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return path, nil
}

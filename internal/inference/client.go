// Package inference is the HTTP client for the external audio-separation
// backend. The backend is an opaque service; this package only mirrors its
// wire shapes and timeouts.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

// URLSource supplies the backend base URL. The client re-reads it on every
// request so that an admin swapping the active backend takes effect for
// requests issued after the swap, without rebuilding the client.
type URLSource func() string

// StaticURL returns a URLSource that always yields u. Handy in tests.
func StaticURL(u string) URLSource {
	return func() string { return u }
}

// Client talks to the inference backend's REST API.
type Client struct {
	base       URLSource
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client. timeout bounds every request except Download,
// which streams an audio payload and only bounds the connection via ctx.
func NewClient(base URLSource, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		base: base,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Health performs a GET against the backend health endpoint.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp, "health check")
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}

	return &health, nil
}

// Upload submits an audio file as a multipart form under the audio_file
// field and returns the backend-assigned task.
func (c *Client) Upload(ctx context.Context, filename string, audio io.Reader) (*UploadResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("audio_file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("failed to buffer audio payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/api/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp, "upload")
	}

	var upload UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&upload); err != nil {
		return nil, fmt.Errorf("failed to parse upload response: %w", err)
	}
	if upload.TaskID == "" {
		return nil, fmt.Errorf("upload response missing task_id")
	}

	c.logger.Debug("Upload accepted",
		zap.String("taskId", upload.TaskID),
		zap.Int64("fileSize", upload.FileSize))

	return &upload, nil
}

// TaskStatus fetches one status snapshot for a task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	statusURL := fmt.Sprintf("%s/api/status/%s", c.base(), taskID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp, "status check")
	}

	var status TaskStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}

	return &status, nil
}

// Download streams a completed task's processed audio. It returns the body,
// the filename advertised via Content-Disposition (or a derived fallback of
// the form {stem}_separated.wav), and the content type. The caller owns the
// returned ReadCloser.
func (c *Client) Download(ctx context.Context, taskID, originalFilename string) (io.ReadCloser, string, string, error) {
	downloadURL := fmt.Sprintf("%s/api/download/%s", c.base(), taskID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, "", "", fmt.Errorf("failed to create download request: %w", err)
	}

	// Bypass the client-wide timeout: result payloads can be large and
	// the context already bounds the request.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return nil, "", "", fmt.Errorf("download request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, "", "", decodeError(resp, "download")
	}

	filename := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if filename == "" {
		filename = derivedFilename(originalFilename)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/wav"
	}

	return resp.Body, filename, contentType, nil
}

// decodeError turns a non-2xx backend response into an error, preferring
// the backend's own {"error": "..."} message when present.
func decodeError(resp *http.Response, op string) error {
	var apiErr apiError
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s failed (HTTP %d): %s", op, resp.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("%s failed: unexpected HTTP status %d", op, resp.StatusCode)
}

func filenameFromDisposition(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// derivedFilename mirrors the backend's naming: {original-stem}_separated.wav.
func derivedFilename(originalFilename string) string {
	stem := strings.TrimSuffix(originalFilename, path.Ext(originalFilename))
	if stem == "" {
		stem = "audio"
	}
	return stem + "_separated.wav"
}

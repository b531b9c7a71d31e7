package assethost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/shilpkart/api/internal/platform/config"
)

// ErrNotConfigured is returned when the upload URL is missing from configuration.
var ErrNotConfigured = errors.New("assethost: client not configured")

// Error describes an upload failure with enough structure for callers to
// decide whether retrying can help. Transport failures and 5xx/429 responses
// are retryable; other 4xx responses are terminal.
type Error struct {
	StatusCode int
	Retryable  bool
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("assethost: upload failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("assethost: upload failed: %s", e.Message)
}

// Unwrap exposes the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsRetryable reports whether the error is worth retrying. Non-assethost
// errors are treated as retryable transport problems.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var uploadErr *Error
	if errors.As(err, &uploadErr) {
		return uploadErr.Retryable
	}
	return true
}

// UploadRequest carries one file to the external asset host.
type UploadRequest struct {
	FileName    string
	ContentType string
	Data        []byte
	Folder      string
}

// UploadResult is the asset host's record of a stored file.
type UploadResult struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Format    string `json:"format"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int64  `json:"bytes"`
}

// Client uploads customer artwork to the external asset host.
type Client struct {
	uploadURL string
	apiKey    string
	preset    string
	client    *http.Client
}

// Option customises Client behaviour.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for uploads.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// NewClient constructs an upload client from configuration.
func NewClient(cfg config.AssetHostConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &Client{
		uploadURL: strings.TrimSpace(cfg.UploadURL),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		preset:    strings.TrimSpace(cfg.UploadPreset),
		client:    &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client
}

// Upload sends one file as a multipart POST and decodes the host's response.
// It performs a single attempt; retry policy belongs to the caller.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if c == nil || c.uploadURL == "" {
		return UploadResult{}, ErrNotConfigured
	}
	if len(req.Data) == 0 {
		return UploadResult{}, &Error{Retryable: false, Message: "file data is empty"}
	}
	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		fileName = "upload"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return UploadResult{}, &Error{Retryable: false, Message: "build multipart body", Err: err}
	}
	if _, err := part.Write(req.Data); err != nil {
		return UploadResult{}, &Error{Retryable: false, Message: "write multipart body", Err: err}
	}
	if c.preset != "" {
		if err := writer.WriteField("upload_preset", c.preset); err != nil {
			return UploadResult{}, &Error{Retryable: false, Message: "write upload preset", Err: err}
		}
	}
	if folder := strings.TrimSpace(req.Folder); folder != "" {
		if err := writer.WriteField("folder", folder); err != nil {
			return UploadResult{}, &Error{Retryable: false, Message: "write folder field", Err: err}
		}
	}
	if err := writer.Close(); err != nil {
		return UploadResult{}, &Error{Retryable: false, Message: "finalise multipart body", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, body)
	if err != nil {
		return UploadResult{}, &Error{Retryable: false, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return UploadResult{}, &Error{Retryable: true, Message: "transport failure", Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return UploadResult{}, &Error{StatusCode: resp.StatusCode, Retryable: true, Message: "read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return UploadResult{}, &Error{
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
			Message:    summariseErrorBody(payload),
		}
	}

	var result UploadResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return UploadResult{}, &Error{StatusCode: resp.StatusCode, Retryable: false, Message: "decode response", Err: err}
	}
	if strings.TrimSpace(result.SecureURL) == "" {
		return UploadResult{}, &Error{StatusCode: resp.StatusCode, Retryable: false, Message: "response missing secure_url"}
	}
	return result, nil
}

func retryableStatus(code int) bool {
	if code >= 500 {
		return true
	}
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

func summariseErrorBody(payload []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil {
		if msg := strings.TrimSpace(envelope.Error.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(envelope.Message); msg != "" {
			return msg
		}
	}
	text := strings.TrimSpace(string(payload))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		text = "no response body"
	}
	return text
}

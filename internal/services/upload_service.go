package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"

	domain "github.com/shilpkart/api/internal/domain"
	"github.com/shilpkart/api/internal/platform/assethost"
)

const (
	defaultUploadAttempts  = 3
	defaultUploadBaseDelay = time.Second
)

// ErrUploadFailed indicates the asset host rejected the file, either
// terminally or after exhausting retries.
var ErrUploadFailed = errors.New("upload: failed")

// AssetUploader abstracts the asset-host client for testing. Each call is a
// single attempt; the retry policy lives here.
type AssetUploader interface {
	Upload(ctx context.Context, req assethost.UploadRequest) (assethost.UploadResult, error)
}

// UploadServiceDeps bundles the collaborators required to construct the upload service.
type UploadServiceDeps struct {
	Client    AssetUploader
	Folder    string
	Attempts  int
	BaseDelay time.Duration
	Sleep     func(ctx context.Context, d time.Duration) error
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type uploadService struct {
	client    AssetUploader
	folder    string
	attempts  int
	baseDelay time.Duration
	sleep     func(context.Context, time.Duration) error
	logger    func(context.Context, string, map[string]any)
}

// NewUploadService wires dependencies into a concrete UploadService implementation.
func NewUploadService(deps UploadServiceDeps) (UploadService, error) {
	if deps.Client == nil {
		return nil, errors.New("upload service: asset host client is required")
	}

	attempts := deps.Attempts
	if attempts <= 0 {
		attempts = defaultUploadAttempts
	}
	baseDelay := deps.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultUploadBaseDelay
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = gax.Sleep
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &uploadService{
		client:    deps.Client,
		folder:    strings.TrimSpace(deps.Folder),
		attempts:  attempts,
		baseDelay: baseDelay,
		sleep:     sleep,
		logger:    logger,
	}, nil
}

// UploadCustomizationImage pushes one artwork file to the asset host.
// Retryable failures (5xx, 429, transport) are retried with doubling delay:
// baseDelay before the 2nd attempt, 2x before the 3rd, no jitter. Terminal
// failures (4xx) abort immediately. Each attempt is a full upload; there is no
// partial-upload resumption.
func (s *uploadService) UploadCustomizationImage(ctx context.Context, file UploadFile, itemName string) (DesignAsset, error) {
	if len(file.Data) == 0 {
		return DesignAsset{}, fmt.Errorf("%w: %s: empty file", ErrUploadFailed, itemName)
	}

	req := assethost.UploadRequest{
		FileName:    file.FileName,
		ContentType: file.ContentType,
		Data:        file.Data,
		Folder:      s.folder,
	}

	var lastErr error
	delay := s.baseDelay
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, delay); err != nil {
				return DesignAsset{}, fmt.Errorf("%w: %s: %v", ErrUploadFailed, itemName, err)
			}
			delay *= 2
		}

		result, err := s.client.Upload(ctx, req)
		if err == nil {
			return domain.DesignAsset{
				URL:      result.SecureURL,
				PublicID: result.PublicID,
				Format:   result.Format,
				Width:    result.Width,
				Height:   result.Height,
				Bytes:    result.Bytes,
			}, nil
		}

		lastErr = err
		if !assethost.IsRetryable(err) {
			s.logger(ctx, "upload.terminal_failure", map[string]any{
				"item":    itemName,
				"file":    file.FileName,
				"attempt": attempt,
				"error":   err.Error(),
			})
			return DesignAsset{}, fmt.Errorf("%w: %s: %v", ErrUploadFailed, itemName, err)
		}

		s.logger(ctx, "upload.retryable_failure", map[string]any{
			"item":    itemName,
			"file":    file.FileName,
			"attempt": attempt,
			"error":   err.Error(),
		})
	}

	return DesignAsset{}, fmt.Errorf("%w: %s after %d attempts: %v", ErrUploadFailed, itemName, s.attempts, lastErr)
}

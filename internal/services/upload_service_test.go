package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shilpkart/api/internal/platform/assethost"
)

type stubAssetUploader struct {
	uploadFn func(ctx context.Context, req assethost.UploadRequest) (assethost.UploadResult, error)
}

func (s *stubAssetUploader) Upload(ctx context.Context, req assethost.UploadRequest) (assethost.UploadResult, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, req)
	}
	return assethost.UploadResult{}, errors.New("not implemented")
}

func newTestUploadService(t *testing.T, deps UploadServiceDeps) UploadService {
	t.Helper()
	svc, err := NewUploadService(deps)
	if err != nil {
		t.Fatalf("new upload service: %v", err)
	}
	return svc
}

func TestUploadCustomizationImageSuccess(t *testing.T) {
	client := &stubAssetUploader{}
	client.uploadFn = func(_ context.Context, req assethost.UploadRequest) (assethost.UploadResult, error) {
		if req.Folder != "customizations" {
			t.Fatalf("expected folder customizations, got %q", req.Folder)
		}
		if req.FileName != "logo.png" || req.ContentType != "image/png" {
			t.Fatalf("unexpected request %+v", req)
		}
		return assethost.UploadResult{
			SecureURL: "https://assets.example.com/v1/logo.png",
			PublicID:  "customizations/logo",
			Format:    "png",
			Width:     800,
			Height:    600,
			Bytes:     2048,
		}, nil
	}

	svc := newTestUploadService(t, UploadServiceDeps{Client: client, Folder: "customizations"})
	asset, err := svc.UploadCustomizationImage(context.Background(), UploadFile{
		FileName:    "logo.png",
		ContentType: "image/png",
		Data:        []byte{0x89, 0x50},
	}, "Brass Trophy")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if asset.URL != "https://assets.example.com/v1/logo.png" || asset.Bytes != 2048 {
		t.Fatalf("unexpected asset %+v", asset)
	}
}

func TestUploadCustomizationImageRetriesServerErrors(t *testing.T) {
	attempts := 0
	client := &stubAssetUploader{}
	client.uploadFn = func(_ context.Context, _ assethost.UploadRequest) (assethost.UploadResult, error) {
		attempts++
		if attempts < 3 {
			return assethost.UploadResult{}, &assethost.Error{StatusCode: 500, Message: "upstream hiccup", Retryable: true}
		}
		return assethost.UploadResult{SecureURL: "https://assets.example.com/ok.png"}, nil
	}

	var delays []time.Duration
	svc := newTestUploadService(t, UploadServiceDeps{
		Client:    client,
		BaseDelay: time.Second,
		Sleep: func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			return nil
		},
	})

	asset, err := svc.UploadCustomizationImage(context.Background(), UploadFile{
		FileName: "art.png",
		Data:     []byte{1},
	}, "Wood Plaque")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if asset.URL != "https://assets.example.com/ok.png" {
		t.Fatalf("unexpected asset %+v", asset)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(delays) != 2 || delays[0] != time.Second || delays[1] != 2*time.Second {
		t.Fatalf("expected 1s then 2s delays, got %v", delays)
	}
}

func TestUploadCustomizationImageExhaustsRetries(t *testing.T) {
	attempts := 0
	client := &stubAssetUploader{}
	client.uploadFn = func(_ context.Context, _ assethost.UploadRequest) (assethost.UploadResult, error) {
		attempts++
		return assethost.UploadResult{}, &assethost.Error{StatusCode: 503, Retryable: true}
	}

	svc := newTestUploadService(t, UploadServiceDeps{
		Client: client,
		Sleep:  func(context.Context, time.Duration) error { return nil },
	})

	_, err := svc.UploadCustomizationImage(context.Background(), UploadFile{
		FileName: "art.png",
		Data:     []byte{1},
	}, "Wood Plaque")
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestUploadCustomizationImageClientErrorIsTerminal(t *testing.T) {
	attempts := 0
	client := &stubAssetUploader{}
	client.uploadFn = func(_ context.Context, _ assethost.UploadRequest) (assethost.UploadResult, error) {
		attempts++
		return assethost.UploadResult{}, &assethost.Error{StatusCode: 400, Message: "unsupported format"}
	}

	slept := false
	svc := newTestUploadService(t, UploadServiceDeps{
		Client: client,
		Sleep: func(context.Context, time.Duration) error {
			slept = true
			return nil
		},
	})

	_, err := svc.UploadCustomizationImage(context.Background(), UploadFile{
		FileName: "art.bmp",
		Data:     []byte{1},
	}, "Wood Plaque")
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected single attempt for terminal failure, got %d", attempts)
	}
	if slept {
		t.Fatalf("terminal failure must not sleep")
	}
}

func TestUploadCustomizationImageTransportErrorIsRetryable(t *testing.T) {
	attempts := 0
	client := &stubAssetUploader{}
	client.uploadFn = func(_ context.Context, _ assethost.UploadRequest) (assethost.UploadResult, error) {
		attempts++
		if attempts == 1 {
			return assethost.UploadResult{}, errors.New("connection reset by peer")
		}
		return assethost.UploadResult{SecureURL: "https://assets.example.com/ok.png"}, nil
	}

	svc := newTestUploadService(t, UploadServiceDeps{
		Client: client,
		Sleep:  func(context.Context, time.Duration) error { return nil },
	})

	if _, err := svc.UploadCustomizationImage(context.Background(), UploadFile{
		FileName: "art.png",
		Data:     []byte{1},
	}, "Wood Plaque"); err != nil {
		t.Fatalf("expected transport error retry to succeed, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestUploadCustomizationImageRejectsEmptyFile(t *testing.T) {
	svc := newTestUploadService(t, UploadServiceDeps{Client: &stubAssetUploader{}})

	_, err := svc.UploadCustomizationImage(context.Background(), UploadFile{FileName: "empty.png"}, "Wood Plaque")
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected failure for empty file, got %v", err)
	}
}

func TestUploadCustomizationImageStopsWhenContextCancelled(t *testing.T) {
	client := &stubAssetUploader{}
	client.uploadFn = func(_ context.Context, _ assethost.UploadRequest) (assethost.UploadResult, error) {
		return assethost.UploadResult{}, &assethost.Error{StatusCode: 502, Retryable: true}
	}

	svc := newTestUploadService(t, UploadServiceDeps{
		Client: client,
		Sleep:  func(ctx context.Context, _ time.Duration) error { return context.Canceled },
	})

	_, err := svc.UploadCustomizationImage(context.Background(), UploadFile{
		FileName: "art.png",
		Data:     []byte{1},
	}, "Wood Plaque")
	if !errors.Is(err, ErrUploadFailed) {
		t.Fatalf("expected failure when sleep cancelled, got %v", err)
	}
}

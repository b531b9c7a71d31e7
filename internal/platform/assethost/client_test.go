package assethost

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shilpkart/api/internal/platform/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(config.AssetHostConfig{
		UploadURL:    server.URL,
		APIKey:       "test-key",
		UploadPreset: "customizations",
		Timeout:      5 * time.Second,
	})
	return client, server
}

func TestUploadSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart form: %v", err)
		}
		if got := r.FormValue("upload_preset"); got != "customizations" {
			t.Errorf("unexpected upload preset %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "logo.png" {
			t.Errorf("unexpected file name %q", header.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"secure_url":"https://cdn.example.com/logo.png","public_id":"custom/logo","format":"png","width":640,"height":480,"bytes":1234}`))
	})

	result, err := client.Upload(context.Background(), UploadRequest{
		FileName:    "logo.png",
		ContentType: "image/png",
		Data:        []byte("png-bytes"),
	})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if result.SecureURL != "https://cdn.example.com/logo.png" {
		t.Errorf("unexpected secure url %s", result.SecureURL)
	}
	if result.PublicID != "custom/logo" {
		t.Errorf("unexpected public id %s", result.PublicID)
	}
	if result.Width != 640 || result.Height != 480 || result.Bytes != 1234 {
		t.Errorf("unexpected dimensions %+v", result)
	}
}

func TestUploadAcceptsNonOKSuccessStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"secure_url":"https://cdn.example.com/badge.png","public_id":"custom/badge","format":"png","width":100,"height":100,"bytes":99}`))
	})

	result, err := client.Upload(context.Background(), UploadRequest{
		FileName:    "badge.png",
		ContentType: "image/png",
		Data:        []byte("png-bytes"),
	})
	if err != nil {
		t.Fatalf("Upload returned error for 201 response: %v", err)
	}
	if result.SecureURL != "https://cdn.example.com/badge.png" {
		t.Errorf("unexpected secure url %s", result.SecureURL)
	}
}

func TestUploadServerErrorIsRetryable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"upstream unavailable"}}`, http.StatusBadGateway)
	})

	_, err := client.Upload(context.Background(), UploadRequest{FileName: "a.png", Data: []byte("x")})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var uploadErr *Error
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !uploadErr.Retryable {
		t.Error("expected 502 to be retryable")
	}
	if uploadErr.StatusCode != http.StatusBadGateway {
		t.Errorf("unexpected status code %d", uploadErr.StatusCode)
	}
	if uploadErr.Message != "upstream unavailable" {
		t.Errorf("unexpected message %q", uploadErr.Message)
	}
	if !IsRetryable(err) {
		t.Error("IsRetryable should report true")
	}
}

func TestUploadClientErrorIsTerminal(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid file format"}}`, http.StatusBadRequest)
	})

	_, err := client.Upload(context.Background(), UploadRequest{FileName: "a.exe", Data: []byte("x")})
	var uploadErr *Error
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if uploadErr.Retryable {
		t.Error("expected 400 to be terminal")
	}
	if IsRetryable(err) {
		t.Error("IsRetryable should report false")
	}
}

func TestUploadRateLimitIsRetryable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := client.Upload(context.Background(), UploadRequest{FileName: "a.png", Data: []byte("x")})
	var uploadErr *Error
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !uploadErr.Retryable {
		t.Error("expected 429 to be retryable")
	}
}

func TestUploadTransportErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()
	client := NewClient(config.AssetHostConfig{UploadURL: server.URL, Timeout: time.Second})

	_, err := client.Upload(context.Background(), UploadRequest{FileName: "a.png", Data: []byte("x")})
	if err == nil {
		t.Fatal("expected transport error, got nil")
	}
	var uploadErr *Error
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if !uploadErr.Retryable {
		t.Error("expected transport failure to be retryable")
	}
}

func TestUploadMissingSecureURL(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"public_id":"x"}`))
	})

	_, err := client.Upload(context.Background(), UploadRequest{FileName: "a.png", Data: []byte("x")})
	var uploadErr *Error
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if uploadErr.Retryable {
		t.Error("malformed response should be terminal")
	}
}

func TestUploadNotConfigured(t *testing.T) {
	client := NewClient(config.AssetHostConfig{})
	_, err := client.Upload(context.Background(), UploadRequest{FileName: "a.png", Data: []byte("x")})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

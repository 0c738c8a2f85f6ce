package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"postbridge/internal/domain/entity"
)

func newTestClient(t *testing.T, baseURL string) *HTTPClient {
	t.Helper()
	cfg := &Config{
		Enabled:       true,
		BaseURL:       baseURL,
		Timeout:       2 * time.Second,
		RatePerSecond: 1000,
		Burst:         100,
	}
	cfg.SetToken("test-token")
	return NewHTTPClient(cfg)
}

func testPost() *entity.Post {
	publishedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &entity.Post{
		ID:          42,
		Title:       "Announcing v2",
		Slug:        "announcing-v2",
		Excerpt:     "The v2 release is out.",
		URL:         "https://blog.example.com/announcing-v2",
		Published:   true,
		PublishedAt: &publishedAt,
	}
}

func TestHTTPClient_Submit_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/posts" {
			t.Errorf("expected path /v1/posts, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("unexpected Content-Type: %q", got)
		}

		var payload submitPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.Title != "Announcing v2" {
			t.Errorf("unexpected title: %q", payload.Title)
		}
		if payload.URL != "https://blog.example.com/announcing-v2" {
			t.Errorf("unexpected url: %q", payload.URL)
		}
		if payload.PublishedAt != "2025-06-01T12:00:00Z" {
			t.Errorf("unexpected published_at: %q", payload.PublishedAt)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(submitResponse{
			ID:  "ext-123",
			URL: "https://platform.example.com/p/ext-123",
		})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	result, err := client.Submit(context.Background(), testPost())
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if result.ExternalPostID != "ext-123" {
		t.Errorf("unexpected external post id: %q", result.ExternalPostID)
	}
	if result.ExternalPostURL != "https://platform.example.com/p/ext-123" {
		t.Errorf("unexpected external post url: %q", result.ExternalPostURL)
	}
}

func TestHTTPClient_Submit_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   ErrorKind
		wantInBody string
	}{
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			body:       `{"message":"rate limit exceeded"}`,
			wantKind:   KindRateLimit,
			wantInBody: "rate limit exceeded",
		},
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"message":"invalid token"}`,
			wantKind: KindAuth,
		},
		{
			name:     "forbidden",
			status:   http.StatusForbidden,
			body:     `{"message":"insufficient scope"}`,
			wantKind: KindAuth,
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `{"message":"internal error"}`,
			wantKind: KindServer,
		},
		{
			name:     "unprocessable payload",
			status:   http.StatusUnprocessableEntity,
			body:     `{"message":"title too long"}`,
			wantKind: KindValidation,
		},
		{
			name:     "non-json error body",
			status:   http.StatusBadGateway,
			body:     "upstream unavailable",
			wantKind: KindServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL)

			_, err := client.Submit(context.Background(), testPost())
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T: %v", err, err)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, apiErr.Kind)
			}
			if apiErr.HTTPStatus != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, apiErr.HTTPStatus)
			}
		})
	}
}

func TestHTTPClient_Submit_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Close() // connection refused

	client := newTestClient(t, server.URL)

	_, err := client.Submit(context.Background(), testPost())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Kind != KindNetwork {
		t.Errorf("expected kind %s, got %s", KindNetwork, apiErr.Kind)
	}
}

func TestHTTPClient_Submit_MissingPostID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)

	_, err := client.Submit(context.Background(), testPost())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Kind != KindUnknown {
		t.Errorf("expected kind %s, got %s", KindUnknown, apiErr.Kind)
	}
}

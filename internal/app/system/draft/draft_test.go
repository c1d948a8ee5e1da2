package draft_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/draft"
	"go.uber.org/zap"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    draft.Draft
		wantErr bool
	}{
		{
			name: "exact format",
			in:   "Title: Go Channels\nContent: Channels connect goroutines.\nTags: go, concurrency, channels",
			want: draft.Draft{Title: "Go Channels", Content: "Channels connect goroutines.", Tags: []string{"go", "concurrency", "channels"}},
		},
		{
			name: "markdown and mixed case",
			in:   "Here is your draft:\n**Title:** Go Channels\n**content:** Channels connect goroutines.\n## TAGS: [#go, concurrency]",
			want: draft.Draft{Title: "Go Channels", Content: "Channels connect goroutines.", Tags: []string{"go", "concurrency"}},
		},
		{
			name: "multi paragraph content",
			in:   "Title: T\nContent: First.\n\nSecond.\nTags: a",
			want: draft.Draft{Title: "T", Content: "First.\n\nSecond.", Tags: []string{"a"}},
		},
		{
			name: "tags optional",
			in:   "Title: T\nContent: Body",
			want: draft.Draft{Title: "T", Content: "Body", Tags: []string{}},
		},
		{name: "missing content", in: "Title: T\nTags: a", wantErr: true},
		{name: "missing title", in: "Content: Body", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := draft.Parse(tt.in)
			if tt.wantErr {
				if !errors.Is(err, draft.ErrMalformed) {
					t.Errorf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestGenerate_NotConfigured(t *testing.T) {
	c := draft.New(draft.Config{}, zap.NewNop())
	if c.Enabled() {
		t.Error("expected client to be disabled without a key")
	}
	if _, err := c.Generate(context.Background(), "go"); !errors.Is(err, draft.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func chatServer(t *testing.T, status int, answer string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-key" {
			t.Errorf("Authorization: got %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Model != draft.DefaultModel || len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, `"channels"`) {
			t.Errorf("unexpected request: %+v", req)
		}

		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": answer}}},
			})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "Title: Channels\nContent: Pipes for goroutines.\nTags: go, channels")
	c := draft.New(draft.Config{BaseURL: srv.URL + "/", APIKey: "secret-key"}, zap.NewNop())

	d, err := c.Generate(context.Background(), "  channels ")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if d.Title != "Channels" || d.Content != "Pipes for goroutines." || len(d.Tags) != 2 {
		t.Errorf("unexpected draft: %+v", d)
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		answer string
		want   error
	}{
		{"unparseable answer", http.StatusOK, "I cannot help with that.", draft.ErrMalformed},
		{"oversized answer", http.StatusOK, "Title: Big\nContent: " + strings.Repeat("x", 2<<20), draft.ErrMalformed},
		{"upstream failure", http.StatusBadGateway, "", apperr.ErrUnavailable},
		{"rate limited", http.StatusTooManyRequests, "", apperr.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.status, tt.answer)
			c := draft.New(draft.Config{BaseURL: srv.URL, APIKey: "secret-key"}, zap.NewNop())
			if _, err := c.Generate(context.Background(), "channels"); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestGenerate_EmptyTopic(t *testing.T) {
	c := draft.New(draft.Config{BaseURL: "http://127.0.0.1:1", APIKey: "k"}, zap.NewNop())
	if _, err := c.Generate(context.Background(), "   "); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

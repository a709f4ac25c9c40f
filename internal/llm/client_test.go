package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spherical/scan-ocr/internal/domain"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantModel string
		wantURL   string
	}{
		{
			name:      "defaults",
			cfg:       Config{},
			wantModel: defaultModel,
			wantURL:   defaultBaseURL,
		},
		{
			name:      "custom model and trailing slash",
			cfg:       Config{BaseURL: "http://gpu:8000/v1/", Model: "got-ocr2"},
			wantModel: "got-ocr2",
			wantURL:   "http://gpu:8000/v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.cfg)
			if client.model != tt.wantModel {
				t.Errorf("Expected model %s, got %s", tt.wantModel, client.model)
			}
			if client.baseURL != tt.wantURL {
				t.Errorf("Expected base URL %s, got %s", tt.wantURL, client.baseURL)
			}
		})
	}
}

func TestBuildRequest(t *testing.T) {
	client := NewClient(Config{})
	req := client.buildRequest([]byte{0xff, 0xd8}, "image/jpeg", "")

	if !req.Stream {
		t.Error("Stream should be enabled by default")
	}
	if len(req.Messages) != 1 || len(req.Messages[0].Content) != 2 {
		t.Fatalf("unexpected message layout: %+v", req.Messages)
	}
	if req.Messages[0].Content[0].Text != DefaultPrompt {
		t.Error("expected default prompt when none given")
	}
	url := req.Messages[0].Content[1].ImageURL.URL
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("unexpected image URL prefix: %s", url[:30])
	}
}

func sseServer(t *testing.T, status int, chunks ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			w.WriteHeader(status)
			return
		case "/chat/completions":
		default:
			http.NotFound(w, r)
			return
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":"nope"}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for i, c := range chunks {
			finish := ""
			if i == len(chunks)-1 {
				finish = "stop"
			}
			payload, _ := json.Marshal(Response{Choices: []Choice{{Delta: Delta{Content: c}, FinishReason: finish}}})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestTranscribe_Streams(t *testing.T) {
	srv := sseServer(t, http.StatusOK, "Hello ", "scanned ", "world")
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	resultCh := make(chan string, 10)

	if err := client.Transcribe(context.Background(), []byte("img"), "image/png", "", resultCh); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	close(resultCh)

	var got strings.Builder
	for c := range resultCh {
		got.WriteString(c)
	}
	if got.String() != "Hello scanned world" {
		t.Errorf("unexpected transcription %q", got.String())
	}
}

func TestTranscribe_StatusClassification(t *testing.T) {
	tests := []struct {
		status        int
		wantPermanent bool
	}{
		{http.StatusServiceUnavailable, false},
		{http.StatusTooManyRequests, false},
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := sseServer(t, tt.status)
			defer srv.Close()

			err := NewClient(Config{BaseURL: srv.URL}).Transcribe(context.Background(), []byte("img"), "", "", make(chan string, 1))
			if err == nil {
				t.Fatal("expected error")
			}
			if domain.IsPermanent(err) != tt.wantPermanent {
				t.Errorf("IsPermanent = %v, want %v (%v)", domain.IsPermanent(err), tt.wantPermanent, err)
			}
			if !domain.IsType(err, domain.ErrorTypeAPI) {
				t.Errorf("expected api error type, got %v", err)
			}
		})
	}
}

func TestPing(t *testing.T) {
	ok := sseServer(t, http.StatusOK)
	defer ok.Close()
	if err := NewClient(Config{BaseURL: ok.URL}).Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	down := sseServer(t, http.StatusBadGateway)
	defer down.Close()
	if err := NewClient(Config{BaseURL: down.URL}).Ping(context.Background()); err == nil {
		t.Error("expected ping error on 502")
	}
}

func TestStreamParser_MessageFallback(t *testing.T) {
	body := `data: {"choices":[{"message":{"content":"whole page"},"finish_reason":"stop"}]}` + "\n"
	resultCh := make(chan string, 2)
	if err := NewStreamParser(strings.NewReader(body)).ParseAll(resultCh); err != nil {
		t.Fatal(err)
	}
	if got := <-resultCh; got != "whole page" {
		t.Errorf("got %q", got)
	}
}

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
	"github.com/spherical/scan-ocr/internal/rag"
)

type fakeAnswerer struct {
	err error
}

func (f *fakeAnswerer) Ask(ctx context.Context, question string) (*rag.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(question) == "" {
		return nil, domain.ValidationError("question is empty", nil)
	}
	return &rag.Answer{
		Question: question,
		Text:     "forty-two",
		Sources:  []rag.Source{{Path: "out/a.txt", Chunk: 0, Score: 0.9, Text: "the answer is forty-two"}},
	}, nil
}

func (f *fakeAnswerer) Len() int { return 7 }

func TestRouter_Health(t *testing.T) {
	srv := httptest.NewServer(newRouter(observability.Nop(), &fakeAnswerer{}, time.Second))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(7), body["chunks"])
}

func TestRouter_Ask(t *testing.T) {
	tests := []struct {
		name       string
		answerer   *fakeAnswerer
		body       string
		wantStatus int
	}{
		{"answered", &fakeAnswerer{}, `{"question":"what is it?"}`, http.StatusOK},
		{"malformed body", &fakeAnswerer{}, `{"question":`, http.StatusBadRequest},
		{"empty question", &fakeAnswerer{}, `{"question":"  "}`, http.StatusBadRequest},
		{"model down", &fakeAnswerer{err: errors.New("connection refused")}, `{"question":"q"}`, http.StatusBadGateway},
		{"deadline", &fakeAnswerer{err: context.DeadlineExceeded}, `{"question":"q"}`, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(tt.body))
			newRouter(observability.Nop(), tt.answerer, 0).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			if tt.wantStatus != http.StatusOK {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.NotEmpty(t, body["error"])
				return
			}

			var answer rag.Answer
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answer))
			assert.Equal(t, "forty-two", answer.Text)
			require.Len(t, answer.Sources, 1)
			assert.Equal(t, "out/a.txt", answer.Sources[0].Path)
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(observability.Nop(), &fakeAnswerer{}, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ask", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

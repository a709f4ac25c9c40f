package commands

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/scan-ocr/internal/domain"
	"github.com/spherical/scan-ocr/internal/observability"
	"github.com/spherical/scan-ocr/internal/rag"
)

// answerer is the part of rag.Pipeline the API needs.
type answerer interface {
	Ask(ctx context.Context, question string) (*rag.Answer, error)
	Len() int
}

// askRequest is the body of POST /ask.
type askRequest struct {
	Question string `json:"question"`
}

// askHandler serves questions against an indexed corpus.
type askHandler struct {
	logger   *observability.Logger
	pipeline answerer
}

// newRouter creates the API router.
func newRouter(logger *observability.Logger, pipeline answerer, requestTimeout time.Duration) http.Handler {
	h := &askHandler{logger: logger.WithOperation("api"), pipeline: pipeline}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	if requestTimeout > 0 {
		r.Use(chimiddleware.Timeout(requestTimeout))
	}

	r.Get("/health", h.Health)
	r.Post("/ask", h.Ask)
	return r
}

// Health handles GET /health.
func (h *askHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "scan-ocr",
		"chunks":  h.pipeline.Len(),
	})
}

// Ask handles POST /ask.
func (h *askHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	start := time.Now()
	answer, err := h.pipeline.Ask(r.Context(), req.Question)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case domain.IsType(err, domain.ErrorTypeValidation):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		h.logger.Error().
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Int("status", status).
			Err(err).
			Msg("Ask failed")
		writeError(w, status, "ask failed", err.Error())
		return
	}

	h.logger.Info().
		Str("request_id", chimiddleware.GetReqID(r.Context())).
		Int("sources", len(answer.Sources)).
		Bool("cached", answer.Cached).
		Dur("latency", time.Since(start)).
		Msg("Answered question")
	writeJSON(w, http.StatusOK, answer)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}

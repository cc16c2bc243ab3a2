package enhance

import (
	"context"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/logging"
	"github.com/homeonmap/backend/internal/middleware"
)

// Enhancer rewrites a description.
type Enhancer interface {
	Enhance(ctx context.Context, text string) (string, error)
}

// Handler serves POST /api/enhance.
type Handler struct {
	enhancer Enhancer
}

func NewHandler(e Enhancer) *Handler { return &Handler{enhancer: e} }

type request struct {
	Text string `json:"text"`
}

type response struct {
	EnhancedText string `json:"enhanced_text"`
}

func (h *Handler) Enhance(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, apperr.Invalid("body", "invalid request body"))
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		middleware.WriteError(w, apperr.Invalid("text", "no text provided"))
		return
	}
	if len(text) > MaxInputLength {
		middleware.WriteError(w, apperr.Invalid("text", "too long"))
		return
	}

	out, err := h.enhancer.Enhance(r.Context(), text)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("enhance failed")
		middleware.WriteJSON(w, http.StatusBadGateway, apperr.Body{Error: "failed to enhance text", Code: "UPSTREAM_ERROR"})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, response{EnhancedText: out})
}

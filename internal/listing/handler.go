package listing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/homeonmap/backend/internal/apperr"
	"github.com/homeonmap/backend/internal/authz"
	"github.com/homeonmap/backend/internal/blob"
	"github.com/homeonmap/backend/internal/logging"
	"github.com/homeonmap/backend/internal/middleware"
	"github.com/homeonmap/backend/internal/models"
)

// MaxListLimit caps the limit query parameter.
const MaxListLimit = 500

// EventReader serves the admin audit view.
type EventReader interface {
	Recent(ctx context.Context, listingID string, limit int64) ([]models.ListingEvent, error)
}

// ImageUploader stores listing images.
type ImageUploader interface {
	Upload(ctx context.Context, f blob.File) (string, error)
}

// Handler holds listing HTTP handlers.
type Handler struct {
	repo     *Repository
	uploader ImageUploader
	events   EventReader
	authz    Authorizer
	maxImage int64
}

func NewHandler(repo *Repository, uploader ImageUploader, events EventReader, az Authorizer) *Handler {
	return &Handler{repo: repo, uploader: uploader, events: events, authz: az, maxImage: blob.DefaultMaxSize}
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Invalid("limit", "must be a non-negative integer")
	}
	if n > MaxListLimit {
		n = MaxListLimit
	}
	return n, nil
}

// List returns every listing, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	out, err := h.repo.List(r.Context(), models.ListingFilter{
		Role:  r.URL.Query().Get("role"),
		Limit: limit,
	})
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("list listings")
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// Mine returns the caller's own listings.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFrom(r.Context())
	out, err := h.repo.List(r.Context(), models.ListingFilter{OwnerID: id.ID})
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("list own listings")
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, out)
}

// Get returns a single listing.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, l)
}

// Create inserts a listing owned by the caller.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFrom(r.Context())

	var fields models.ListingFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		middleware.WriteError(w, apperr.Invalid("body", "invalid request body"))
		return
	}

	saved, err := h.repo.Create(r.Context(), fields, *id)
	if err != nil {
		if apperr.Code(err) == "INTERNAL" {
			logging.Ctx(r.Context()).Error().Err(err).Msg("create listing")
		}
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, saved)
}

// Delete removes a listing the caller owns, or any listing for admins.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFrom(r.Context())
	if err := h.repo.Delete(r.Context(), chi.URLParam(r, "id"), *id); err != nil {
		if apperr.Code(err) == "INTERNAL" {
			logging.Ctx(r.Context()).Error().Err(err).Msg("delete listing")
		}
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// Upload accepts a multipart "image" field and returns its public URL.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImage+1<<20)
	if err := r.ParseMultipartForm(h.maxImage); err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		middleware.WriteError(w, &apperr.UploadError{Reason: "invalid multipart body"})
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		middleware.WriteError(w, &apperr.UploadError{Reason: "missing image field"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		middleware.WriteError(w, &apperr.UploadError{Reason: "could not read image"})
		return
	}

	url, err := h.uploader.Upload(r.Context(), blob.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		var ue *apperr.UploadError
		if errors.As(err, &ue) && ue.Err != nil {
			uploadsTotal.WithLabelValues("failed").Inc()
		} else {
			uploadsTotal.WithLabelValues("rejected").Inc()
		}
		middleware.WriteError(w, err)
		return
	}
	uploadsTotal.WithLabelValues("ok").Inc()
	middleware.WriteJSON(w, http.StatusCreated, map[string]string{"url": url})
}

// Events returns the recent audit trail. Requires events:read.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	id := middleware.IdentityFrom(r.Context())
	ok, err := h.authz.Allowed(*id, authz.ObjEvents, authz.ActRead)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("authorize events")
		middleware.WriteError(w, err)
		return
	}
	if !ok {
		middleware.WriteError(w, apperr.ErrPermission)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if limit == 0 {
		limit = 100
	}
	if h.events == nil {
		middleware.WriteJSON(w, http.StatusOK, []models.ListingEvent{})
		return
	}
	events, err := h.events.Recent(r.Context(), r.URL.Query().Get("listing_id"), int64(limit))
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("read events")
		middleware.WriteError(w, err)
		return
	}
	if events == nil {
		events = []models.ListingEvent{}
	}
	middleware.WriteJSON(w, http.StatusOK, events)
}

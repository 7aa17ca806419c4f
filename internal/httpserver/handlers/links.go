package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/hop/internal/domain"
	"github.com/MrSnakeDoc/hop/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hop/internal/logger"
)

const maxCreateBody = 16 << 10

type createLinkRequest struct {
	URL           string `json:"url"`
	ExpiryInHours *int   `json:"expiryInHours,omitempty"`
}

type createLinkResponse struct {
	ShortCode   string    `json:"shortCode"`
	ShortURL    string    `json:"shortUrl"`
	OriginalURL string    `json:"originalUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// CreateLink handles POST /api/v1/urls.
func CreateLink(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLinkRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCreateBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.URL == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}

		link, err := d.Links.Create(r.Context(), req.URL, req.ExpiryInHours)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrInvalidDestination), errors.Is(err, domain.ErrInvalidExpiry):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, domain.ErrConflict):
			writeError(w, http.StatusConflict, "short code already taken, please retry")
			return
		case errors.Is(err, domain.ErrGenerationExhausted):
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "could not allocate a short code, please retry")
			return
		default:
			d.Logger.Error("failed to create link", logger.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		w.Header().Set("Location", link.ShortURL)
		writeJSON(w, http.StatusCreated, createLinkResponse{
			ShortCode:   link.Code,
			ShortURL:    link.ShortURL,
			OriginalURL: link.Destination,
			CreatedAt:   link.CreatedAt,
			UpdatedAt:   link.UpdatedAt,
			ExpiresAt:   link.ExpiresAt,
		})
	}
}

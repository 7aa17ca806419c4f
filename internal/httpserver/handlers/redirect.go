package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/hop/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/redirect"
)

//go:embed templates/preview.html
var templatesFS embed.FS

var previewTmpl = template.Must(template.ParseFS(templatesFS, "templates/preview.html"))

const defaultPreviewMaxAge = time.Hour

// Redirect handles GET /{code}: 307 for browsers, an OpenGraph page for
// crawlers, the same 404 body for every miss.
func Redirect(d deps.Deps) http.HandlerFunc {
	maxAge := d.PreviewMaxAge
	if maxAge <= 0 {
		maxAge = defaultPreviewMaxAge
	}
	previewCache := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))

	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		out, err := d.Resolver.Resolve(r.Context(), code, r.UserAgent())
		if err != nil {
			d.Logger.Error("failed to resolve short code",
				logger.String("code", code),
				logger.Error(err))
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, please retry")
			return
		}

		switch out.Kind {
		case redirect.Redirect:
			h := w.Header()
			h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
			http.Redirect(w, r, out.Destination, http.StatusTemporaryRedirect)

		case redirect.Preview:
			var buf bytes.Buffer
			if err := previewTmpl.Execute(&buf, out); err != nil {
				d.Logger.Error("failed to render preview",
					logger.String("code", code),
					logger.Error(err))
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", previewCache)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(buf.Bytes())

		default:
			NotFound(w, r)
		}
	}
}

// NotFound writes the 404 body used for unknown routes and unknown codes alike.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Cannot "+r.Method+" "+r.URL.Path)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/hop/internal/domain"
	"github.com/MrSnakeDoc/hop/internal/httpserver/deps"
	"github.com/MrSnakeDoc/hop/internal/links"
	"github.com/MrSnakeDoc/hop/internal/logger"
	"github.com/MrSnakeDoc/hop/internal/redirect"
)

type fakeResolver struct {
	out    redirect.Outcome
	err    error
	gotUA  string
	gotKey string
}

func (f *fakeResolver) Resolve(_ context.Context, code, ua string) (redirect.Outcome, error) {
	f.gotKey, f.gotUA = code, ua
	return f.out, f.err
}

type fakeCreator struct {
	link     *links.ShortLink
	err      error
	gotURL   string
	gotHours *int
}

func (f *fakeCreator) Create(_ context.Context, dest string, hours *int) (*links.ShortLink, error) {
	f.gotURL, f.gotHours = dest, hours
	return f.link, f.err
}

type pingFunc func(ctx context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

var (
	up   = pingFunc(func(context.Context) error { return nil })
	down = pingFunc(func(context.Context) error { return errors.New("connection refused") })
)

func baseDeps() deps.Deps {
	return deps.Deps{
		Logger:    logger.NewNop(),
		StartTime: time.Now().Add(-time.Minute),
		Version:   "v1.2.3",
	}
}

func serveRedirect(t *testing.T, d deps.Deps, path, ua string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/{code}", Redirect(d))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRedirectBrowser(t *testing.T) {
	res := &fakeResolver{out: redirect.Outcome{Kind: redirect.Redirect, Destination: "https://example.com/a?b=c"}}
	d := baseDeps()
	d.Resolver = res

	rec := serveRedirect(t, d, "/aB3_x-", "Mozilla/5.0")

	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "https://example.com/a?b=c", rec.Header().Get("Location"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))
	assert.Equal(t, "aB3_x-", res.gotKey)
	assert.Equal(t, "Mozilla/5.0", res.gotUA)
}

func TestRedirectPreview(t *testing.T) {
	d := baseDeps()
	d.PreviewMaxAge = time.Hour
	d.Resolver = &fakeResolver{out: redirect.Outcome{
		Kind:        redirect.Preview,
		Destination: "https://example.com",
		Preview: domain.PreviewFields{
			Title:    `Fish & "Chips"`,
			Image:    "https://example.com/i.png",
			Type:     "website",
			SiteName: "Example",
		},
	}}

	rec := serveRedirect(t, d, "/aB3_x-", "facebookexternalhit/1.1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `<meta property="og:title" content="Fish &amp; &#34;Chips&#34;">`)
	assert.Contains(t, body, `<meta property="og:type" content="website">`)
	assert.Contains(t, body, `<meta property="og:image" content="https://example.com/i.png">`)
	assert.Contains(t, body, `<meta property="og:site_name" content="Example">`)
	assert.Contains(t, body, `<meta property="og:description" content="">`)
	assert.Contains(t, body, `http-equiv="refresh"`)
	assert.NotContains(t, body, "og:locale")
}

func TestRedirectNotFound(t *testing.T) {
	d := baseDeps()
	d.Resolver = &fakeResolver{out: redirect.Outcome{Kind: redirect.NotFound}}

	rec := serveRedirect(t, d, "/health", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Cannot GET /health","error":"Not Found","statusCode":404}`, rec.Body.String())
}

func TestRedirectStoreFailure(t *testing.T) {
	d := baseDeps()
	d.Resolver = &fakeResolver{err: errors.New("registry down")}

	rec := serveRedirect(t, d, "/aB3_x-", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func postJSON(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/urls", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateLink(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	creator := &fakeCreator{link: &links.ShortLink{
		Code:        "aB3_x-",
		ShortURL:    "https://hop.example/aB3_x-",
		Destination: "https://example.com",
		CreatedAt:   created,
		UpdatedAt:   created,
		ExpiresAt:   created.Add(2 * time.Hour),
	}}
	d := baseDeps()
	d.Links = creator

	rec := postJSON(CreateLink(d), `{"url":"https://example.com","expiryInHours":2}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "https://hop.example/aB3_x-", rec.Header().Get("Location"))
	assert.JSONEq(t, `{
		"shortCode": "aB3_x-",
		"shortUrl": "https://hop.example/aB3_x-",
		"originalUrl": "https://example.com",
		"createdAt": "2026-05-01T12:00:00Z",
		"updatedAt": "2026-05-01T12:00:00Z",
		"expiresAt": "2026-05-01T14:00:00Z"
	}`, rec.Body.String())
	assert.Equal(t, "https://example.com", creator.gotURL)
	require.NotNil(t, creator.gotHours)
	assert.Equal(t, 2, *creator.gotHours)
}

func TestCreateLinkErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "malformed json", body: `{"url":`, want: http.StatusBadRequest},
		{name: "unknown field", body: `{"url":"https://example.com","foo":1}`, want: http.StatusBadRequest},
		{name: "missing url", body: `{}`, want: http.StatusBadRequest},
		{name: "expiry not an int", body: `{"url":"https://example.com","expiryInHours":"2"}`, want: http.StatusBadRequest},
		{name: "invalid destination", body: `{"url":"nope"}`, err: fmt.Errorf("%w: bad scheme", domain.ErrInvalidDestination), want: http.StatusBadRequest},
		{name: "invalid expiry", body: `{"url":"https://example.com","expiryInHours":0}`, err: domain.ErrInvalidExpiry, want: http.StatusBadRequest},
		{name: "conflict", body: `{"url":"https://example.com"}`, err: domain.ErrConflict, want: http.StatusConflict},
		{name: "exhausted", body: `{"url":"https://example.com"}`, err: domain.ErrGenerationExhausted, want: http.StatusServiceUnavailable},
		{name: "store failure", body: `{"url":"https://example.com"}`, err: errors.New("disk full"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := baseDeps()
			d.Links = &fakeCreator{err: tt.err}

			rec := postJSON(CreateLink(d), tt.body)
			assert.Equal(t, tt.want, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.StatusCode)
			assert.Equal(t, http.StatusText(tt.want), body.Error)
		})
	}
}

func TestHealthz(t *testing.T) {
	d := baseDeps()
	d.Components = []deps.Component{{Name: "registry", Critical: true, Pinger: down}}

	rec := httptest.NewRecorder()
	Healthz(d).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code, "liveness must not depend on backing systems")
	var body healthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "v1.2.3", body.Version)
	assert.GreaterOrEqual(t, body.UptimeSeconds, 59.0)
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		components []deps.Component
		want       int
		failed     []string
	}{
		{
			name: "all up",
			components: []deps.Component{
				{Name: "registry", Critical: true, Pinger: up},
				{Name: "cache", Pinger: up},
			},
			want: http.StatusOK,
		},
		{
			name: "optional down",
			components: []deps.Component{
				{Name: "registry", Critical: true, Pinger: up},
				{Name: "cache", Pinger: down},
			},
			want: http.StatusOK,
		},
		{
			name: "registry down",
			components: []deps.Component{
				{Name: "registry", Critical: true, Pinger: down},
				{Name: "cache", Pinger: up},
			},
			want:   http.StatusServiceUnavailable,
			failed: []string{"registry"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := baseDeps()
			d.Components = tt.components

			rec := httptest.NewRecorder()
			Readyz(d).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.want, rec.Code)
			var body readyzResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want == http.StatusOK, body.Ready)
			assert.Equal(t, tt.failed, body.Failed)
		})
	}
}

func TestInfra(t *testing.T) {
	d := baseDeps()
	d.Components = []deps.Component{
		{Name: "registry", Driver: "postgres", Critical: true, Pinger: up},
		{Name: "cache", Driver: "redis", Pinger: down},
		{Name: "queue", Driver: "nats", Pinger: up},
	}

	rec := httptest.NewRecorder()
	Infra(d).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/infra", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body infraResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Mode)
	assert.True(t, body.Components["registry"].OK)
	assert.False(t, body.Components["cache"].OK)
	assert.Equal(t, "lookups-hit-registry", body.Components["cache"].Impact)
	assert.Equal(t, "nats", body.Components["queue"].Driver)
}

func TestDetermineMode(t *testing.T) {
	assert.Equal(t, "optimal", determineMode(map[string]componentStatus{"registry": {OK: true, Critical: true}}))
	assert.Equal(t, "degraded", determineMode(map[string]componentStatus{"registry": {OK: true, Critical: true}, "queue": {}}))
	assert.Equal(t, "critical", determineMode(map[string]componentStatus{"registry": {Critical: true}, "queue": {}}))
}

func TestSweep(t *testing.T) {
	trigger := make(chan struct{}, 1)
	d := baseDeps()
	d.SweepTrigger = trigger

	first := httptest.NewRecorder()
	Sweep(d).ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/admin/sweep", nil))
	assert.Equal(t, http.StatusAccepted, first.Code)

	second := httptest.NewRecorder()
	Sweep(d).ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/admin/sweep", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	<-trigger
	third := httptest.NewRecorder()
	Sweep(d).ServeHTTP(third, httptest.NewRequest(http.MethodPost, "/admin/sweep", nil))
	assert.Equal(t, http.StatusAccepted, third.Code)
}

func TestSweepWithoutSweeper(t *testing.T) {
	rec := httptest.NewRecorder()
	Sweep(baseDeps()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/sweep", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPingAllKeepsEveryResult(t *testing.T) {
	var cacheCtxErr error
	slowUp := pingFunc(func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		cacheCtxErr = ctx.Err()
		return nil
	})

	results := pingAll(context.Background(), []deps.Component{
		{Name: "registry", Pinger: down},
		{Name: "cache", Pinger: slowUp},
		{Name: "queue", Pinger: up},
	})

	require.Len(t, results, 3)
	assert.Equal(t, "registry", results[0].component.Name)
	assert.Error(t, results[0].err)
	assert.Equal(t, "cache", results[1].component.Name)
	assert.NoError(t, results[1].err)
	assert.NoError(t, cacheCtxErr, "a failing component cancelled its siblings")
	assert.GreaterOrEqual(t, results[1].latency, 50*time.Millisecond)
	assert.Equal(t, "queue", results[2].component.Name)
	assert.NoError(t, results[2].err)
}

package metadata

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/MrSnakeDoc/hop/internal/domain"
	"github.com/MrSnakeDoc/hop/internal/utils"
	"github.com/MrSnakeDoc/hop/internal/version"
)

const (
	// MaxBodyBytes caps how much of a destination page is read.
	MaxBodyBytes = 2 << 20
	maxRedirects = 5
)

// OpenGraphFetcher reads OpenGraph and Twitter card tags from a page.
type OpenGraphFetcher struct {
	client    *http.Client
	userAgent string
}

// ErrInternalAddress is returned by the dialer when a destination resolves to
// a loopback, private or otherwise non-public address.
var ErrInternalAddress = errors.New("destination resolves to an internal address")

// NewOpenGraphFetcher builds a fetcher whose whole request, redirects and body
// included, is bounded by timeout. Connections to internal addresses are
// refused after DNS resolution, so redirects and rebinding are covered too.
func NewOpenGraphFetcher(timeout time.Duration) *OpenGraphFetcher {
	return newOpenGraphFetcher(timeout, denyInternal)
}

func newOpenGraphFetcher(timeout time.Duration, control func(network, address string, c syscall.RawConn) error) *OpenGraphFetcher {
	return &OpenGraphFetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				// No proxy: the dial guard must see the destination itself.
				Proxy: nil,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
					Control:   control,
				}).DialContext,
				TLSHandshakeTimeout: timeout,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:    16,
				IdleConnTimeout: 90 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent: version.UserAgent("link preview"),
	}
}

// denyInternal runs on the resolved address of every connection.
func denyInternal(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: unparseable address %q", ErrInternalAddress, address)
	}
	if utils.IsInternalAddr(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrInternalAddress, ap.Addr())
	}
	return nil
}

// Fetch never returns an error for remote problems: an unreachable page or a
// non-2xx answer is a FAILED result.
func (f *OpenGraphFetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return FetchResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		return failed("cannot access URL: %v", err), nil
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		utils.Close(resp.Body)
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed("unexpected status %d", resp.StatusCode), nil
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		return FetchResult{Outcome: domain.FetchNoMetadata}, nil
	}

	doc, err := htmlquery.Parse(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return failed("cannot parse page: %v", err), nil
	}

	fields := extract(doc, resp.Request.URL)
	if fields.Empty() {
		return FetchResult{Outcome: domain.FetchNoMetadata}, nil
	}
	return FetchResult{Outcome: domain.FetchSuccess, Fields: fields}, nil
}

func failed(format string, args ...any) FetchResult {
	return FetchResult{Outcome: domain.FetchFailed, Reason: fmt.Sprintf(format, args...)}
}

// isHTML accepts a missing content type; plenty of servers omit it.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// extract collects the preview fields. og:* wins over twitter:*, which wins
// over the plain <title> and description tags.
func extract(doc *html.Node, base *url.URL) domain.PreviewFields {
	tags := make(map[string]string)
	for _, n := range htmlquery.Find(doc, "//meta") {
		key := htmlquery.SelectAttr(n, "property")
		if key == "" {
			key = htmlquery.SelectAttr(n, "name")
		}
		key = strings.ToLower(strings.TrimSpace(key))
		content := strings.TrimSpace(htmlquery.SelectAttr(n, "content"))
		if key == "" || content == "" {
			continue
		}
		if _, seen := tags[key]; !seen {
			tags[key] = content
		}
	}

	first := func(keys ...string) string {
		for _, k := range keys {
			if v := tags[k]; v != "" {
				return v
			}
		}
		return ""
	}

	title := first("og:title", "twitter:title")
	if title == "" {
		if n := htmlquery.FindOne(doc, "//title"); n != nil {
			title = strings.TrimSpace(htmlquery.InnerText(n))
		}
	}

	return domain.PreviewFields{
		Title:       title,
		Description: first("og:description", "twitter:description", "description"),
		Image:       absolute(base, first("og:image", "og:image:url", "og:image:secure_url", "twitter:image", "twitter:image:src")),
		SiteName:    first("og:site_name", "twitter:site"),
		Type:        first("og:type"),
		Locale:      first("og:locale"),
	}
}

func absolute(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

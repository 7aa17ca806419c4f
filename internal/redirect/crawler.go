package redirect

import "strings"

// DefaultCrawlerSignatures are matched as case-insensitive substrings of the
// User-Agent. The generic tail ("bot", "crawler", ...) catches most of the rest.
var DefaultCrawlerSignatures = []string{
	"facebookexternalhit",
	"facebot",
	"twitterbot",
	"twitter",
	"x-bot",
	"line",
	"linkedinbot",
	"whatsapp",
	"telegram",
	"slackbot",
	"discordbot",
	"pinterest",
	"googlebot",
	"bingbot",
	"slurp",
	"duckduckbot",
	"baiduspider",
	"yandexbot",
	"bot",
	"crawler",
	"spider",
	"scraper",
}

// CrawlerDetector classifies User-Agents as link preview crawlers.
type CrawlerDetector struct {
	signatures []string
}

// NewCrawlerDetector returns a detector for the default signatures plus extra.
func NewCrawlerDetector(extra ...string) *CrawlerDetector {
	seen := make(map[string]struct{}, len(DefaultCrawlerSignatures)+len(extra))
	sigs := make([]string, 0, len(DefaultCrawlerSignatures)+len(extra))
	for _, s := range append(append([]string{}, DefaultCrawlerSignatures...), extra...) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		sigs = append(sigs, s)
	}
	return &CrawlerDetector{signatures: sigs}
}

// IsCrawler reports whether userAgent contains any signature.
// An empty User-Agent is treated as a browser.
func (d *CrawlerDetector) IsCrawler(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	ua := strings.ToLower(userAgent)
	for _, s := range d.signatures {
		if strings.Contains(ua, s) {
			return true
		}
	}
	return false
}

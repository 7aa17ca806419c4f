// Package policy loads the optional operator policy file.
//
// Example:
//
//	reserved_codes:
//	  - promo
//	  - login
//	crawler_signatures:
//	  - mastodon
//	  - embedly
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy extends the built-in reserved codes and crawler signatures.
type Policy struct {
	ReservedCodes     []string `yaml:"reserved_codes"`
	CrawlerSignatures []string `yaml:"crawler_signatures"`
}

// Loader handles loading and parsing of the policy file
type Loader struct {
	filePath string
}

// NewLoader creates a new policy loader. An empty path yields an empty Policy.
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the policy file. Unknown keys are rejected so a typo
// does not silently disable an entry.
func (l *Loader) Load() (*Policy, error) {
	if l.filePath == "" {
		return &Policy{}, nil
	}

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse policy yaml: %w", err)
	}

	p.ReservedCodes = normalize(p.ReservedCodes)
	p.CrawlerSignatures = normalize(p.CrawlerSignatures)
	return &p, nil
}

// normalize lowercases, trims and deduplicates entries.
func normalize(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

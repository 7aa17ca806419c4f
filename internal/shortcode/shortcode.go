// Package shortcode generates and validates public link codes.
package shortcode

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/MrSnakeDoc/hop/internal/domain"
)

const (
	// Length is the number of symbols in a generated code.
	Length = 6

	// MaxAttempts bounds the collision retries of Generate.
	MaxAttempts = 5

	// Alphabet is the URL-safe symbol set. Its size is 64 so a random byte
	// masked with 63 maps to a symbol without bias.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
)

var formatRe = regexp.MustCompile(`^[A-Za-z0-9_-]{6}$`)

// DefaultReserved are path segments the HTTP edge owns.
var DefaultReserved = []string{
	"api",
	"health",
	"healthz",
	"readyz",
	"infra",
	"metrics",
	"admin",
	"static",
	"docs",
	"favicon.ico",
	"robots.txt",
}

// Checker reports whether a code is already taken, soft-deleted links included.
type Checker interface {
	Exists(ctx context.Context, code string) (bool, error)
}

// Generator draws random codes and retries on collision.
type Generator struct {
	checker  Checker
	reserved map[string]struct{}
	random   io.Reader
}

// New returns a Generator backed by crypto/rand. Extra reserved words are
// added to DefaultReserved.
func New(checker Checker, extraReserved ...string) *Generator {
	reserved := make(map[string]struct{}, len(DefaultReserved)+len(extraReserved))
	for _, w := range DefaultReserved {
		reserved[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range extraReserved {
		if w = strings.TrimSpace(w); w != "" {
			reserved[strings.ToLower(w)] = struct{}{}
		}
	}
	return &Generator{checker: checker, reserved: reserved, random: rand.Reader}
}

// Generate returns a code that is well formed, not reserved and not present
// in the registry at check time. It fails with domain.ErrGenerationExhausted
// after MaxAttempts collisions. A registry error aborts immediately.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		code, err := g.draw()
		if err != nil {
			return "", err
		}

		if g.IsReservedCode(code) {
			continue
		}

		exists, err := g.checker.Exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check code availability: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", domain.ErrGenerationExhausted
}

func (g *Generator) draw() (string, error) {
	buf := make([]byte, Length)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = Alphabet[b&63]
	}
	return string(buf), nil
}

// IsReservedCode reports whether code collides, case-insensitively, with a
// reserved word.
func (g *Generator) IsReservedCode(code string) bool {
	_, ok := g.reserved[strings.ToLower(code)]
	return ok
}

// IsValidFormat reports whether code has the shape of a generated code.
func IsValidFormat(code string) bool {
	return formatRe.MatchString(code)
}

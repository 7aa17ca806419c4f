package shortcode

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/hop/internal/domain"
)

type fakeChecker struct {
	taken map[string]bool
	err   error
	calls int
}

func (f *fakeChecker) Exists(_ context.Context, code string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.taken[code], nil
}

// fixedRandom feeds the generator a scripted byte stream.
func fixedRandom(codes ...string) *bytes.Reader {
	var buf []byte
	for _, c := range codes {
		for i := 0; i < len(c); i++ {
			buf = append(buf, byte(bytes.IndexByte([]byte(Alphabet), c[i])))
		}
	}
	return bytes.NewReader(buf)
}

func TestGenerateProducesValidCodes(t *testing.T) {
	g := New(&fakeChecker{})

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := g.Generate(context.Background())
		require.NoError(t, err)
		assert.True(t, IsValidFormat(code), "code %q has invalid format", code)
		assert.False(t, g.IsReservedCode(code))
		seen[code] = true
	}
	// 64^6 possibilities; 200 draws colliding would point at a broken source.
	assert.Greater(t, len(seen), 195)
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	checker := &fakeChecker{taken: map[string]bool{"aaaaaa": true, "bbbbbb": true}}
	g := New(checker)
	g.random = fixedRandom("aaaaaa", "bbbbbb", "cccccc")

	code, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cccccc", code)
	assert.Equal(t, 3, checker.calls)
}

func TestGenerateSkipsReservedWithoutRegistryCall(t *testing.T) {
	checker := &fakeChecker{}
	g := New(checker, "abcdef")
	g.random = fixedRandom("ABCDEF", "zzzzzz")

	code, err := g.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "zzzzzz", code)
	assert.Equal(t, 1, checker.calls)
}

func TestGenerateExhausted(t *testing.T) {
	checker := &fakeChecker{taken: map[string]bool{"aaaaaa": true}}
	g := New(checker)
	g.random = fixedRandom("aaaaaa", "aaaaaa", "aaaaaa", "aaaaaa", "aaaaaa", "bbbbbb")

	_, err := g.Generate(context.Background())
	assert.ErrorIs(t, err, domain.ErrGenerationExhausted)
	assert.Equal(t, MaxAttempts, checker.calls)
}

func TestGenerateRegistryErrorAborts(t *testing.T) {
	boom := errors.New("connection refused")
	checker := &fakeChecker{err: boom}
	g := New(checker)

	_, err := g.Generate(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrGenerationExhausted)
	assert.Equal(t, 1, checker.calls)
}

func TestIsReservedCode(t *testing.T) {
	g := New(nil, "promo")

	tests := []struct {
		code string
		want bool
	}{
		{"health", true},
		{"HEALTH", true},
		{"Api", true},
		{"metrics", true},
		{"PROMO", true},
		{"abc123", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, g.IsReservedCode(tt.code))
		})
	}
}

func TestIsValidFormat(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"abc123", true},
		{"A_b-9Z", true},
		{"abc12", false},
		{"abc1234", false},
		{"abc 12", false},
		{"abc.12", false},
		{"", false},
		{"héllo1", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidFormat(tt.code))
		})
	}
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"
)

func newTestGenerator(t *testing.T, keys []string, call callFunc) (*Generator, *CredentialPool) {
	t.Helper()
	pool := NewCredentialPool(keys)
	g := NewGenerator(pool, "gemini-2.0-flash", zaptest.NewLogger(t))
	g.call = call
	return g, pool
}

func TestGenerateNoCredentials(t *testing.T) {
	called := false
	g, _ := newTestGenerator(t, nil, func(context.Context, string, string, string, *genai.Schema) (string, error) {
		called = true
		return "", nil
	})

	_, err := g.Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.False(t, called, "no call may be attempted without a credential")
}

func TestGenerateEmptyResponseIsUnavailable(t *testing.T) {
	g, pool := newTestGenerator(t, []string{"k1", "k2"}, func(context.Context, string, string, string, *genai.Schema) (string, error) {
		return "", nil
	})

	_, err := g.Generate(context.Background(), "prompt")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Zero(t, pool.Advances(), "empty response must not rotate credentials")
}

func TestGenerateRotatesUntilSuccess(t *testing.T) {
	keys := []string{"k1", "k2", "k3"}
	g, pool := newTestGenerator(t, keys, func(_ context.Context, apiKey, _, _ string, _ *genai.Schema) (string, error) {
		if apiKey != "k3" {
			return "", fmt.Errorf("quota exceeded for %s", apiKey)
		}
		return `[{"comment":"Great point!"}]`, nil
	})

	comments, err := g.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Great point!", comments[0].Comment)
	assert.Equal(t, 2, pool.Advances(), "first N-1 failures advance the rotation")
}

func TestGenerateExhaustsAllCredentials(t *testing.T) {
	attempts := 0
	g, pool := newTestGenerator(t, []string{"k1", "k2"}, func(context.Context, string, string, string, *genai.Schema) (string, error) {
		attempts++
		return "", errors.New("quota exceeded")
	})

	_, err := g.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrServiceUnavailable)
	assert.Contains(t, err.Error(), "exhausted")
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, pool.Advances())
}

func TestGenerateMalformedJSONIsTerminal(t *testing.T) {
	attempts := 0
	g, pool := newTestGenerator(t, []string{"k1", "k2"}, func(context.Context, string, string, string, *genai.Schema) (string, error) {
		attempts++
		return "not json at all", nil
	})

	_, err := g.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "malformed JSON must not be retried against another credential")
	assert.Zero(t, pool.Advances())
}

func TestRotationIndexIsMonotonicAcrossCalls(t *testing.T) {
	fail := true
	g, pool := newTestGenerator(t, []string{"k1", "k2"}, func(_ context.Context, apiKey, _, _ string, _ *genai.Schema) (string, error) {
		if fail && apiKey == "k1" {
			return "", errors.New("quota")
		}
		return `[{"comment":"ok"}]`, nil
	})

	_, err := g.Generate(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Advances())

	// The next call starts from the rotated position, not from zero.
	fail = false
	_, err = g.Generate(context.Background(), "p2")
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Advances())

	key, ok := pool.Current()
	require.True(t, ok)
	assert.Equal(t, "k2", key)
}

func TestBuildPrompt(t *testing.T) {
	opts := DefaultPromptOptions()

	t.Run("embeds caption and constraints", func(t *testing.T) {
		p := BuildPrompt("sunset over the bay", nil, opts)
		assert.Contains(t, p, `"sunset over the bay"`)
		assert.Contains(t, p, "300 characters or less")
		assert.NotContains(t, p, "background context")
	})

	t.Run("caps snippet count and length", func(t *testing.T) {
		long := strings.Repeat("x", 500)
		p := BuildPrompt("caption", []string{long, "two", "three", "four"}, opts)
		assert.Contains(t, p, "background context")
		assert.Contains(t, p, strings.Repeat("x", 200))
		assert.NotContains(t, p, strings.Repeat("x", 201))
		assert.Contains(t, p, "three")
		assert.NotContains(t, p, "four")
	})

	t.Run("truncation keeps snippets valid UTF-8", func(t *testing.T) {
		// 199 ASCII bytes followed by a multi-byte rune straddling the
		// 200-byte snippet cap.
		snippet := strings.Repeat("x", 199) + "éllo wörld"
		p := BuildPrompt("caption", []string{snippet}, opts)
		assert.True(t, utf8.ValidString(p))
		assert.NotContains(t, p, "�")
	})
}

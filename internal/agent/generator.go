// Package agent produces engagement comments with a schema-constrained
// generative model, rotating across API credentials when the hosted
// endpoint rejects a call (quota, transport failure).
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

var (
	// ErrNoCredentials means no API key is configured; no call is made.
	ErrNoCredentials = errors.New("agent: no API credential configured")
	// ErrServiceUnavailable means the model returned an empty response.
	// This is a degraded-service outcome, not a crash: callers skip the
	// comment and continue.
	ErrServiceUnavailable = errors.New("agent: generation service unavailable")
)

// Comment is one generated reply candidate.
type Comment struct {
	Comment string `json:"comment"`
}

// commentSchema constrains the model output to an array of objects each
// carrying a single comment string.
func commentSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"comment": {
					Type:        genai.TypeString,
					Description: "Reply text, 300 characters or less",
				},
			},
			Required: []string{"comment"},
		},
	}
}

// callFunc issues one schema-constrained generation request with the
// given credential and returns the raw JSON text. Swapped in tests.
type callFunc func(ctx context.Context, apiKey, model, prompt string, schema *genai.Schema) (string, error)

// Generator is the content-generation adapter.
type Generator struct {
	pool  *CredentialPool
	model string
	call  callFunc
	log   *zap.Logger
}

// NewGenerator builds a Generator over the credential pool.
func NewGenerator(pool *CredentialPool, model string, log *zap.Logger) *Generator {
	return &Generator{
		pool:  pool,
		model: model,
		call:  callGemini,
		log:   log,
	}
}

// Generate produces comment candidates for the prompt. Behavior:
//   - no credential configured: ErrNoCredentials, no call attempted
//   - empty model response: ErrServiceUnavailable
//   - call error: advance the rotation and retry, at most once per
//     configured credential; when exhausted the last error is terminal
//   - malformed JSON: terminal, not retried against another credential
func (g *Generator) Generate(ctx context.Context, prompt string) ([]Comment, error) {
	if g.pool.Size() == 0 {
		g.log.Warn("comment generation skipped: no API credential configured")
		return nil, ErrNoCredentials
	}

	var lastErr error
	for attempt := 0; attempt < g.pool.Size(); attempt++ {
		key, ok := g.pool.Current()
		if !ok {
			return nil, ErrNoCredentials
		}

		text, err := g.call(ctx, key, g.model, prompt, commentSchema())
		if err != nil {
			lastErr = err
			g.pool.Advance()
			g.log.Warn("generation call failed, rotating credential",
				zap.Int("attempt", attempt+1),
				zap.Int("credentials", g.pool.Size()),
				zap.Error(err))
			continue
		}

		if text == "" {
			g.log.Warn("generation service returned no content")
			return nil, ErrServiceUnavailable
		}

		var comments []Comment
		if err := json.Unmarshal([]byte(text), &comments); err != nil {
			return nil, fmt.Errorf("parse generated comments: %w", err)
		}
		return comments, nil
	}

	return nil, fmt.Errorf("all %d credentials exhausted: %w", g.pool.Size(), lastErr)
}

// callGemini is the production call path on the genai SDK.
func callGemini(ctx context.Context, apiKey, model, prompt string, schema *genai.Schema) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create genai client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		},
	)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text(), nil
}

// Package training ingests personalization material: raw text pasted by
// the user and text scraped from websites. Stored items later feed the
// comment prompt as background context.
package training

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"instaflow/internal/store"
)

const (
	fetchTimeout    = 20 * time.Second
	maxContentChars = 10000
	maxBodyBytes    = 2 << 20
)

var (
	// ErrEmptyContent is returned when an ingested source yields no usable text.
	ErrEmptyContent = errors.New("training: no usable content")
	// ErrInvalidURL is returned for website sources that are not http(s).
	ErrInvalidURL = errors.New("training: invalid website url")
	// ErrFetchFailed is returned when a website source cannot be retrieved.
	ErrFetchFailed = errors.New("training: website fetch failed")
)

// Store persists ingested items.
type Store interface {
	AddTrainingItem(ctx context.Context, item store.TrainingItem) (*store.TrainingItem, error)
}

// Service ingests and normalizes training data.
type Service struct {
	store  Store
	client *http.Client
	log    *zap.Logger
}

// NewService builds an ingestion service with a bounded HTTP client.
func NewService(st Store, log *zap.Logger) *Service {
	return &Service{
		store:  st,
		client: &http.Client{Timeout: fetchTimeout},
		log:    log,
	}
}

// AddText stores a raw text snippet for an account.
func (s *Service) AddText(ctx context.Context, userID, accountUsername, content string) (*store.TrainingItem, error) {
	content = clampContent(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	return s.store.AddTrainingItem(ctx, store.TrainingItem{
		UserID:          userID,
		AccountUsername: accountUsername,
		DataType:        "text",
		Content:         content,
		Source:          "manual",
	})
}

// AddWebsite fetches a page, strips it down to visible text, and stores
// the result with the page URL as provenance.
func (s *Service) AddWebsite(ctx context.Context, userID, accountUsername, rawURL string) (*store.TrainingItem, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	text, err := s.fetchText(ctx, u.String())
	if err != nil {
		return nil, err
	}
	text = clampContent(text)
	if text == "" {
		return nil, ErrEmptyContent
	}

	s.log.Info("website ingested",
		zap.String("url", u.String()), zap.Int("chars", len(text)))

	return s.store.AddTrainingItem(ctx, store.TrainingItem{
		UserID:          userID,
		AccountUsername: accountUsername,
		DataType:        "website",
		Content:         text,
		Source:          u.String(),
	})
}

func (s *Service) fetchText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("training: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrFetchFailed, pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s: status %d", ErrFetchFailed, pageURL, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("training: parse %s: %w", pageURL, err)
	}
	return ExtractText(doc), nil
}

// ExtractText collapses a parsed HTML document into its visible text,
// skipping non-content subtrees.
func ExtractText(doc *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head", "iframe", "svg":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// clampContent trims and bounds a snippet, cutting on a rune boundary.
func clampContent(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxContentChars {
		cut := maxContentChars
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}

// Package engage walks an authenticated feed and performs like/comment
// actions post by post. All page access goes through the browser.Page
// capability interface, so the state machine is testable without Chrome.
package engage

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"instaflow/internal/agent"
	"instaflow/internal/browser"
)

// Feed selectors, by ordinal position within the feed. The caption
// selectors track the platform's current markup and are expected to
// drift; drift degrades into skipped actions, not crashes.
func postSelector(ordinal int) string {
	return fmt.Sprintf("article:nth-of-type(%d)", ordinal)
}

const (
	likeControl   = ` svg[aria-label="Like"]`
	unlikeControl = ` svg[aria-label="Unlike"]`
	captionText   = ` div.x9f619 span._ap3a div span._ap3a`
	captionMore   = ` div.x9f619 span._ap3a span div span.x1lliihq`
	commentBox    = ` textarea`
	submitRole    = "button"
	submitLabel   = "Post"
)

// Generator produces comment candidates for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) ([]agent.Comment, error)
}

// Config bounds one account's engagement run.
type Config struct {
	MaxPosts int
	MinDelay time.Duration
	MaxDelay time.Duration
	Prompt   agent.PromptOptions
}

// Loop drives the per-post interaction sequence for one account.
type Loop struct {
	gen Generator
	cfg Config
	log *zap.Logger

	// sleep is swapped in tests to avoid real pacing delays.
	sleep func(ctx context.Context, d time.Duration)
	rng   *rand.Rand
}

// New creates an engagement loop.
func New(gen Generator, cfg Config, log *zap.Logger) *Loop {
	return &Loop{
		gen:   gen,
		cfg:   cfg,
		log:   log,
		sleep: sleepCtx,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Run processes feed posts in order until the configured cap, the end
// of the feed, or the first page-level error. A missing post container
// means "end of feed" and terminates cleanly; missing affordances on a
// present post are logged and skipped.
func (l *Loop) Run(ctx context.Context, page browser.Page, accountUsername string, snippets []string) error {
	log := l.log.With(zap.String("account", accountUsername))

	for ordinal := 1; ordinal <= l.cfg.MaxPosts; ordinal++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		post := postSelector(ordinal)
		if !page.Exists(post) {
			log.Info("no more posts in feed", zap.Int("post", ordinal))
			return nil
		}
		plog := log.With(zap.Int("post", ordinal))

		if err := l.like(page, post, plog); err != nil {
			return fmt.Errorf("like post %d: %w", ordinal, err)
		}

		caption := l.caption(page, post, plog)

		// Generation calls are rate-limited; don't spend one on a post
		// that cannot take a comment.
		if !page.Exists(post + commentBox) {
			plog.Info("comments disabled, skipping")
		} else if comment := l.generateComment(ctx, caption, snippets, plog); comment != "" {
			if err := l.submit(page, post, comment, plog); err != nil {
				return fmt.Errorf("comment on post %d: %w", ordinal, err)
			}
		}

		l.pause(ctx, plog)

		if err := page.ScrollPage(); err != nil {
			return fmt.Errorf("scroll past post %d: %w", ordinal, err)
		}
	}
	return nil
}

// like inspects the like affordance's accessible label: "Like" means
// clickable, "Unlike" means already liked, neither means the control is
// missing. Only a failed click on a present control is an error.
func (l *Loop) like(page browser.Page, post string, log *zap.Logger) error {
	switch {
	case page.Exists(post + likeControl):
		if err := page.Click(post + likeControl); err != nil {
			return err
		}
		log.Info("post liked")
	case page.Exists(post + unlikeControl):
		log.Info("post already liked")
	default:
		log.Warn("like control not found")
	}
	return nil
}

// caption reads the visible caption and expands a truncated one via the
// "more" affordance, re-reading the full text.
func (l *Loop) caption(page browser.Page, post string, log *zap.Logger) string {
	if !page.Exists(post + captionText) {
		log.Info("no caption found")
		return ""
	}
	text, err := page.Text(post + captionText)
	if err != nil {
		log.Warn("caption unreadable", zap.Error(err))
		return ""
	}

	if page.Exists(post + captionMore) {
		if err := page.Click(post + captionMore); err != nil {
			log.Warn("caption expansion failed", zap.Error(err))
			return text
		}
		if expanded, err := page.Text(post + captionText); err == nil {
			text = expanded
		}
	}
	return text
}

// generateComment builds the prompt and invokes the adapter. Every
// failure mode degrades into "no comment": unavailability and credential
// exhaustion skip the submit step rather than aborting the account run.
func (l *Loop) generateComment(ctx context.Context, caption string, snippets []string, log *zap.Logger) string {
	prompt := agent.BuildPrompt(caption, snippets, l.cfg.Prompt)

	comments, err := l.gen.Generate(ctx, prompt)
	if err != nil {
		switch {
		case errors.Is(err, agent.ErrNoCredentials), errors.Is(err, agent.ErrServiceUnavailable):
			log.Info("comment generation unavailable, skipping", zap.Error(err))
		default:
			log.Warn("comment generation failed, skipping", zap.Error(err))
		}
		return ""
	}
	if len(comments) == 0 || comments[0].Comment == "" {
		log.Info("generator returned no comment, skipping")
		return ""
	}
	return comments[0].Comment
}

// submit types the comment and activates the submission control located
// by its label. A missing control is a skipped action.
func (l *Loop) submit(page browser.Page, post, comment string, log *zap.Logger) error {
	if err := page.Type(post+commentBox, comment); err != nil {
		return err
	}
	if err := page.ClickByLabel(submitRole, submitLabel); err != nil {
		log.Warn("submission control not found, skipping", zap.Error(err))
		return nil
	}
	log.Info("comment posted", zap.Int("chars", len(comment)))
	return nil
}

// pause waits a randomized interval to emulate human pacing.
func (l *Loop) pause(ctx context.Context, log *zap.Logger) {
	d := l.cfg.MinDelay
	if span := l.cfg.MaxDelay - l.cfg.MinDelay; span > 0 {
		d += time.Duration(l.rng.Int64N(int64(span)))
	}
	log.Debug("pacing delay", zap.Duration("wait", d))
	l.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

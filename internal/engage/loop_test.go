package engage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"instaflow/internal/agent"
	"instaflow/internal/browser"
)

type fakePage struct {
	existing map[string]bool
	texts    map[string]string

	clicked       []string
	typed         map[string]string
	labelClicks   int
	labelClickErr error
	scrolls       int
}

func newFakePage() *fakePage {
	return &fakePage{
		existing: map[string]bool{},
		texts:    map[string]string{},
		typed:    map[string]string{},
	}
}

func (f *fakePage) Navigate(string) error                    { return nil }
func (f *fakePage) WaitIdle(time.Duration) error             { return nil }
func (f *fakePage) WaitVisible(string, time.Duration) error  { return nil }
func (f *fakePage) Exists(selector string) bool              { return f.existing[selector] }
func (f *fakePage) Text(selector string) (string, error)     { return f.texts[selector], nil }
func (f *fakePage) Cookies() ([]browser.CookieRecord, error) { return nil, nil }
func (f *fakePage) SetCookies([]browser.CookieRecord) error  { return nil }

func (f *fakePage) Click(selector string) error {
	f.clicked = append(f.clicked, selector)
	return nil
}

func (f *fakePage) Type(selector, text string) error {
	f.typed[selector] = text
	return nil
}

func (f *fakePage) ClickByLabel(string, string) error {
	f.labelClicks++
	return f.labelClickErr
}

func (f *fakePage) ScrollPage() error {
	f.scrolls++
	return nil
}

// addPost registers a feed post with a like control and a caption.
func (f *fakePage) addPost(ordinal int, caption string) string {
	sel := postSelector(ordinal)
	f.existing[sel] = true
	f.existing[sel+likeControl] = true
	f.existing[sel+captionText] = true
	f.existing[sel+commentBox] = true
	f.texts[sel+captionText] = caption
	return sel
}

type fakeGen struct {
	comments []agent.Comment
	err      error
	prompts  []string
}

func (g *fakeGen) Generate(_ context.Context, prompt string) ([]agent.Comment, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return nil, g.err
	}
	return g.comments, nil
}

func newTestLoop(t *testing.T, gen Generator, maxPosts int) *Loop {
	t.Helper()
	l := New(gen, Config{
		MaxPosts: maxPosts,
		MinDelay: time.Millisecond,
		MaxDelay: 2 * time.Millisecond,
		Prompt:   agent.DefaultPromptOptions(),
	}, zaptest.NewLogger(t))
	l.sleep = func(context.Context, time.Duration) {}
	return l
}

func TestRunStopsAtEndOfFeed(t *testing.T) {
	page := newFakePage()
	page.addPost(1, "first")
	gen := &fakeGen{comments: []agent.Comment{{Comment: "Nice shot!"}}}
	loop := newTestLoop(t, gen, 5)

	require.NoError(t, loop.Run(context.Background(), page, "alice", nil))

	assert.Equal(t, 1, page.scrolls)
	assert.Len(t, gen.prompts, 1)
}

func TestRunRespectsPostCap(t *testing.T) {
	page := newFakePage()
	for i := 1; i <= 10; i++ {
		page.addPost(i, "post")
	}
	gen := &fakeGen{comments: []agent.Comment{{Comment: "Love this."}}}
	loop := newTestLoop(t, gen, 5)

	require.NoError(t, loop.Run(context.Background(), page, "alice", nil))

	assert.Equal(t, 5, page.scrolls)
	assert.Len(t, page.typed, 5)
	assert.Equal(t, 5, page.labelClicks)
}

func TestRunSkipsLikeWhenAlreadyLiked(t *testing.T) {
	page := newFakePage()
	sel := page.addPost(1, "seen before")
	page.existing[sel+likeControl] = false
	page.existing[sel+unlikeControl] = true
	gen := &fakeGen{comments: []agent.Comment{{Comment: "Still great."}}}
	loop := newTestLoop(t, gen, 1)

	require.NoError(t, loop.Run(context.Background(), page, "alice", nil))

	assert.NotContains(t, page.clicked, sel+likeControl)
}

func TestRunMissingSubmitControlIsNonFatal(t *testing.T) {
	page := newFakePage()
	sel := page.addPost(1, "caption")
	page.labelClickErr = errors.New("no element matched")
	gen := &fakeGen{comments: []agent.Comment{{Comment: "Agreed."}}}
	loop := newTestLoop(t, gen, 1)

	require.NoError(t, loop.Run(context.Background(), page, "alice", nil))

	assert.Equal(t, "Agreed.", page.typed[sel+commentBox])
	assert.Equal(t, 1, page.scrolls)
}

func TestRunGenerationFailureSkipsComment(t *testing.T) {
	page := newFakePage()
	page.addPost(1, "caption")
	page.addPost(2, "caption")
	gen := &fakeGen{err: agent.ErrServiceUnavailable}
	loop := newTestLoop(t, gen, 2)

	require.NoError(t, loop.Run(context.Background(), page, "alice", nil))

	assert.Empty(t, page.typed)
	assert.Zero(t, page.labelClicks)
	assert.Equal(t, 2, page.scrolls)
	assert.Contains(t, page.clicked, postSelector(1)+likeControl)
}

func TestRunExpandsTruncatedCaption(t *testing.T) {
	page := newFakePage()
	sel := page.addPost(1, "short")
	page.existing[sel+captionMore] = true
	gen := &fakeGen{comments: []agent.Comment{{Comment: "Wonderful."}}}
	loop := newTestLoop(t, gen, 1)

	// Expansion click swaps in the full caption text.
	page.texts[sel+captionText] = "short caption with much more detail"

	require.NoError(t, loop.Run(context.Background(), page, "alice", nil))

	assert.Contains(t, page.clicked, sel+captionMore)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "short caption with much more detail")
}

func TestRunHonorsContextCancellation(t *testing.T) {
	page := newFakePage()
	page.addPost(1, "caption")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loop := newTestLoop(t, &fakeGen{}, 1)

	err := loop.Run(ctx, page, "alice", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, page.scrolls)
}

func TestRunTwoPostScenario(t *testing.T) {
	page := newFakePage()
	first := page.addPost(1, "golden hour at the beach")
	second := page.addPost(2, "limited drop friday")
	page.existing[second+commentBox] = false

	gen := &fakeGen{comments: []agent.Comment{{Comment: "Great point!"}}}
	loop := newTestLoop(t, gen, 5)

	require.NoError(t, loop.Run(context.Background(), page, "alice", []string{"loves photography"}))

	assert.Contains(t, page.clicked, first+likeControl)
	assert.Contains(t, page.clicked, second+likeControl)
	assert.Equal(t, "Great point!", page.typed[first+commentBox])
	assert.NotContains(t, page.typed, second+commentBox)
	assert.Equal(t, 1, page.labelClicks)
	assert.Equal(t, 2, page.scrolls)
	require.Len(t, gen.prompts, 1, "comments-disabled post must not generate")
	assert.Contains(t, gen.prompts[0], "golden hour at the beach")
	assert.Contains(t, gen.prompts[0], "loves photography")
}

func TestRunCommentsDisabledSkipsGeneration(t *testing.T) {
	page := newFakePage()
	sel := page.addPost(1, "caption")
	page.existing[sel+commentBox] = false
	gen := &fakeGen{comments: []agent.Comment{{Comment: "unused"}}}
	loop := newTestLoop(t, gen, 1)

	require.NoError(t, loop.Run(context.Background(), page, "alice", nil))

	assert.Empty(t, gen.prompts, "no generation call without a comment box")
	assert.Contains(t, page.clicked, sel+likeControl)
	assert.Equal(t, 1, page.scrolls)
}

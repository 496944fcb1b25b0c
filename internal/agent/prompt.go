package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// PromptOptions bound the personalization window embedded in a prompt.
type PromptOptions struct {
	// MaxSnippets caps how many context snippets are used.
	MaxSnippets int
	// SnippetMaxChars truncates each snippet.
	SnippetMaxChars int
	// CommentMaxChars is the reply length constraint stated to the model.
	CommentMaxChars int
}

// DefaultPromptOptions mirrors the production limits.
func DefaultPromptOptions() PromptOptions {
	return PromptOptions{
		MaxSnippets:     3,
		SnippetMaxChars: 200,
		CommentMaxChars: 300,
	}
}

// BuildPrompt constructs the generation instruction around a post
// caption, biased by recent personalization snippets.
func BuildPrompt(caption string, snippets []string, opts PromptOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b,
		"Craft a thoughtful, engaging, and mature reply to the following post: %q. "+
			"Ensure the reply is relevant, insightful, and adds value to the conversation. "+
			"It should reflect empathy and professionalism, and avoid sounding too casual or superficial. "+
			"The reply must be %d characters or less and must not violate community standards on spam. "+
			"Humanize the reply and make it sound authentic.",
		caption, opts.CommentMaxChars)

	used := snippets
	if opts.MaxSnippets > 0 && len(used) > opts.MaxSnippets {
		used = used[:opts.MaxSnippets]
	}
	if len(used) > 0 {
		parts := make([]string, 0, len(used))
		for _, s := range used {
			parts = append(parts, truncate(s, opts.SnippetMaxChars))
		}
		fmt.Fprintf(&b,
			" Consider this background context about the account's personality and style: %s.",
			strings.Join(parts, ". "))
	}
	return b.String()
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Package browser establishes authenticated platform sessions behind a
// narrow page capability interface, so engagement logic stays testable
// without a real browser and upstream markup drift is contained in one
// adapter.
package browser

import "time"

// Page exposes only the operations the session and engagement layers
// need. Waits are bounded; a hung page must never stall a whole pass.
type Page interface {
	// Navigate loads the URL within the configured navigation timeout.
	Navigate(url string) error
	// WaitIdle blocks until the page settles or the timeout elapses.
	WaitIdle(timeout time.Duration) error
	// WaitVisible blocks until the selector resolves to a visible
	// element or the timeout elapses.
	WaitVisible(selector string, timeout time.Duration) error
	// Exists reports whether the selector currently resolves.
	Exists(selector string) bool
	// Text returns the visible text of the first match.
	Text(selector string) (string, error)
	// Click activates the first match.
	Click(selector string) error
	// Type enters text into the first match.
	Type(selector, text string) error
	// ClickByLabel activates the first enabled element with the given
	// role whose visible label equals label. Tolerates markup drift
	// better than a fixed selector.
	ClickByLabel(role, label string) error
	// ScrollPage advances the viewport by one screen height.
	ScrollPage() error
	// Cookies snapshots the session's cookie set.
	Cookies() ([]CookieRecord, error)
	// SetCookies attaches cookies to the session.
	SetCookies([]CookieRecord) error
}

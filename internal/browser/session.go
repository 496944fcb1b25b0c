package browser

import (
	"fmt"

	"go.uber.org/zap"

	"instaflow/internal/config"
	"instaflow/internal/store"
)

// Platform entry points and probes. The inbox link only renders for an
// authenticated session, so its presence validates a cookie resume.
const (
	homeURL  = "https://www.instagram.com/"
	loginURL = "https://www.instagram.com/accounts/login/"

	loggedInProbe = `a[href="/direct/inbox/"]`
	usernameField = `input[name="username"]`
	passwordField = `input[name="password"]`
	loginSubmit   = `button[type="submit"]`
)

// SessionManager turns an account plus a fresh page into an
// authenticated session, preferring cookie resume over credential login.
type SessionManager struct {
	cfg config.BrowserConfig
	log *zap.Logger
}

// NewSessionManager creates a session manager.
func NewSessionManager(cfg config.BrowserConfig, log *zap.Logger) *SessionManager {
	return &SessionManager{cfg: cfg, log: log}
}

// Establish authenticates the page for the account. Algorithm:
//  1. Load the cookie jar; attach cookies to the fresh page.
//  2. Navigate home and wait for the page to settle.
//  3. Probe for the logged-in-only element; present means resumed.
//  4. Any miss — absent jar, corrupt jar, navigation error, failed
//     probe — falls back to credential login, which overwrites the jar
//     only after the whole login succeeds.
func (m *SessionManager) Establish(page Page, account store.Account, jarPath string) error {
	log := m.log.With(zap.String("account", account.Username))

	cookies, err := LoadJar(jarPath)
	if err != nil {
		log.Info("no usable cookie jar, logging in with credentials", zap.Error(err))
		return m.login(page, account, jarPath)
	}

	if err := m.resume(page, cookies); err != nil {
		log.Warn("cookie resume failed, logging in with credentials", zap.Error(err))
		return m.login(page, account, jarPath)
	}

	log.Info("session resumed from cookies")
	return nil
}

func (m *SessionManager) resume(page Page, cookies []CookieRecord) error {
	if err := page.SetCookies(cookies); err != nil {
		return fmt.Errorf("attach cookies: %w", err)
	}
	if err := page.Navigate(homeURL); err != nil {
		return fmt.Errorf("navigate home: %w", err)
	}
	if err := page.WaitIdle(m.cfg.NavigationTimeout()); err != nil {
		return fmt.Errorf("settle home page: %w", err)
	}
	if !page.Exists(loggedInProbe) {
		return fmt.Errorf("cookies invalid: logged-in probe absent")
	}
	return nil
}

// login performs the interactive credential flow, persists the
// resulting cookie set, and lands the page on the home feed. The jar is
// written only after the flow succeeds, so a failure anywhere leaves
// the previous jar untouched.
func (m *SessionManager) login(page Page, account store.Account, jarPath string) error {
	log := m.log.With(zap.String("account", account.Username))

	if err := page.Navigate(loginURL); err != nil {
		return fmt.Errorf("navigate to login: %w", err)
	}
	if err := page.WaitVisible(usernameField, m.cfg.LoginFieldTimeout()); err != nil {
		return fmt.Errorf("login form did not appear: %w", err)
	}
	if err := page.Type(usernameField, account.Username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}
	if err := page.Type(passwordField, account.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := page.Click(loginSubmit); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	if err := page.WaitIdle(m.cfg.LoginNavTimeout()); err != nil {
		return fmt.Errorf("post-login navigation: %w", err)
	}

	cookies, err := page.Cookies()
	if err != nil {
		return fmt.Errorf("snapshot cookies: %w", err)
	}
	if err := SaveJar(jarPath, cookies); err != nil {
		return err
	}
	log.Info("login successful, cookie jar saved", zap.String("jar", jarPath))

	// Post-login navigation may end on an interstitial; the engagement
	// loop expects the feed.
	if err := page.Navigate(homeURL); err != nil {
		return fmt.Errorf("navigate to feed after login: %w", err)
	}
	if err := page.WaitIdle(m.cfg.NavigationTimeout()); err != nil {
		return fmt.Errorf("settle feed after login: %w", err)
	}
	return nil
}

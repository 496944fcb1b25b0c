// Package orchestrator runs engagement passes across every active
// account. Each account gets a fresh proxy tunnel, browser, and session;
// one account's failure never stops the pass.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"instaflow/internal/browser"
	"instaflow/internal/config"
	"instaflow/internal/proxy"
	"instaflow/internal/store"
)

// AccountSource enumerates active accounts and records completed runs.
type AccountSource interface {
	FindActiveAccounts(ctx context.Context) ([]store.UserAccounts, error)
	RecordLastActive(ctx context.Context, userID, username string, ts time.Time) error
}

// ContextSource fetches personalization snippets for prompt building.
type ContextSource interface {
	RecentContext(ctx context.Context, userID, accountUsername string, limit int) ([]string, error)
}

// Tunnel is the per-account proxy endpoint handed to the browser.
type Tunnel interface {
	Addr() string
	Close() error
}

// TunnelOpener allocates a tunnel for one account run.
type TunnelOpener interface {
	Open(hint string) (Tunnel, error)
}

// Browser is a launched browser instance scoped to one account run.
type Browser interface {
	NewPage() (browser.Page, error)
	Close() error
}

// LaunchFunc starts a browser routed through the given proxy.
type LaunchFunc func(ctx context.Context, cfg config.BrowserConfig, proxyAddr string) (Browser, error)

// Sessioner authenticates a page, resuming a saved session when possible.
type Sessioner interface {
	Establish(page browser.Page, account store.Account, jarPath string) error
}

// Engager processes the feed for an authenticated page.
type Engager interface {
	Run(ctx context.Context, page browser.Page, accountUsername string, snippets []string) error
}

// Orchestrator sequences account runs within a pass.
type Orchestrator struct {
	cfg      *config.Config
	accounts AccountSource
	contexts ContextSource
	tunnels  TunnelOpener
	launch   LaunchFunc
	sessions Sessioner
	engager  Engager
	log      *zap.Logger

	now func() time.Time
}

// New wires an orchestrator from its collaborators.
func New(cfg *config.Config, accounts AccountSource, contexts ContextSource, tunnels TunnelOpener, launch LaunchFunc, sessions Sessioner, engager Engager, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		accounts: accounts,
		contexts: contexts,
		tunnels:  tunnels,
		launch:   launch,
		sessions: sessions,
		engager:  engager,
		log:      log,
		now:      time.Now,
	}
}

// RunAll executes one pass: every active account of every user, in
// order. Account failures are logged and isolated; only enumeration
// errors and context cancellation abort the pass.
func (o *Orchestrator) RunAll(ctx context.Context) error {
	groups, err := o.accounts.FindActiveAccounts(ctx)
	if err != nil {
		return fmt.Errorf("enumerate active accounts: %w", err)
	}

	for _, group := range groups {
		for _, acct := range group.Accounts {
			if err := ctx.Err(); err != nil {
				return err
			}
			log := o.log.With(
				zap.String("user", group.User.Username),
				zap.String("account", acct.Username),
			)
			log.Info("account run starting")
			if err := o.runAccount(ctx, group.User, acct); err != nil {
				log.Error("account run failed", zap.Error(err))
				continue
			}
			log.Info("account run finished")
		}
	}
	return nil
}

// runAccount drives one account end to end. The deferred recover keeps
// a misbehaving page library from taking down the whole pass.
func (o *Orchestrator) runAccount(ctx context.Context, user store.User, acct store.Account) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("account run panicked: %v", r)
		}
	}()

	tun, err := o.tunnels.Open(acct.Username)
	if err != nil {
		return fmt.Errorf("open proxy tunnel: %w", err)
	}
	defer tun.Close()

	b, err := o.launch(ctx, o.cfg.Browser, tun.Addr())
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer b.Close()

	page, err := b.NewPage()
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	jar := browser.JarPath(o.cfg.Browser.CookieDir, user.ID, acct.Username)
	if err := o.sessions.Establish(page, acct, jar); err != nil {
		return fmt.Errorf("establish session: %w", err)
	}

	snippets, err := o.contexts.RecentContext(ctx, user.ID, acct.Username, o.cfg.Agent.ContextFetchLimit)
	if err != nil {
		o.log.Warn("context fetch failed, proceeding without snippets",
			zap.String("account", acct.Username), zap.Error(err))
		snippets = nil
	}

	if err := o.engager.Run(ctx, page, acct.Username, snippets); err != nil {
		return fmt.Errorf("engage feed: %w", err)
	}

	if err := o.accounts.RecordLastActive(ctx, user.ID, acct.Username, o.now()); err != nil {
		o.log.Warn("record last active failed",
			zap.String("account", acct.Username), zap.Error(err))
	}
	return nil
}

// ProxyOpener adapts a proxy.Manager to the TunnelOpener interface.
type ProxyOpener struct {
	Manager *proxy.Manager
}

func (p ProxyOpener) Open(hint string) (Tunnel, error) {
	return p.Manager.Open(hint)
}

// LaunchRod is the production LaunchFunc backed by a real Chromium.
func LaunchRod(ctx context.Context, cfg config.BrowserConfig, proxyAddr string) (Browser, error) {
	b, err := browser.Launch(ctx, cfg, proxyAddr)
	if err != nil {
		return nil, err
	}
	return b, nil
}

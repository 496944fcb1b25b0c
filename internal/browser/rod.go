package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"instaflow/internal/config"
)

// elementTimeout bounds individual element lookups so a missing
// affordance degrades into a skipped action instead of a hang.
const elementTimeout = 5 * time.Second

// Browser owns one Chrome instance routed through an account's proxy
// tunnel. One Browser serves one account run.
type Browser struct {
	cfg      config.BrowserConfig
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// Launch starts Chrome with the account's proxy as its egress path.
func Launch(ctx context.Context, cfg config.BrowserConfig, proxyAddr string) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(true).
		Set(flags.Flag("disable-dev-shm-usage")).
		Set(flags.Flag("disable-gpu")).
		Set(flags.Flag("no-first-run"))
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	if proxyAddr != "" {
		l = l.Proxy(proxyAddr)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	return &Browser{cfg: cfg, launcher: l, browser: b}, nil
}

// NewPage opens a page with the configured viewport.
func (b *Browser) NewPage() (Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             b.cfg.ViewportWidth,
		Height:            b.cfg.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	return &rodPage{page: page, navTimeout: b.cfg.NavigationTimeout()}, nil
}

// Close shuts the browser down and kills the Chrome process.
func (b *Browser) Close() error {
	err := b.browser.Close()
	b.launcher.Kill()
	return err
}

// rodPage adapts a rod page to the Page capability interface.
type rodPage struct {
	page       *rod.Page
	navTimeout time.Duration
}

func (p *rodPage) Navigate(url string) error {
	return p.page.Timeout(p.navTimeout).Navigate(url)
}

func (p *rodPage) WaitIdle(timeout time.Duration) error {
	pg := p.page.Timeout(timeout)
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	wait := pg.WaitRequestIdle(800*time.Millisecond, nil, nil, nil)
	wait()
	return nil
}

func (p *rodPage) WaitVisible(selector string, timeout time.Duration) error {
	el, err := p.page.Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Exists(selector string) bool {
	has, _, err := p.page.Has(selector)
	return err == nil && has
}

func (p *rodPage) Text(selector string) (string, error) {
	el, err := p.page.Timeout(elementTimeout).Element(selector)
	if err != nil {
		return "", fmt.Errorf("element %s: %w", selector, err)
	}
	return el.Text()
}

func (p *rodPage) Click(selector string) error {
	el, err := p.page.Timeout(elementTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Type(selector, text string) error {
	el, err := p.page.Timeout(elementTimeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s: %w", selector, err)
	}
	return el.Input(text)
}

// ClickByLabel resolves the control by role and visible label instead
// of a fixed selector, tolerating minor markup drift.
func (p *rodPage) ClickByLabel(role, label string) error {
	res, err := p.page.Timeout(elementTimeout).Evaluate(&rod.EvalOptions{
		JS: `
		(role, label) => {
			const candidates = Array.from(document.querySelectorAll('[role="' + role + '"], ' + role));
			const el = candidates.find(e =>
				e.textContent.trim() === label &&
				!e.hasAttribute('disabled') &&
				e.getAttribute('aria-disabled') !== 'true');
			if (!el) return false;
			el.click();
			return true;
		}
		`,
		JSArgs:  []interface{}{role, label},
		ByValue: true,
	})
	if err != nil {
		return fmt.Errorf("locate %s %q: %w", role, label, err)
	}
	if !res.Value.Bool() {
		return fmt.Errorf("no enabled %s labeled %q", role, label)
	}
	return nil
}

func (p *rodPage) ScrollPage() error {
	_, err := p.page.Timeout(elementTimeout).Evaluate(&rod.EvalOptions{
		JS:      `() => window.scrollBy(0, window.innerHeight)`,
		ByValue: true,
	})
	return err
}

func (p *rodPage) Cookies() ([]CookieRecord, error) {
	res, err := proto.NetworkGetCookies{}.Call(p.page)
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	cookies := make([]CookieRecord, 0, len(res.Cookies))
	for _, c := range res.Cookies {
		cookies = append(cookies, CookieRecord{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return cookies, nil
}

func (p *rodPage) SetCookies(cookies []CookieRecord) error {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		})
	}
	if len(params) == 0 {
		return nil
	}
	return p.page.SetCookies(params)
}

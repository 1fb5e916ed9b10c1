package scraper

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/appraise/config"
	"github.com/use-agent/appraise/models"
)

// Browser owns the Chromium process and the single long-lived tab that
// every listing is rendered in. Listings share cookies and the solved
// CAPTCHA state of that tab, so the browser is never pooled.
type Browser struct {
	browser   *rod.Browser
	page      *rod.Page
	router    *rod.HijackRouter
	cfg       config.BrowserConfig
	startTime time.Time
}

// Launch starts Chromium and prepares the shared tab.
func Launch(cfg config.BrowserConfig) (*Browser, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox)

	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	// ── Stealth flags ────────────────────────────────────────────────
	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("lang"), "ru-RU")
	l.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewExtractError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL, "headless", cfg.Headless)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewExtractError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		return nil, models.NewExtractError(models.ErrCodeBrowserCrash, "failed to open tab", err)
	}

	b := &Browser{browser: browser, page: page, cfg: cfg, startTime: time.Now()}
	b.prepare()
	return b, nil
}

// prepare installs everything that must precede the first navigation.
func (b *Browser) prepare() {
	// ── 1. Stealth injection ──
	if b.cfg.Stealth {
		if _, err := b.page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	// ── 2. Viewport ──
	// Headful windows keep the real monitor DPR; only the CSS size is fixed.
	if b.cfg.Headless {
		_ = proto.EmulationSetDeviceMetricsOverride{
			Width:             b.cfg.WindowWidth,
			Height:            b.cfg.WindowHeight,
			DeviceScaleFactor: 1,
		}.Call(b.page)
	}

	// ── 3. Extra headers ──
	if b.cfg.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{"Accept-Language": b.cfg.AcceptLanguage}),
		}.Call(b.page)
	}

	// ── 4. Hijack router (fonts/media + ads) ──
	b.router = setupHijack(b.page, b.cfg.BlockedResourceTypes, b.cfg.BlockAds)
}

// Surface returns the engine view of the shared tab.
func (b *Browser) Surface(navigationTimeout time.Duration) *Surface {
	return &Surface{page: b.page, navTimeout: navigationTimeout}
}

// Uptime reports how long the browser has been running.
func (b *Browser) Uptime() time.Duration {
	return time.Since(b.startTime)
}

// Close stops the hijack router and kills the browser process.
// Call this on graceful shutdown to prevent zombie Chrome processes.
func (b *Browser) Close() {
	if b.router != nil {
		_ = b.router.Stop()
	}
	slog.Info("browser shutting down")
	if err := b.browser.Close(); err != nil {
		slog.Warn("browser close failed", "error", err)
	}
}

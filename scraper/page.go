package scraper

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/png"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/appraise/engine"
	"github.com/use-agent/appraise/models"
	"github.com/ysmood/gson"
)

// Surface adapts a rod page to engine.Surface. Queries never wait: they
// see the DOM as it is at call time.
type Surface struct {
	page       *rod.Page
	navTimeout time.Duration
}

var _ engine.Surface = (*Surface)(nil)

// Navigate loads url and waits for the DOM to stop changing.
//
// Lifecycle:
//
//  1. Timeout guard  – hard deadline on navigation alone
//  2. Navigate       – triggers page load
//  3. Wait           – DOM stable, best effort
func (s *Surface) Navigate(ctx context.Context, url string) error {
	// ── 1. Timeout guard ──
	navCtx := ctx
	if s.navTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.navTimeout)
		defer cancel()
	}
	p := s.page.Context(navCtx)

	// ── 2. Navigate ──
	if err := p.Navigate(url); err != nil {
		return categorizeError(err, "navigation to listing failed")
	}

	// ── 3. Wait strategy ──
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		if errors.Is(err, context.Canceled) {
			return categorizeError(err, "navigation cancelled")
		}
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM", "url", url, "error", err)
	}
	return nil
}

func (s *Surface) BodyText() (string, error) {
	return s.evalString(`() => document.body ? document.body.innerText : ""`)
}

func (s *Surface) Query(sel engine.Selector) ([]engine.Element, error) {
	els, err := queryPage(s.page, sel)
	if err != nil {
		return nil, err
	}
	return wrap(els), nil
}

func (s *Surface) HTML() (string, error) {
	return s.page.HTML()
}

func (s *Surface) DevicePixelRatio() (float64, error) {
	res, err := s.page.Eval(`() => window.devicePixelRatio || 1`)
	if err != nil {
		return 0, err
	}
	return res.Value.Num(), nil
}

func (s *Surface) Viewport() (float64, float64, error) {
	res, err := s.page.Eval(`() => ({w: window.innerWidth, h: window.innerHeight})`)
	if err != nil {
		return 0, 0, err
	}
	return res.Value.Get("w").Num(), res.Value.Get("h").Num(), nil
}

func (s *Surface) ReadyState() (string, error) {
	return s.evalString(`() => document.readyState`)
}

func (s *Surface) ScrollY() (float64, error) {
	res, err := s.page.Eval(`() => window.scrollY`)
	if err != nil {
		return 0, err
	}
	return res.Value.Num(), nil
}

func (s *Surface) ScrollTo(y float64) error {
	_, err := s.page.Eval(`(y) => window.scrollTo(0, y)`, y)
	return err
}

func (s *Surface) ScrollBy(dy float64) error {
	_, err := s.page.Eval(`(dy) => window.scrollBy(0, dy)`, dy)
	return err
}

// MoveAway parks the pointer in the top-left corner.
func (s *Surface) MoveAway() error {
	return s.page.Mouse.MoveTo(proto.Point{X: 2, Y: 2})
}

// Capture writes a viewport PNG to path.
func (s *Surface) Capture(ctx context.Context, path string) (int, int, error) {
	data, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return 0, 0, categorizeError(err, "screenshot failed")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func (s *Surface) Dispatch(event string) error {
	_, err := s.page.Eval(`(name) => window.dispatchEvent(new Event(name))`, event)
	return err
}

// Zoom sets the CSS zoom of the body, as the sites' own zoom control does.
func (s *Surface) Zoom(factor float64) error {
	_, err := s.page.Eval(`(z) => { document.body.style.zoom = z }`, factor)
	return err
}

func (s *Surface) evalString(js string) (string, error) {
	res, err := s.page.Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

// queryPage resolves CSS selectors with Elements and text selectors with
// an XPath contains() over own text nodes. Neither call retries.
func queryPage(q interface {
	Elements(string) (rod.Elements, error)
	ElementsX(string) (rod.Elements, error)
}, sel engine.Selector) (rod.Elements, error) {
	if sel.IsText() {
		return q.ElementsX(".//*[contains(text(), " + xpathLiteral(sel.Phrase()) + ")]")
	}
	return q.Elements(string(sel))
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw rod errors into coded errors so records and
// the API can tell timeouts from crashes.
func categorizeError(err error, msg string) *models.ExtractError {
	var ee *models.ExtractError
	if errors.As(err, &ee) {
		return ee
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewExtractError(models.ErrCodeNavigationTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewExtractError(models.ErrCodeNavigation, "request canceled", err)
	case isCrash(err):
		return models.NewExtractError(models.ErrCodeBrowserCrash, msg, err)
	default:
		return models.NewExtractError(models.ErrCodeNavigation, msg, err)
	}
}

func isCrash(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "websocket") || strings.Contains(msg, "Target closed") ||
		strings.Contains(msg, "use of closed network connection")
}

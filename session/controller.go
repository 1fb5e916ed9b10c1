// Package session drives one listing page from navigation to interactive
// content: not-found and block detection, the manual-intervention pause,
// and readiness polling.
package session

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/use-agent/appraise/config"
	"github.com/use-agent/appraise/engine"
	"github.com/use-agent/appraise/extract"
	"github.com/use-agent/appraise/models"
	"github.com/use-agent/appraise/site"
)

// State is the per-listing session state.
type State int

const (
	Loading State = iota
	ContentReady
	NotFound
	Blocked
	AwaitingManualIntervention
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case ContentReady:
		return "content_ready"
	case NotFound:
		return "not_found"
	case Blocked:
		return "blocked"
	case AwaitingManualIntervention:
		return "awaiting_manual_intervention"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

const scrollSettle = 300 * time.Millisecond

// Outcome is the terminal result of Open.
type Outcome struct {
	State State
	// Probed reports whether the readiness probe saw the hover widget
	// respond. When false the page was accepted on document readiness.
	Probed bool
	// Interventions counts operator pauses taken on this page.
	Interventions int
}

// Controller opens listing pages on a shared surface.
type Controller struct {
	surface engine.Surface
	op      Operator
	cfg     config.SessionConfig
	log     *slog.Logger
}

// NewController returns a Controller. A nil operator only logs.
func NewController(s engine.Surface, op Operator, cfg config.SessionConfig, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if op == nil {
		op = LogOperator{Log: log}
	}
	return &Controller{surface: s, op: op, cfg: cfg, log: log}
}

// Open navigates to url and returns once the page is ContentReady,
// NotFound or Failed. A blocked page pauses on a fresh Gate until an
// operator resumes it; cancelling ctx during the pause fails the page with
// a BLOCKED_OR_CAPTCHA error. For a ctx from Detach only the pause observes
// the stop.
func (c *Controller) Open(ctx context.Context, url string, p *site.Profile) (Outcome, error) {
	out := Outcome{State: Loading}
	log := c.log.With("url", url, "site", p.Name)

	// ── 1. Navigate ──
	if err := c.surface.Navigate(ctx, url); err != nil {
		out.State = Failed
		var ee *models.ExtractError
		if errors.As(err, &ee) {
			return out, err
		}
		return out, models.NewExtractError(models.ErrCodeNavigation, "navigation failed", err)
	}
	if err := engine.Pause(ctx, c.cfg.SettleDelay); err != nil {
		out.State = Failed
		return out, models.NewExtractError(models.ErrCodeNavigation, "cancelled after navigation", err)
	}

	// ── 2. Not found / blocked ──
	body, err := c.surface.BodyText()
	if err != nil {
		log.Debug("body text unavailable", "error", err)
	}
	if p.IsNotFound(body) {
		out.State = NotFound
		log.Info("listing not found")
		return out, nil
	}

	reason := ""
	if p.IsBlocked(body) {
		reason = ReasonBlocked
	} else if !c.hasContent(p) {
		reason = ReasonNoContent
	}
	if reason != "" {
		out.State = Blocked
		if err := c.await(ctx, log, url, p, reason); err != nil {
			out.State = Failed
			return out, err
		}
		out.Interventions++
	}

	// ── 3. Readiness ──
	out.Probed = c.ready(ctx, log, p)

	// ── 4. Login wall ──
	if c.needsLogin(p) {
		out.State = Blocked
		if err := c.await(ctx, log, url, p, ReasonLoginRequired); err != nil {
			out.State = Failed
			return out, err
		}
		out.Interventions++
	}

	out.State = ContentReady
	return out, nil
}

func (c *Controller) hasContent(p *site.Profile) bool {
	if len(p.ContentMarker) == 0 {
		return true
	}
	_, err := extract.First(c.surface, p.ContentMarker, nil)
	return err == nil
}

func (c *Controller) needsLogin(p *site.Profile) bool {
	if p.Login == nil || p.Login.Selector == "" {
		return false
	}
	el, err := engine.QueryFirst(c.surface, p.Login.Selector)
	if err != nil || el == nil {
		return false
	}
	text, err := el.Text()
	return err == nil && strings.Contains(text, p.Login.Phrase)
}

// await publishes an intervention and blocks until its gate resolves.
func (c *Controller) await(ctx context.Context, log *slog.Logger, url string, p *site.Profile, reason string) error {
	gate := NewGate()
	iv := Intervention{URL: url, Site: p.Name, Reason: reason, Since: time.Now(), Gate: gate}

	log.Warn("page blocked, waiting for operator", "reason", reason, "state", AwaitingManualIntervention.String())
	stop := stopContext(ctx)
	c.op.Notify(stop, iv)

	err := gate.Wait(stop, c.cfg.Heartbeat, func(waited time.Duration) {
		log.Info("still waiting for operator", "reason", reason, "waited", waited.Round(time.Second).String())
	})
	if err != nil {
		return models.NewExtractError(models.ErrCodeBlocked, "operator did not resume before cancellation", err)
	}
	log.Info("operator resumed session", "reason", reason)
	return nil
}

// ready runs the hover probe when the profile has one, then falls back to
// a document readiness wait. It never fails: a page that never settles is
// extracted as it is.
func (c *Controller) ready(ctx context.Context, log *slog.Logger, p *site.Profile) bool {
	r := p.Readiness
	if r.Probe {
		attempts := firstPositive(r.Attempts, c.cfg.ReadyAttempts)
		interval := firstDuration(r.Interval, c.cfg.ReadyInterval)
		for i := 1; i <= attempts; i++ {
			if engine.Pause(ctx, interval) != nil {
				return false
			}
			if c.probe(ctx, r) {
				log.Debug("readiness probe succeeded", "attempt", i)
				return true
			}
			log.Debug("readiness probe missed", "attempt", i, "max", attempts)
		}
		log.Warn("readiness probe exhausted, falling back to document state", "attempts", attempts)
	}

	if c.waitDocument(ctx, r) {
		if err := engine.Pause(ctx, r.Settle); err != nil {
			return false
		}
	} else {
		log.Warn("document readiness timed out, extracting anyway")
	}
	return false
}

// probe hovers the first visible trigger and looks for a tooltip that
// carries the marker.
func (c *Controller) probe(ctx context.Context, r site.Readiness) bool {
	trigger, err := extract.First(c.surface, r.Trigger, extract.All(extract.Visible, extract.MinSize(1, 0)))
	if err != nil {
		return false
	}
	if err := trigger.ScrollIntoView(engine.AlignCenter); err != nil {
		return false
	}
	if engine.Pause(ctx, min(scrollSettle, c.cfg.HoverSettle)) != nil {
		return false
	}
	if err := trigger.Hover(); err != nil {
		return false
	}
	if engine.Pause(ctx, c.cfg.HoverSettle) != nil {
		return false
	}
	_, err = extract.First(c.surface, r.Tooltip, extract.All(extract.Visible, extract.ContainsAny(r.Marker)))
	if err == nil {
		return true
	}
	_ = c.surface.MoveAway()
	return false
}

func (c *Controller) waitDocument(ctx context.Context, r site.Readiness) bool {
	states := r.ReadyStates
	if len(states) == 0 {
		states = []string{"complete"}
	}
	timeout := firstDuration(r.Timeout, c.cfg.DOMReadyTimeout)
	deadline := time.Now().Add(timeout)
	for {
		state, err := c.surface.ReadyState()
		if err == nil && slices.Contains(states, state) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		if engine.Pause(ctx, max(c.cfg.PollInterval, time.Millisecond)) != nil {
			return false
		}
	}
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 1
}

func firstDuration(vals ...time.Duration) time.Duration {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

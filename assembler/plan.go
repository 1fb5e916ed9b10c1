package assembler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/use-agent/appraise/engine"
	"github.com/use-agent/appraise/extract"
	"github.com/use-agent/appraise/models"
	"github.com/use-agent/appraise/session"
	"github.com/use-agent/appraise/shot"
	"github.com/use-agent/appraise/site"
)

// visible accepts displayed elements with a non-zero width.
var visible = extract.All(extract.Visible, extract.MinSize(1, 0))

// capture runs the screenshot plan of the profile. The price history is
// read while the tooltip is open, so both happen here.
func (a *Assembler) capture(ctx context.Context, log *slog.Logger, p *site.Profile, out session.Outcome, rec *models.ListingRecord) {
	// A probing site whose probe never saw the tooltip has no usable
	// history trigger on this page.
	wantHistory := !p.Readiness.Probe || out.Probed
	if !wantHistory {
		log.Info("price history skipped, readiness probe did not see the tooltip", "code", models.ErrCodeTooltipAbsent)
	}

	dir := ""
	if a.capturer != nil {
		d, err := a.capturer.Dir(rec.Title, rec.Address)
		if err != nil {
			log.Warn("screenshots disabled for listing", "error", err)
		} else {
			dir = d
		}
	}

	switch p.Plan {
	case site.PlanCian:
		a.cianPlan(ctx, log, p, dir, wantHistory, rec)
	default:
		a.avitoPlan(ctx, log, p, dir, wantHistory, rec)
	}
}

// avitoPlan: ads removed, history tooltip shot, description shot, and a
// bottom shot when the publication date is outside the viewport.
func (a *Assembler) avitoPlan(ctx context.Context, log *slog.Logger, p *site.Profile, dir string, wantHistory bool, rec *models.ListingRecord) {
	container := a.container(p)
	if container != nil {
		a.removeAds(ctx, log, container, p.Shots.Ads)
	}

	if wantHistory {
		entries, hovered := a.history(ctx, log, p, 20)
		rec.PriceHistory = entries
		if hovered && dir != "" {
			rec.Screenshots.Top = a.shoot(ctx, log, dir, shot.FilePriceHistory, container)
		}
		a.moveAway(ctx)
	}
	if dir == "" {
		return
	}

	// Description
	var target engine.Element
	if container != nil {
		target, _ = extract.First(container, p.Shots.Description, nil)
		if target == nil {
			target = container
		}
	}
	if target != nil {
		if err := target.ScrollIntoView(engine.AlignStart); err != nil {
			log.Debug("scroll to description failed", "error", err)
		}
		if err := a.pause(ctx); err != nil {
			return
		}
	}
	rec.Screenshots.Description = a.shoot(ctx, log, dir, shot.FileDescription, container)

	// Publication date
	if !a.belowViewport(p.Shots.DateMarker) {
		return
	}
	if date, _ := engine.QueryFirst(a.surface, p.Shots.DateMarker); date != nil {
		if err := date.ScrollIntoView(engine.AlignCenter); err != nil {
			log.Debug("scroll to publication date failed", "error", err)
		}
	}
	if err := a.pause(ctx); err != nil {
		return
	}
	rec.Screenshots.Bottom = a.shoot(ctx, log, dir, shot.FilePublicationDate, container)
}

// cianPlan: title shot with the history tooltip open, publication date
// from the stats dialog, then the description in one or two shots.
func (a *Assembler) cianPlan(ctx context.Context, log *slog.Logger, p *site.Profile, dir string, wantHistory bool, rec *models.ListingRecord) {
	// Title
	if err := a.surface.ScrollTo(0); err != nil {
		log.Debug("scroll to top failed", "error", err)
	}
	if title, err := extract.First(a.surface, p.Shots.TitleAnchor, extract.Visible); err == nil {
		if title.ScrollIntoView(engine.AlignCenter) == nil {
			_ = a.surface.ScrollBy(-100)
		}
	}
	if err := a.pause(ctx); err != nil {
		return
	}
	if wantHistory {
		rec.PriceHistory, _ = a.history(ctx, log, p, -50)
	}
	if dir != "" {
		rec.Screenshots.Top = a.shoot(ctx, log, dir, shot.FileTitle, a.container(p))
	}
	a.moveAway(ctx)
	if dir == "" {
		return
	}

	// Publication date
	if opener, err := extract.First(a.surface, p.Shots.StatsOpener, extract.Visible); err == nil {
		_ = opener.ScrollIntoView(engine.AlignCenter)
		if err := a.pause(ctx); err != nil {
			return
		}
		if err := opener.Click(); err != nil {
			log.Debug("stats dialog did not open", "error", err)
		}
		if err := engine.Pause(ctx, a.cfg.HoverSettle); err != nil {
			return
		}
		if block, err := extract.First(a.surface, p.Shots.StatsBlock, visible); err == nil {
			_ = block.ScrollIntoView(engine.AlignCenter)
			if err := a.pause(ctx); err != nil {
				return
			}
		}
		rec.Screenshots.PublicationDate = a.shoot(ctx, log, dir, shot.FilePublicationDate, a.container(p))
		if closer, err := extract.First(a.surface, p.Shots.Closers, extract.Visible); err == nil {
			if err := closer.Click(); err != nil {
				log.Debug("stats dialog did not close", "error", err)
			}
			_ = a.pause(ctx)
		}
	} else {
		log.Info("stats opener not found, no publication date shot")
	}

	// Description
	block, err := extract.First(a.surface, p.Shots.Description,
		extract.All(extract.Visible, extract.MinSize(0, p.Shots.DescriptionMin+0.001)))
	if err != nil {
		log.Info("description block not found, no description shot")
		return
	}
	if r, err := block.Rect(); err == nil {
		if _, vh, err := a.surface.Viewport(); err == nil {
			_ = a.surface.ScrollBy(r.Top - vh/2 + r.Height/2)
		}
	}
	if err := a.pause(ctx); err != nil {
		return
	}
	paths, err := a.capturer.ShootBlock(ctx, a.surface, dir, block, a.container(p),
		shot.FileDescription, shot.FileDescriptionFirst, shot.FileDescriptionSecond)
	if err != nil {
		log.Warn("description shot failed", "error", err)
	}
	if len(paths) > 0 {
		rec.Screenshots.Description = paths[0]
	}
	if len(paths) > 1 {
		rec.Screenshots.DescriptionTail = paths[1]
	}
}

// history hovers the trigger and parses the tooltip. hovered reports
// whether the hover itself succeeded; the tooltip may still be absent.
func (a *Assembler) history(ctx context.Context, log *slog.Logger, p *site.Profile, nudge float64) (entries []models.PriceHistoryEntry, hovered bool) {
	trigger, err := extract.First(a.surface, p.History.Trigger, visible)
	if err != nil {
		log.Info("price history trigger not found", "code", models.ErrCodeTooltipAbsent)
		return nil, false
	}
	if err := trigger.ScrollIntoView(engine.AlignCenter); err == nil {
		_ = a.surface.ScrollBy(nudge)
	}
	if err := a.pause(ctx); err != nil {
		return nil, false
	}
	if err := trigger.Hover(); err != nil {
		log.Info("price history hover failed", "code", models.ErrCodeTooltipAbsent, "error", err)
		return nil, false
	}
	if err := engine.Pause(ctx, a.cfg.HoverSettle); err != nil {
		return nil, true
	}

	tooltip, err := extract.First(a.surface, p.History.Tooltip,
		extract.All(extract.Visible, anyOf(p.History.Markers), minText(p.History.MinText)))
	if err != nil {
		log.Info("price history tooltip absent", "code", models.ErrCodeTooltipAbsent)
		return nil, true
	}
	text, err := tooltip.Text()
	if err != nil {
		log.Info("price history tooltip unreadable", "code", models.ErrCodeTooltipAbsent, "error", err)
		return nil, true
	}
	entries = p.HistoryGrammar().Parse(text)
	log.Debug("price history parsed", "entries", len(entries))
	return entries, true
}

// expandDescription clicks the "show more" toggle of a collapsed
// description, if there is one.
func (a *Assembler) expandDescription(ctx context.Context, log *slog.Logger, p *site.Profile) {
	if len(p.Shots.Expander) == 0 {
		return
	}
	btn, err := extract.First(a.surface, p.Shots.Expander,
		extract.All(extract.Visible, anyOf(p.Shots.ExpanderWords)))
	if err != nil {
		return
	}
	_ = btn.ScrollIntoView(engine.AlignCenter)
	if err := a.pause(ctx); err != nil {
		return
	}
	if err := btn.Click(); err != nil {
		log.Debug("description expander click failed", "error", err)
		return
	}
	_ = a.pause(ctx)
	log.Debug("description expanded")
}

// container returns the crop container, or nil when the page has none
// wide enough.
func (a *Assembler) container(p *site.Profile) engine.Element {
	el, err := extract.First(a.surface, p.Shots.Container,
		extract.All(extract.Visible, extract.MinSize(p.Shots.ContainerMinWidth, 0)))
	if err != nil {
		return nil
	}
	return el
}

func (a *Assembler) removeAds(ctx context.Context, log *slog.Logger, container engine.Element, ads extract.Cascade) {
	removed := 0
	extract.Each(container, ads, func(el engine.Element) {
		if el.Remove() == nil {
			removed++
		}
	})
	if removed == 0 {
		return
	}
	if err := a.surface.Dispatch("resize"); err != nil {
		log.Debug("resize dispatch failed", "error", err)
	}
	_ = engine.Pause(ctx, min(scrollSettle, a.cfg.HoverSettle))
	log.Debug("ads removed", "count", removed)
}

// belowViewport reports whether the element is not fully inside the
// viewport. A missing element needs no extra shot.
func (a *Assembler) belowViewport(sel engine.Selector) bool {
	if sel == "" {
		return false
	}
	el, err := engine.QueryFirst(a.surface, sel)
	if err != nil || el == nil {
		return false
	}
	r, err := el.Rect()
	if err != nil {
		return false
	}
	_, vh, err := a.surface.Viewport()
	if err != nil {
		return false
	}
	return r.Top < 0 || r.Bottom() > vh
}

// shoot stores one screenshot and returns its path, or "" on failure.
func (a *Assembler) shoot(ctx context.Context, log *slog.Logger, dir, name string, container engine.Element) string {
	path, err := a.capturer.Shoot(ctx, a.surface, dir, name, container)
	if err != nil {
		log.Warn("screenshot failed", "file", name, "error", err)
		return ""
	}
	return path
}

func (a *Assembler) moveAway(ctx context.Context) {
	_ = a.surface.MoveAway()
	_ = engine.Pause(ctx, min(scrollSettle, a.cfg.HoverSettle))
}

// anyOf is ContainsAny, or no filter when words is empty.
func anyOf(words []string) extract.Predicate {
	if len(words) == 0 {
		return nil
	}
	return extract.ContainsAny(words...)
}

func minText(n int) extract.Predicate {
	return func(el engine.Element) bool {
		if n <= 0 {
			return true
		}
		text, err := el.Text()
		return err == nil && len([]rune(strings.TrimSpace(text))) > n
	}
}

package extract

import (
	"log/slog"
	"strings"

	"github.com/use-agent/appraise/engine"
	"github.com/use-agent/appraise/models"
)

// Extractor reads text fields from a surface. It never mutates the page.
type Extractor struct {
	q   engine.Queryer
	log *slog.Logger
}

// New returns an Extractor over q. A nil logger uses slog.Default.
func New(q engine.Queryer, log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{q: q, log: log}
}

// Text returns the trimmed text of the first candidate whose first match
// has non-empty text. A miss returns ErrCodeSelectorMiss.
func (x *Extractor) Text(c Cascade) (string, error) {
	for _, sel := range c {
		els, err := x.q.Query(sel)
		if err != nil {
			x.log.Debug("selector query failed", "selector", sel, "error", err)
			continue
		}
		if len(els) == 0 {
			continue
		}
		text, err := els[0].Text()
		if err != nil {
			x.log.Debug("element text unavailable", "selector", sel, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
	}
	return "", models.NewExtractError(models.ErrCodeSelectorMiss, "no text for "+c.String(), nil)
}

// TextOr is Text with a default for misses.
func (x *Extractor) TextOr(c Cascade, def string) string {
	text, err := x.Text(c)
	if err != nil {
		return def
	}
	return text
}

// Params reads key/value rows. Each row splits on its first colon, or
// else on its first line break; rows that fit neither are skipped. Later
// rows overwrite earlier keys. With firstGroupWins the scan stops after
// the first candidate that produced any pair.
func (x *Extractor) Params(rows Cascade, firstGroupWins bool) map[string]string {
	params := make(map[string]string)
	for _, sel := range rows {
		els, err := x.q.Query(sel)
		if err != nil {
			x.log.Debug("param selector query failed", "selector", sel, "error", err)
			continue
		}
		for _, el := range els {
			text, err := el.Text()
			if err != nil {
				continue
			}
			if k, v, ok := SplitParam(text); ok {
				params[k] = v
			}
		}
		if firstGroupWins && len(params) > 0 {
			break
		}
	}
	return params
}

// SplitParam splits one parameter row into key and value.
func SplitParam(text string) (key, value string, ok bool) {
	text = strings.TrimSpace(text)
	if k, v, found := strings.Cut(text, ":"); found {
		key, value = strings.TrimSpace(k), strings.TrimSpace(v)
		return key, value, key != ""
	}
	if strings.Contains(text, "\n") {
		parts := strings.Split(text, "\n")
		key, value = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		return key, value, key != ""
	}
	return "", "", false
}

package session

import (
	"context"
	"log/slog"
	"time"
)

// Intervention asks a human to clear a block or log in. Resolving Gate
// lets the session continue.
type Intervention struct {
	URL    string
	Site   string
	Reason string
	Since  time.Time
	Gate   *Gate
}

// Reasons reported in an Intervention.
const (
	ReasonBlocked       = "blocked"
	ReasonNoContent     = "content_missing"
	ReasonLoginRequired = "login_required"
)

// Operator is told about every intervention. Notify must not block; the
// session waits on the gate, not on Notify.
type Operator interface {
	Notify(ctx context.Context, iv Intervention)
}

// OperatorFunc adapts a function to Operator.
type OperatorFunc func(ctx context.Context, iv Intervention)

func (f OperatorFunc) Notify(ctx context.Context, iv Intervention) { f(ctx, iv) }

// MultiOperator fans an intervention out to several operators.
type MultiOperator []Operator

func (m MultiOperator) Notify(ctx context.Context, iv Intervention) {
	for _, op := range m {
		if op != nil {
			op.Notify(ctx, iv)
		}
	}
}

// LogOperator writes interventions to a logger.
type LogOperator struct {
	Log *slog.Logger
}

func (o LogOperator) Notify(_ context.Context, iv Intervention) {
	log := o.Log
	if log == nil {
		log = slog.Default()
	}
	log.Warn("manual intervention required",
		"url", iv.URL,
		"site", iv.Site,
		"reason", iv.Reason,
	)
}

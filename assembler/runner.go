package assembler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/use-agent/appraise/cache"
	"github.com/use-agent/appraise/config"
	"github.com/use-agent/appraise/models"
	"github.com/use-agent/appraise/session"
	"github.com/use-agent/appraise/simhash"
)

// Builder builds the record of one listing URL.
type Builder interface {
	Build(ctx context.Context, url string) *models.ListingRecord
}

// Sink receives every record as soon as it is final.
type Sink interface {
	Put(ctx context.Context, rec *models.ListingRecord) error
}

// Progress is called after each listing with the number of records done.
type Progress func(done, total int, rec *models.ListingRecord)

// Runner processes URLs strictly sequentially, in input order.
type Runner struct {
	builder  Builder
	cache    *cache.Cache
	pace     time.Duration
	distance int
	sinks    []Sink
	progress Progress
	log      *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithCache reuses records of recently built URLs.
func WithCache(c *cache.Cache) RunnerOption {
	return func(r *Runner) { r.cache = c }
}

// WithSinks adds record sinks.
func WithSinks(sinks ...Sink) RunnerOption {
	return func(r *Runner) { r.sinks = append(r.sinks, sinks...) }
}

// WithProgress sets the per-listing callback.
func WithProgress(fn Progress) RunnerOption {
	return func(r *Runner) { r.progress = fn }
}

// NewRunner returns a Runner paced and deduplicated per cfg.
func NewRunner(b Builder, cfg config.RunConfig, log *slog.Logger, opts ...RunnerOption) *Runner {
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{
		builder:  b,
		pace:     cfg.Pace,
		distance: cfg.DuplicateDistance,
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run builds one record per URL. Cancelling ctx stops the run between
// listings; the listing in flight is finished and the records built so
// far are returned. A listing waiting on an operator when ctx is
// cancelled is recorded as blocked_unresolved.
func (r *Runner) Run(ctx context.Context, urls []string) []*models.ListingRecord {
	records := make([]*models.ListingRecord, 0, len(urls))
	dups := simhash.NewIndex(r.distance)

	var limiter *rate.Limiter
	if r.pace > 0 {
		limiter = rate.NewLimiter(rate.Every(r.pace), 1)
	}

	r.log.Info("run started", "listings", len(urls))
	for i, raw := range urls {
		if ctx.Err() != nil {
			r.log.Info("run stopped", "done", i, "total", len(urls))
			break
		}

		url := TruncateQuery(raw)
		key := cache.Key(url)
		rec, hit := r.cache.Get(key)
		if hit {
			r.log.Info("listing served from cache", "url", url)
			// Repost marks belong to the run that computed them.
			cp := *rec
			cp.DuplicateOf = ""
			rec = &cp
		} else {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					r.log.Info("run stopped", "done", i, "total", len(urls))
					break
				}
			}
			rec = r.builder.Build(session.Detach(ctx), url)
			if ctx.Err() != nil {
				r.log.Info("stop requested during listing, finished it first", "url", url, "status", rec.Status)
			}
			if rec.Status == models.StatusOK {
				r.cache.Set(key, rec)
			}
		}
		if rec.Status == models.StatusOK {
			if dupOf, dup := dups.Add(rec.URL, rec.Description); dup {
				rec.DuplicateOf = dupOf
				r.log.Info("listing looks like a repost", "url", rec.URL, "duplicate_of", dupOf)
			}
		}

		records = append(records, rec)
		// Sinks still receive the last record after a stop request.
		sinkCtx := context.WithoutCancel(ctx)
		for _, s := range r.sinks {
			if err := s.Put(sinkCtx, rec); err != nil {
				r.log.Error("sink failed", "url", rec.URL, "error", err)
			}
		}
		if r.progress != nil {
			r.progress(len(records), len(urls), rec)
		}
	}
	r.log.Info("run finished", "records", len(records), "total", len(urls))
	return records
}

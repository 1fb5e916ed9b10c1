// Command appraise extracts Avito and Cian listings into JSON records with
// screenshot evidence.
//
// Usage:
//
//	appraise run [-o listings.json] [-no-screenshots] urls.txt
//	appraise serve
//	appraise replay -pages DIR [-o listings.json] urls.txt
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/use-agent/appraise/api"
	"github.com/use-agent/appraise/assembler"
	"github.com/use-agent/appraise/config"
	"github.com/use-agent/appraise/engine"
	"github.com/use-agent/appraise/models"
	"github.com/use-agent/appraise/runs"
	"github.com/use-agent/appraise/scraper"
	"github.com/use-agent/appraise/session"
	"github.com/use-agent/appraise/site"
	"github.com/use-agent/appraise/storage"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = runCmd(ctx, cfg, args)
	case "serve":
		err = serveCmd(ctx, cfg)
	case "replay":
		err = replayCmd(ctx, cfg, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("appraise failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: appraise run|serve|replay [flags] [urls.txt]")
}

// runCmd processes a URL list in a visible browser. The operator clears
// blocks in the window and presses Enter; SIGINT stops between listings.
func runCmd(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	output := fs.String("o", cfg.Run.Output, "output JSON file")
	noShots := fs.Bool("no-screenshots", !cfg.Shots.Enabled, "skip screenshot evidence")
	headless := fs.Bool("headless", cfg.Browser.Headless, "run the browser without a window")
	if err := fs.Parse(args); err != nil {
		return err
	}
	urls, err := readURLs(fs.Arg(0))
	if err != nil {
		return err
	}
	cfg.Browser.Headless = *headless

	p, err := newPipeline(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer p.Close()

	browser, err := scraper.Launch(cfg.Browser)
	if err != nil {
		return err
	}
	defer browser.Close()

	out := storage.NewJSONFile(*output)
	records := p.run(ctx, browser.Surface(cfg.Session.NavigationTimeout), runSpec{
		urls:        urls,
		screenshots: !*noShots,
		output:      out,
		operator:    newStdinOperator(os.Stdin, os.Stderr),
		progress: func(done, total int, rec *models.ListingRecord) {
			fmt.Fprintf(os.Stderr, "[%d/%d] %s %s\n", done, total, rec.Status, rec.URL)
		},
	})
	if len(records) == 0 {
		// Nothing was Put, so write the empty array explicitly.
		if err := storage.Save(*output, nil); err != nil {
			return err
		}
	}
	slog.Info("records written", "file", out.Path(), "records", len(records), "total", len(urls))
	return nil
}

// serveCmd exposes the operator API. Runs share one browser tab and are
// processed one at a time.
func serveCmd(ctx context.Context, cfg *config.Config) error {
	slog.Info("appraise starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
	)

	p, err := newPipeline(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer p.Close()

	// ── 3. Launch browser ───────────────────────────────────────────
	browser, err := scraper.Launch(cfg.Browser)
	if err != nil {
		return err
	}
	defer browser.Close()
	surface := browser.Surface(cfg.Session.NavigationTimeout)

	// ── 4. Run queue ────────────────────────────────────────────────
	exec := func(ctx context.Context, run *runs.Run, op session.Operator, progress assembler.Progress) []*models.ListingRecord {
		screenshots := cfg.Shots.Enabled
		if run.Screenshots != nil {
			screenshots = *run.Screenshots
		}
		var out *storage.JSONFile
		if cfg.Run.Output != "" {
			out = storage.NewJSONFile(runOutput(cfg.Run.Output, run.ID))
		}
		return p.run(ctx, surface, runSpec{
			id:          run.ID,
			urls:        run.URLs,
			screenshots: screenshots,
			output:      out,
			operator:    op,
			progress:    progress,
		})
	}
	manager := runs.NewManager(exec, cfg.Server.QueueSize, cfg.Server.RunTTL, slog.Default())
	manager.Start(ctx)

	// ── 5. Setup router and HTTP server ─────────────────────────────
	router := api.NewRouter(ctx, manager, p.reg, cfg, time.Now())
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── 6. Graceful shutdown ────────────────────────────────────────
	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	slog.Info("appraise stopped")
	return nil
}

// replayCmd extracts records from saved pages, named <site>-<listing id>.html,
// without a browser. Screenshots and hover-only fields are skipped.
func replayCmd(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	pages := fs.String("pages", "pages", "directory of saved listing pages")
	output := fs.String("o", cfg.Run.Output, "output JSON file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	urls, err := readURLs(fs.Arg(0))
	if err != nil {
		return err
	}

	p, err := newPipeline(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer p.Close()

	// Saved pages have no live tooltip to probe for.
	var profiles []*site.Profile
	for _, pr := range p.reg.Profiles() {
		c := pr.Clone()
		c.Readiness.Probe = false
		c.Readiness.Settle = 0
		profiles = append(profiles, c)
	}
	if p.reg, err = site.NewRegistry(profiles...); err != nil {
		return err
	}

	surface := engine.NewStaticSurface(func(_ context.Context, url string) (string, error) {
		profile, ok := p.reg.Resolve(url)
		if !ok {
			return "", fmt.Errorf("no site profile for %s", url)
		}
		name := profile.Name + "-" + profile.ListingID(url) + ".html"
		data, err := os.ReadFile(filepath.Join(*pages, name))
		if err != nil {
			return "", err
		}
		return string(data), nil
	})

	cfg.Run.Pace = 0
	cfg.Session.SettleDelay = 0
	cfg.Session.HoverSettle = 0
	out := storage.NewJSONFile(*output)
	records := p.run(ctx, surface, runSpec{urls: urls, output: out})
	if len(records) == 0 {
		if err := storage.Save(*output, nil); err != nil {
			return err
		}
	}
	slog.Info("records written", "file", out.Path(), "records", len(records))
	return nil
}

// runOutput puts the run id before the extension of base.
func runOutput(base, id string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + "-" + id + ext
}

// readURLs reads one URL per line; blank lines and # comments are skipped.
func readURLs(path string) ([]string, error) {
	if path == "" {
		return nil, errors.New("a file with listing URLs is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%s holds no URLs", path)
	}
	return urls, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	case "color":
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

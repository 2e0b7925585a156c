// Package app wires the config, the event sources, the HTTP server and the
// refresh schedule into one running process.
package app

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"calwidget/internal/capture"
	"calwidget/internal/config"
	"calwidget/internal/ics"
	"calwidget/internal/locale"
	appLog "calwidget/internal/log"
	"calwidget/internal/web"
	"calwidget/internal/widget"
)

// CaptureFunc screenshots the widget page.
type CaptureFunc func(ctx context.Context, opts capture.Options) error

// App is the long-running widget service.
type App struct {
	configPath string
	names      *locale.Registry
	server     *web.Server

	// Capture is nil when screenshots are disabled.
	Capture CaptureFunc

	// listen is the address the server binds; it outlives reloads.
	// fileListen is the last listen value seen in a config, so a changed
	// file value is reported once.
	listen     string
	fileListen string

	mu    sync.Mutex
	cfg   *config.Config
	cron  *cron.Cron
	entry cron.EntryID
	sched cron.Schedule
}

// New builds an App for cfg, loaded from configPath.
func New(configPath string, cfg *config.Config) (*App, error) {
	names, err := locale.NewRegistry()
	if err != nil {
		return nil, err
	}
	a := &App{configPath: configPath, names: names, cfg: cfg, listen: cfg.Listen, fileListen: cfg.Listen}
	a.server = web.NewServer(cfg, a.renderer(cfg))
	return a, nil
}

// Server exposes the HTTP server.
func (a *App) Server() *web.Server { return a.server }

// Config returns the active config.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

func (a *App) renderer(cfg *config.Config) *widget.Renderer {
	fetcher := ics.NewFetcher(cfg.CacheDir, nil)
	return widget.NewRenderer(a.names, ics.NewCalendar(fetcher, Sources(cfg), cfg.OwnerEmail, cfg.Location()))
}

// Sources converts the configured feeds.
func Sources(cfg *config.Config) []ics.Source {
	out := make([]ics.Source, 0, len(cfg.ICS))
	for _, c := range cfg.ICS {
		if c.URL == "" {
			continue
		}
		out = append(out, ics.Source{ID: c.ID, URL: c.URL, Name: c.Name})
	}
	return out
}

// Render drops the server's cached view and renders a fresh one, which
// then serves page loads until it expires.
func (a *App) Render(ctx context.Context) (widget.View, error) {
	a.server.Invalidate()
	return a.server.View(ctx)
}

// Refresh re-renders the view and, when capture is enabled, writes a new
// preview PNG.
func (a *App) Refresh(ctx context.Context) error {
	if _, err := a.Render(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if a.Capture == nil {
		return nil
	}
	cfg := a.Config()
	opts := capture.Options{
		URL:        CaptureURL(cfg.Listen),
		OutputPath: cfg.PreviewPath,
		Family:     cfg.WidgetFamily,
	}
	if cfg.BasicAuth != nil {
		opts.Username, opts.Password = cfg.BasicAuth.Username, cfg.BasicAuth.Password
	}
	if err := a.Capture(ctx, opts); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// CaptureURL is the local address of the widget page for a listen address;
// wildcard hosts are reached through loopback.
func CaptureURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen + "/widget"
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/widget"
}

// Reload applies a changed config: new sources, new renderer, new
// schedule. The listen address only changes on restart, so cfg.Listen is
// reset to the bound address.
func (a *App) Reload(ctx context.Context, cfg *config.Config) {
	a.mu.Lock()
	old := a.cfg
	if cfg.Listen != a.fileListen && cfg.Listen != a.listen {
		appLog.Info("listen address change needs a restart", "bound", a.listen, "new", cfg.Listen)
	}
	a.fileListen = cfg.Listen
	cfg.Listen = a.listen
	a.cfg = cfg
	a.mu.Unlock()

	if cfg.LogLevel != old.LogLevel {
		appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	}
	a.server.SetConfig(cfg, a.renderer(cfg))

	if err := a.schedule(ctx, cfg); err != nil {
		appLog.Error("refresh schedule update failed", err, "refresh", cfg.RefreshCron)
	}
}

// schedule (re)registers the refresh job for cfg.RefreshCron.
func (a *App) schedule(ctx context.Context, cfg *config.Config) error {
	sched, err := cron.ParseStandard(cfg.RefreshCron)
	if err != nil {
		return fmt.Errorf("app: schedule %q: %w", cfg.RefreshCron, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	loc := cfg.Location()
	if a.cron != nil && a.cron.Location().String() != loc.String() {
		// A running job may be waiting on a.mu; stop without waiting.
		a.cron.Stop()
		a.cron, a.entry = nil, 0
	}
	if a.cron == nil {
		a.cron = cron.New(cron.WithLocation(loc))
		a.cron.Start()
	} else if a.entry != 0 {
		a.cron.Remove(a.entry)
	}

	a.entry = a.cron.Schedule(sched, cron.FuncJob(func() {
		if err := a.Refresh(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	}))
	a.sched = sched
	appLog.Info("refresh scheduled", "refresh", cfg.RefreshCron,
		"next", sched.Next(time.Now().In(loc)).Format(time.RFC3339))
	return nil
}

// NextRefresh reports when the refresh job fires after t, or the zero
// time when nothing is scheduled.
func (a *App) NextRefresh(t time.Time) time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sched == nil {
		return time.Time{}
	}
	return a.sched.Next(t)
}

func (a *App) stopCron() {
	a.mu.Lock()
	c := a.cron
	a.cron, a.entry, a.sched = nil, 0, nil
	a.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Run serves HTTP, runs the refresh schedule and watches the config file
// until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	var watchPath string
	if a.configPath != "" {
		abs, err := filepath.Abs(a.configPath)
		if err != nil {
			return err
		}
		watchPath = abs
	}

	cfg := a.Config()
	if err := a.schedule(ctx, cfg); err != nil {
		return err
	}
	defer a.stopCron()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.ListenAndServe(ctx, cfg.Listen)
	})
	g.Go(func() error {
		// First preview as soon as the server is accepting.
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(500 * time.Millisecond):
		}
		if err := a.Refresh(ctx); err != nil {
			appLog.Error("initial refresh failed", err)
		}
		return nil
	})
	if watchPath != "" {
		g.Go(func() error {
			return config.Watch(ctx, watchPath, func(c *config.Config) { a.Reload(ctx, c) })
		})
	}
	return g.Wait()
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calwidget/internal/app"
	"calwidget/internal/capture"
	"calwidget/internal/config"
	appLog "calwidget/internal/log"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	capture    bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}

	appLog.Info("calwidget starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if !flags.debug {
		appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"locale", conf.Locale,
		"widget", conf.WidgetFamily+"/"+conf.WidgetType,
		"refresh", conf.RefreshCron,
		"ics_count", len(conf.ICS),
		"once", flags.once,
		"capture", flags.capture,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	a, err := app.New(flags.configPath, conf)
	if err != nil {
		appLog.Error("failed to initialize", err)
		os.Exit(1)
	}
	if flags.capture {
		a.Capture = capture.CapturePNG
	}

	if flags.once {
		if err := runOnce(ctx, a, conf); err != nil {
			appLog.Error("run failed", err)
			os.Exit(1)
		}
		return
	}

	if err := a.Run(ctx); err != nil {
		appLog.Error("calwidget stopped with error", err)
		os.Exit(1)
	}
	appLog.Info("calwidget exiting")
}

// runOnce renders one view and prints it as JSON. With capture enabled the
// server runs just long enough for the screenshot.
func runOnce(ctx context.Context, a *app.App, conf *config.Config) error {
	if a.Capture != nil {
		srvCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() { done <- a.Server().ListenAndServe(srvCtx, conf.Listen) }()
		defer func() {
			cancel()
			<-done
		}()
		// Let the listener come up before Chromium connects.
		time.Sleep(200 * time.Millisecond)

		if err := a.Refresh(ctx); err != nil {
			return err
		}
	}

	// Reuses the view Refresh just rendered.
	view, err := a.Server().View(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/calwidget/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Render once, print the view as JSON and exit")
	flag.BoolVar(&cfg.capture, "capture", false, "Capture the widget PNG with headless Chromium on each refresh")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

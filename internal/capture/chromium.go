// Package capture screenshots the widget page with headless Chromium.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	appLog "calwidget/internal/log"
	"calwidget/internal/metrics"
)

const (
	DefaultTimeout = 30 * time.Second
	// DefaultScale renders at retina density.
	DefaultScale = 2.0
)

// widgetSelector is the element captured; it is sized by widget family.
const widgetSelector = ".widget"

// Viewport is a CSS pixel size.
type Viewport struct {
	Width  int
	Height int
}

// viewports match the widget box sizes of the page stylesheet.
var viewports = map[string]Viewport{
	"small":  {Width: 170, Height: 170},
	"medium": {Width: 364, Height: 170},
	"large":  {Width: 364, Height: 382},
}

// ViewportFor returns the viewport for a widget family, falling back to
// medium for unknown values.
func ViewportFor(family string) Viewport {
	if vp, ok := viewports[family]; ok {
		return vp
	}
	return viewports["medium"]
}

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/widget".
	URL string

	// OutputPath is where the PNG is written, e.g.
	// "/var/lib/calwidget/preview.png".
	OutputPath string

	// Family selects the viewport.
	Family string

	// Username/Password are sent as Basic Auth when set.
	Username string
	Password string

	// Scale is the device scale factor; zero uses DefaultScale.
	Scale float64

	// Timeout bounds the entire capture. Zero uses DefaultTimeout.
	Timeout time.Duration
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return errors.New("capture: URL is required")
	}
	if o.OutputPath == "" {
		return errors.New("capture: OutputPath is required")
	}
	if o.Scale <= 0 {
		o.Scale = DefaultScale
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// CapturePNG launches a headless Chromium via chromedp, navigates to
// opts.URL, waits for the page to signal completion with
// data-ready="true" and writes a PNG of the widget element to
// opts.OutputPath. The file is replaced atomically.
func CapturePNG(parentCtx context.Context, opts Options) (err error) {
	if err := opts.normalize(); err != nil {
		return err
	}
	started := time.Now()
	defer func() { metrics.ObserveCapture(started, err) }()

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("hide-scrollbars", true),
	)...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	vp := ViewportFor(opts.Family)
	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height), chromedp.EmulateScale(opts.Scale)),
	}
	if opts.Username != "" {
		tasks = append(tasks, network.Enable(), network.SetExtraHTTPHeaders(network.Headers{
			"Authorization": basicAuth(opts.Username, opts.Password),
		}))
	}
	tasks = append(tasks,
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(`body[data-ready="true"]`, chromedp.ByQuery),
		// Small extra delay to allow final paints.
		chromedp.Sleep(200*time.Millisecond),
		chromedp.Screenshot(widgetSelector, &png, chromedp.NodeVisible, chromedp.ByQuery),
	)

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if err := writeAtomic(opts.OutputPath, png); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	appLog.Info("capture written", "path", opts.OutputPath, "bytes", len(png), "took", time.Since(started))
	return nil
}

func basicAuth(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".preview-*.png")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

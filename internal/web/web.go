package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"calwidget/internal/config"
	"calwidget/internal/deeplink"
	appLog "calwidget/internal/log"
	"calwidget/internal/metrics"
	"calwidget/internal/widget"
)

// viewCacheTTL bounds how stale a served view may be. The cron refresh
// and config reloads invalidate earlier.
const viewCacheTTL = 30 * time.Second

// Renderer produces the widget view for a moment under a config.
type Renderer interface {
	Render(ctx context.Context, now time.Time, cfg *config.Config) (widget.View, error)
}

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.New("widget.html.tmpl").Funcs(template.FuncMap{
	"link": safeLink,
}).ParseFS(templateFS, "templates/widget.html.tmpl"))

// Server serves the widget page, its JSON APIs, the last captured preview
// and metrics.
type Server struct {
	mu       sync.RWMutex
	cfg      *config.Config
	renderer Renderer

	now func() time.Time
	mux *http.ServeMux

	// In-memory cache for the rendered view so page loads, API calls and
	// the screenshot all share one fetch/parse/expand pass.
	viewMu    sync.Mutex
	viewCache *viewCache
}

type viewCache struct {
	view      widget.View
	updatedAt time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, r Renderer) *Server {
	s := &Server{
		cfg:      cfg,
		renderer: r,
		now:      time.Now,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// SetConfig swaps in a reloaded config and its renderer and drops the
// cached view.
func (s *Server) SetConfig(cfg *config.Config, r Renderer) {
	s.mu.Lock()
	s.cfg, s.renderer = cfg, r
	s.mu.Unlock()
	s.Invalidate()
}

// Invalidate drops the cached view.
func (s *Server) Invalidate() {
	s.viewMu.Lock()
	s.viewCache = nil
	s.viewMu.Unlock()
}

func (s *Server) current() (*config.Config, Renderer) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.renderer
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.basicAuthMiddleware(s.mux)
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic
// Auth. Credentials are read per request so reloads take effect.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg, _ := s.current()
		if r.URL.Path == "/health" || !basicAuthEnabled(cfg) {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, cfg.BasicAuth.Username) || !secureCompare(p, cfg.BasicAuth.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calwidget", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured. An empty
// username or password disables it.
func basicAuthEnabled(cfg *config.Config) bool {
	if cfg == nil || cfg.BasicAuth == nil {
		return false
	}
	return cfg.BasicAuth.Username != "" && cfg.BasicAuth.Password != ""
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/view", s.handleView)
	s.mux.HandleFunc("GET /widget", s.handleWidget)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/widget", http.StatusFound)
	})
}

// View returns the current widget view, rendering it when the cached one
// is missing or older than viewCacheTTL.
func (s *Server) View(ctx context.Context) (widget.View, error) {
	s.viewMu.Lock()
	defer s.viewMu.Unlock()

	now := s.now()
	if vc := s.viewCache; vc != nil && now.Sub(vc.updatedAt) < viewCacheTTL {
		metrics.RecordViewCache(true)
		return vc.view, nil
	}
	metrics.RecordViewCache(false)

	cfg, r := s.current()
	view, err := r.Render(ctx, now, cfg)
	if err != nil {
		return widget.View{}, err
	}
	s.viewCache = &viewCache{view: view, updatedAt: now}
	return view, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// calendarResponse is the JSON response shape for /api/calendar.
type calendarResponse struct {
	Now             time.Time    `json:"now"`
	DisplayTimeZone string       `json:"display_timezone"`
	Locale          string       `json:"locale"`
	WeekStart       string       `json:"week_start"`
	Calendar        *widget.Grid `json:"calendar"`
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Now       time.Time      `json:"now"`
	Groups    []widget.Group `json:"groups"`
	Secondary []widget.Group `json:"secondary,omitempty"`
	Empty     *widget.Empty  `json:"empty,omitempty"`
}

// handleCalendar returns the month grid with its heatmap. Small
// agenda-only widgets have no grid and answer with "calendar": null.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	view, ok := s.viewOrError(w, r)
	if !ok {
		return
	}
	cfg, _ := s.current()
	weekStart := "monday"
	if cfg.StartWeekOnSunday {
		weekStart = "sunday"
	}
	writeJSON(w, http.StatusOK, calendarResponse{
		Now:             view.Now,
		DisplayTimeZone: view.Now.Location().String(),
		Locale:          cfg.Locale,
		WeekStart:       weekStart,
		Calendar:        view.Calendar,
	})
}

// handleEvents returns the laid-out agenda groups.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	view, ok := s.viewOrError(w, r)
	if !ok {
		return
	}
	groups := view.Agenda
	if groups == nil {
		groups = []widget.Group{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		Now:       view.Now,
		Groups:    groups,
		Secondary: view.Secondary,
		Empty:     view.Empty,
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	view, ok := s.viewOrError(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleWidget renders the widget page the capture pipeline screenshots.
// The body carries data-ready="true" once the document is complete.
func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	view, err := s.View(r.Context())
	if err != nil {
		appLog.Error("widget render failed", err)
		http.Error(w, "failed to render widget", http.StatusBadGateway)
		return
	}

	var b strings.Builder
	if err := pageTemplate.Execute(&b, view); err != nil {
		appLog.Error("widget template failed", err)
		http.Error(w, "failed to render widget", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(b.String()))
}

// handlePreview serves the last captured PNG preview from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	cfg, _ := s.current()
	// http.ServeFile answers 404 for a missing file.
	http.ServeFile(w, r, cfg.PreviewPath)
}

func (s *Server) viewOrError(w http.ResponseWriter, r *http.Request) (widget.View, bool) {
	view, err := s.View(r.Context())
	if err != nil {
		appLog.Error("api render failed", err, "path", r.URL.Path)
		writeError(w, http.StatusBadGateway, "failed to load calendar events")
		return widget.View{}, false
	}
	return view, true
}

// safeLink marks calendar app deep links as trusted URLs; html/template
// would otherwise replace their non-http schemes. Anything else is
// escaped as usual.
func safeLink(link string) any {
	for _, app := range []string{deeplink.AppCalshow, deeplink.AppFantastical} {
		if strings.HasPrefix(link, app+":") {
			return template.URL(link)
		}
	}
	return link
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

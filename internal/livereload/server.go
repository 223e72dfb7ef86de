package livereload

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/neatbudget/nbuild/internal/config"
	"github.com/neatbudget/nbuild/internal/logging"
	"github.com/neatbudget/nbuild/internal/watcher"
)

const (
	// SocketPath upgrades to the reload channel.
	SocketPath = "/livereload"
	// ScriptPath serves the browser client.
	ScriptPath = "/livereload.js"
)

// DefaultOriginPatterns lets pages served from any local port connect.
var DefaultOriginPatterns = []string{"localhost:*", "127.0.0.1:*", "[::1]:*"}

const clientScript = `(function () {
  var script = document.currentScript;
  var url = new URL(%q, script ? script.src : window.location.href);
  url.protocol = url.protocol === "https:" ? "wss:" : "ws:";
  function connect() {
    var ws = new WebSocket(url.href);
    ws.onmessage = function (event) {
      var msg = JSON.parse(event.data);
      if (msg.type === "css") {
        document.querySelectorAll('link[rel="stylesheet"]').forEach(function (link) {
          var href = new URL(link.href);
          href.searchParams.set("livereload", Date.now());
          link.href = href.href;
        });
        return;
      }
      if (msg.type === "reload") {
        window.location.reload();
      }
    };
    ws.onclose = function () {
      setTimeout(connect, 1000);
    };
  }
  connect();
})();
`

// Server serves the reload channel and watches the output directory.
type Server struct {
	cfg    config.LiveReloadConfig
	hub    *Hub
	logger logging.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	watcher    *watcher.FileWatcher
}

// NewServer creates a live reload server for cfg.
func NewServer(cfg config.LiveReloadConfig, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Server{
		cfg:    cfg,
		hub:    NewHub(DefaultOriginPatterns, logger),
		logger: logger.WithComponent("livereload"),
	}
}

// Hub returns the broadcast hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler routes the socket and the client script.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(SocketPath, s.hub)
	mux.HandleFunc(ScriptPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		fmt.Fprintf(w, clientScript, SocketPath)
	})
	return mux
}

// Start listens on the configured address and, when a directory is
// configured, watches it for changes.
func (s *Server) Start(ctx context.Context, debounce time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("live reload listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(ctx, err, "Live reload server stopped")
		}
	}()

	// Output watching is best effort; browsers can still connect without it.
	if s.cfg.Dir != "" {
		if err := s.watch(ctx, debounce); err != nil {
			s.logger.Warn(ctx, err, "Not watching output directory", "dir", s.cfg.Dir)
		}
	}

	s.logger.Info(ctx, "Live reload listening", "addr", ln.Addr().String(), "dir", s.cfg.Dir)
	return nil
}

func (s *Server) watch(ctx context.Context, debounce time.Duration) error {
	fw, err := watcher.NewFileWatcher(debounce, nil, s.logger)
	if err != nil {
		return fmt.Errorf("live reload watcher: %w", err)
	}
	// The first build has not run yet on a fresh checkout.
	if err := os.MkdirAll(s.cfg.Dir, 0755); err != nil {
		_ = fw.Stop()
		return fmt.Errorf("create %s: %w", s.cfg.Dir, err)
	}
	fw.AddFilter(OutputFilter)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		s.Notify(events)
		return nil
	})
	if err := fw.AddRecursive(s.cfg.Dir); err != nil {
		_ = fw.Stop()
		return fmt.Errorf("watch %s: %w", s.cfg.Dir, err)
	}
	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return err
	}
	s.watcher = fw
	return nil
}

// Notify broadcasts a stylesheet swap when only CSS changed, otherwise a full
// reload.
func (s *Server) Notify(events []watcher.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	msg := Message{Type: MessageReload, Path: filepath.ToSlash(events[0].Path)}
	if watcher.IsStylesheet(events) {
		msg.Type = MessageCSS
	}
	s.logger.Debug(context.Background(), "Notifying browsers", "type", msg.Type, "files", len(events), "clients", s.hub.Clients())
	s.hub.Broadcast(msg)
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Port returns the bound port, or the configured one before Start.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.cfg.Port
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.cfg.Port
}

// Shutdown stops the watcher, the hub and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			errs = append(errs, err)
		}
		s.watcher = nil
	}
	if err := s.hub.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OutputFilter accepts files a browser loads, skipping source maps.
func OutputFilter(path string) bool {
	if strings.HasSuffix(path, ".map") {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".css", ".html", ".json", ".png", ".svg", ".ico", ".webmanifest":
		return true
	}
	return false
}

package pprof

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/TERAN-XMD-maker/Helalink2025/pkg/logx"
)

// Config controls the optional pprof HTTP server.
//
// Security: prefer binding to localhost (the default). A non-loopback bind
// requires a token.
type Config struct {
	Enabled bool
	Addr    string
	Token   string
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	srv *http.Server
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log}
}

// Start is idempotent and a no-op when disabled.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled || s.srv != nil {
		return nil
	}

	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:6060"
	}
	if s.cfg.Token == "" && !isLoopbackAddr(addr) {
		s.log.Error("pprof refused to start: non-loopback addr requires token", logx.String("addr", addr))
		return errors.New("pprof: insecure bind")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(s.cfg.Token, h) }
	mux.HandleFunc("/debug/pprof/", wrap(hpprof.Index))
	mux.HandleFunc("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
	mux.HandleFunc("/debug/pprof/profile", wrap(hpprof.Profile))
	mux.HandleFunc("/debug/pprof/symbol", wrap(hpprof.Symbol))
	mux.HandleFunc("/debug/pprof/trace", wrap(hpprof.Trace))

	s.srv = &http.Server{Handler: mux, ReadTimeout: 10 * time.Second, IdleTimeout: time.Minute}
	srv := s.srv
	go func() {
		if serr := srv.Serve(ln); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			s.log.Warn("pprof server exited", logx.Err(serr))
		}
	}()
	s.log.Info("pprof started", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got == tok {
			h(w, r)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

package console

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/dmapctl/internal/observability"
	"github.com/danmuck/dmapctl/internal/view"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultID          = "dmapweb"
	DefaultAddr        = "127.0.0.1:8080"
	DefaultWaitTimeout = 15 * time.Second
	DefaultSessionIdle = 30 * time.Minute
)

var ErrSessionNotFound = errors.New("console: session not found")

// Config defines listener and request behavior for the console.
type Config struct {
	ID             string
	Addr           string
	CORSOrigins    []string
	MetricsEnabled bool
	WaitTimeout    time.Duration
	// SessionIdle is how long a create session may go untouched before the
	// sweeper unmounts it.
	SessionIdle time.Duration
}

// WithDefaults fills zero-valued fields.
func (c Config) WithDefaults() Config {
	if strings.TrimSpace(c.ID) == "" {
		c.ID = DefaultID
	}
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = DefaultAddr
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	if c.SessionIdle <= 0 {
		c.SessionIdle = DefaultSessionIdle
	}
	return c
}

type session struct {
	id       string
	mount    *view.Mount
	lastSeen time.Time
}

// Server is the web console over one dispatcher.
type Server struct {
	cfg        Config
	dispatcher *view.Dispatcher
	router     *gin.Engine
	appeared   time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// New builds a console with recovery, logging, metrics and CORS middleware.
func New(cfg Config, dispatcher *view.Dispatcher) *Server {
	cfg = cfg.WithDefaults()
	observability.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.ComponentLogger("console")))
	r.Use(observability.RequestMetricsMiddleware(cfg.ID))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:        cfg,
		dispatcher: dispatcher,
		router:     r,
		appeared:   time.Now(),
		sessions:   make(map[string]*session),
	}
	s.RegisterRoutes()
	return s
}

// Router exposes the engine for tests and embedding.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Serve blocks serving the configured address.
func (s *Server) Serve() error {
	log.Info().Str("addr", s.cfg.Addr).Str("id", s.cfg.ID).Msg("console.Server.Serve")
	return s.router.Run(s.cfg.Addr)
}

// Close unmounts every open create session.
func (s *Server) Close() {
	s.mu.Lock()
	open := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		open = append(open, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range open {
		sess.mount.Close()
	}
}

// Sessions lists open session ids in sorted order.
func (s *Server) Sessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Server) open(key string) (*session, error) {
	mount, err := s.dispatcher.Mount(key)
	if err != nil {
		return nil, err
	}
	sess := &session{id: uuid.NewString(), mount: mount, lastSeen: time.Now()}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	log.Debug().Str("session", sess.id).Str("protocol", key).Msg("console.Server.open")
	return sess, nil
}

func (s *Server) lookup(key, id string) (*session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || string(sess.mount.Gate.Protocol()) != key {
		return nil, ErrSessionNotFound
	}
	sess.lastSeen = time.Now()
	return sess, nil
}

// Sweep unmounts sessions untouched since now minus SessionIdle and returns
// their ids in sorted order.
func (s *Server) Sweep(now time.Time) []string {
	cutoff := now.Add(-s.cfg.SessionIdle)
	s.mu.Lock()
	var expired []*session
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, sess := range expired {
		sess.mount.Close()
		ids = append(ids, sess.id)
	}
	sort.Strings(ids)
	if len(ids) > 0 {
		log.Info().Int("count", len(ids)).Msg("console.Server.Sweep expired sessions")
	}
	return ids
}

// SweepLoop runs Sweep on a fixed interval until ctx ends.
func (s *Server) SweepLoop(ctx context.Context) {
	interval := s.cfg.SessionIdle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

func (s *Server) close(key, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok || string(sess.mount.Gate.Protocol()) != key {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	sess.mount.Close()
	log.Debug().Str("session", id).Str("protocol", key).Msg("console.Server.close")
	return nil
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}

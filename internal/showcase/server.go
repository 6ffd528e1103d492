package showcase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sho7650/content-rotation/internal/core"
	"github.com/sho7650/content-rotation/internal/logger"
	"github.com/sho7650/content-rotation/pkg/core/interfaces"
)

const (
	defaultProductCount = 6
	maxProductCount     = 100
)

// ServerOptions configures the HTTP surface
type ServerOptions struct {
	Address        string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// ProductSource provides product grid images
type ProductSource interface {
	Images(count int) []string
	PhotoCount() int
	Loading() bool
}

// Server exposes slots and product images as a JSON API
type Server struct {
	opts  ServerOptions
	clock clockwork.Clock
	log   logrus.FieldLogger

	mu       sync.RWMutex
	slots    map[string]*Slot
	products ProductSource
	services map[string]interfaces.Service

	httpServer *http.Server
	listener   net.Listener
	running    bool
}

// NewServer creates a server with no slots registered
func NewServer(opts ServerOptions, clock clockwork.Clock, log logrus.FieldLogger) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Get("http")
	}
	if opts.Address == "" {
		opts.Address = ":8080"
	}
	return &Server{
		opts:     opts,
		clock:    clock,
		log:      log,
		slots:    make(map[string]*Slot),
		services: make(map[string]interfaces.Service),
	}
}

// SetSlot registers slot, replacing any slot with the same name
func (s *Server) SetSlot(slot *Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.Name()] = slot
}

// SetProducts registers the product image source
func (s *Server) SetProducts(products ProductSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = products
}

// SetService registers svc under name for the health endpoint
func (s *Server) SetService(name string, svc interfaces.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[name] = svc
}

// RemoveSlot unregisters the slot and the service of the same name
func (s *Server) RemoveSlot(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, name)
	delete(s.services, name)
}

const apiPrefix = "/api/v1"

// Handler returns the router wrapped in recovery, CORS and request logging
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	// Routes stay on the root router so a method mismatch answers 405
	r.HandleFunc(apiPrefix+"/season", s.handleSeason).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/content/{slot}", s.handleSlot).Methods(http.MethodGet)
	r.HandleFunc(apiPrefix+"/content/{slot}/rotate", s.handleRotate).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/content/{slot}/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc(apiPrefix+"/products", s.handleProducts).Methods(http.MethodGet)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	cors := handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(cors(r))
}

// Start listens on the configured address and serves in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}

	s.listener = listener
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  s.opts.IdleTimeout,
	}
	s.running = true

	go func(srv *http.Server) {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}(s.httpServer)

	s.log.WithField("address", listener.Addr().String()).Info("HTTP server listening")
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop drains in-flight requests until ctx expires
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	running := s.running
	s.running = false
	s.mu.Unlock()

	if !running {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}

func (s *Server) slot(name string) (*Slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[name]
	return slot, ok
}

func (s *Server) handleSeason(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	writeJSON(w, http.StatusOK, map[string]string{
		"season": string(core.DetectSeason(now)),
		"date":   now.Format("2006-01-02"),
	})
}

func (s *Server) handleSlot(w http.ResponseWriter, r *http.Request) {
	slot, ok := s.slot(mux.Vars(r)["slot"])
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown slot %q", mux.Vars(r)["slot"]))
		return
	}
	writeJSON(w, http.StatusOK, slot.Resolve())
}

func (s *Server) handleRotate(w http.ResponseWriter, r *http.Request) {
	slot, ok := s.slot(mux.Vars(r)["slot"])
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown slot %q", mux.Vars(r)["slot"]))
		return
	}
	writeJSON(w, http.StatusOK, slot.Rotate())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	slot, ok := s.slot(mux.Vars(r)["slot"])
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown slot %q", mux.Vars(r)["slot"]))
		return
	}

	view, err := slot.Refresh(r.Context())
	switch {
	case err == nil, core.IsNoContent(err):
		// An empty season is an expected state; the view carries the message
		writeJSON(w, http.StatusOK, view)
	case errors.Is(err, core.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, view)
	default:
		s.log.WithError(err).WithField("slot", slot.Name()).Warn("Slot refresh failed")
		writeJSON(w, http.StatusBadGateway, view)
	}
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	products := s.products
	s.mu.RUnlock()
	if products == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("product images are not configured"))
		return
	}

	count := defaultProductCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxProductCount {
			writeError(w, http.StatusBadRequest, fmt.Errorf("count must be between 0 and %d", maxProductCount))
			return
		}
		count = n
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"images":      products.Images(count),
		"photo_count": products.PhotoCount(),
		"loading":     products.Loading(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)

	report := make(map[string]interfaces.ServiceHealth, len(names))
	statuses := make([]interfaces.HealthStatus, 0, len(names))
	for _, name := range names {
		health := s.services[name].Health()
		report[name] = health
		statuses = append(statuses, health.Status)
	}
	s.mu.RUnlock()

	overall := interfaces.Worst(statuses...)
	code := http.StatusOK
	if overall == interfaces.StatusError || overall == interfaces.StatusStopped {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":   overall,
		"services": report,
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("HTTP request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Health implements interfaces.Service
func (s *Server) Health() interfaces.ServiceHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	health := interfaces.ServiceHealth{
		Status:    interfaces.StatusHealthy,
		Message:   "Serving",
		Timestamp: s.clock.Now(),
		Details:   map[string]interface{}{"slots": len(s.slots)},
	}
	if !s.running {
		health.Status = interfaces.StatusStopped
		health.Message = "Not listening"
	}
	return health
}

// Info implements interfaces.Service
func (s *Server) Info() interfaces.ServiceInfo {
	return interfaces.ServiceInfo{
		Name:        "showcase-http",
		Version:     "1.0.0",
		Type:        "http",
		Description: "Rotating storefront content API",
	}
}

// Capabilities implements interfaces.Service
func (s *Server) Capabilities() []interfaces.Capability {
	return []interfaces.Capability{
		{Type: "json_api", Supported: true, Config: map[string]interface{}{"address": s.opts.Address}},
	}
}

var _ interfaces.Service = (*Server)(nil)

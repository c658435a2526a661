// Package api provides the HTTP surface for PulsePoll.
//
// It exposes the host-environment operations over REST: inspect the sensor
// catalog and active triggers, apply settings changes, simulate firings,
// drive notification entry intents and open response sessions, and read
// recorded outcomes. Routing uses gorilla/mux with gorilla/handlers request
// logging.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/BTreeMap/PulsePoll/internal/catalog"
	"github.com/BTreeMap/PulsePoll/internal/prompter"
	"github.com/BTreeMap/PulsePoll/internal/response"
	"github.com/BTreeMap/PulsePoll/internal/scheduler"
	"github.com/BTreeMap/PulsePoll/internal/settings"
	"github.com/BTreeMap/PulsePoll/internal/store"
)

// DefaultAddr is the default listen address for the API server.
const DefaultAddr = ":8080"

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	MetricsHandler http.Handler
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithMetricsHandler mounts a Prometheus exposition handler at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(o *Opts) { o.MetricsHandler = h }
}

// Server wires the HTTP surface to the core collaborators. Open response
// sessions live in memory keyed by a server-issued id; they are as
// short-lived as the interactions that create them.
type Server struct {
	catalog    *catalog.Catalog
	store      store.Store
	scheduler  *scheduler.Scheduler
	dispatcher *settings.Dispatcher
	prompter   *prompter.Prompter
	responses  *response.Handler
	metricsH   http.Handler
	addr       string

	mu       sync.Mutex
	sessions map[string]*response.Session
}

// NewServer creates an API server over the given collaborators.
func NewServer(cat *catalog.Catalog, st store.Store, sched *scheduler.Scheduler, disp *settings.Dispatcher, pr *prompter.Prompter, resp *response.Handler, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		catalog:    cat,
		store:      st,
		scheduler:  sched,
		dispatcher: disp,
		prompter:   pr,
		responses:  resp,
		metricsH:   cfg.MetricsHandler,
		addr:       cfg.Addr,
		sessions:   make(map[string]*response.Session),
	}
}

// Router builds the route table. Exposed separately from Run for tests.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/sensors", s.listSensorsHandler).Methods("GET")
	r.HandleFunc("/sensors/{id}", s.getSensorHandler).Methods("GET")
	r.HandleFunc("/sensors/{id}/fire", s.fireSensorHandler).Methods("POST")
	r.HandleFunc("/triggers", s.listTriggersHandler).Methods("GET")
	r.HandleFunc("/settings", s.applySettingsHandler).Methods("POST")
	r.HandleFunc("/intents", s.intentHandler).Methods("POST")
	r.HandleFunc("/sessions/{id}", s.getSessionHandler).Methods("GET")
	r.HandleFunc("/sessions/{id}/select", s.selectOptionHandler).Methods("POST")
	r.HandleFunc("/sessions/{id}/text", s.setTextHandler).Methods("POST")
	r.HandleFunc("/sessions/{id}/submit", s.submitHandler).Methods("POST")
	r.HandleFunc("/sessions/{id}/ignore", s.ignoreHandler).Methods("POST")
	r.HandleFunc("/outcomes", s.listOutcomesHandler).Methods("GET")

	if s.metricsH != nil {
		r.Handle("/metrics", s.metricsH).Methods("GET")
	}

	return r
}

// Run starts serving and blocks until the listener fails.
func (s *Server) Run() error {
	logged := handlers.LoggingHandler(os.Stdout, s.Router())
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      logged,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	slog.Info("API server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

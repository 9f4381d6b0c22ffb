package httpserv

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/warehouse"
)

// Server is the health and metrics listener every command exposes.
type Server struct {
	addr    string
	bus     *bus.Bus
	store   *warehouse.Store // nil for commands without a warehouse
	metrics *metrics.Registry
	srv     *http.Server
}

// New builds the listener. store may be nil.
func New(addr string, b *bus.Bus, store *warehouse.Store, m *metrics.Registry) *Server {
	s := &Server{addr: addr, bus: b, store: store, metrics: m}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(m.Prometheus(), promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the context ends, then drains with a short deadline.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.addr).Msg("HTTP listener started")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type health struct {
		Status    string `json:"status"`
		Bus       bool   `json:"bus"`
		Warehouse *bool  `json:"warehouse,omitempty"`
	}

	h := health{Status: "ok", Bus: s.bus.Healthy(r.Context())}
	if !h.Bus {
		h.Status = "degraded"
	}
	if s.store != nil {
		ok := s.store.Healthy(r.Context())
		h.Warehouse = &ok
		if !ok {
			h.Status = "degraded"
		}
	}

	code := http.StatusOK
	if h.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(h)
}

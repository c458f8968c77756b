package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"PriceWatch/internal/scheduler"
	"PriceWatch/internal/sink"
)

// StateSource reports the scheduler state.
type StateSource interface {
	State() scheduler.State
}

// StatusBoard reports the active status message and when it was set.
type StatusBoard interface {
	Current() (string, time.Time)
}

// Point is one sample as served to display clients.
type Point struct {
	Time  time.Time       `json:"time"`
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"`
}

type statusResponse struct {
	Symbol            string    `json:"symbol"`
	Period            string    `json:"period"`
	Running           bool      `json:"running"`
	Status            string    `json:"status"`
	StatusSince       time.Time `json:"status_since"`
	Currency          string    `json:"currency,omitempty"`
	Source            string    `json:"source,omitempty"`
	CooldownRemaining int       `json:"cooldown_remaining_ticks"`
	Samples           int       `json:"samples"`
	LastPrice         *Point    `json:"last,omitempty"`
	GeneratedAt       time.Time `json:"generated_at"`
}

// Server exposes the sampled series and scheduler status over HTTP.
type Server struct {
	sink  *sink.Sink
	state StateSource
	board StatusBoard
	srv   *http.Server
}

// New builds the handler tree. gatherer serves /metrics.
func New(addr string, sk *sink.Sink, state StateSource, board StatusBoard, gatherer prometheus.Gatherer) *Server {
	s := &Server{sink: sk, state: state, board: board}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /series", s.handleSeries)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		log.Printf("[INFO] http server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] http server: %v", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for active ones until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	points := make([]Point, 0, s.sink.Len())
	for sample := range s.sink.All() {
		points = append(points, Point{Time: sample.ObservedAt(), Label: sample.Display(), Price: sample.Value()})
	}
	writeJSON(w, points)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.state.State()
	status, since := s.board.Current()
	resp := statusResponse{
		Symbol:            st.Symbol,
		Period:            st.Period.String(),
		Running:           st.Running,
		Status:            status,
		StatusSince:       since,
		Currency:          st.Currency,
		Source:            st.Source,
		CooldownRemaining: st.CooldownRemaining,
		Samples:           s.sink.Len(),
		GeneratedAt:       time.Now(),
	}
	if last, ok := s.sink.Last(); ok {
		resp.LastPrice = &Point{Time: last.ObservedAt(), Label: last.Display(), Price: last.Value()}
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] encode response: %v", err)
	}
}

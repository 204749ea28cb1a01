package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type Server struct {
	mux         *chi.Mux
	readTimeout time.Duration
}

// New builds the router. readTimeout bounds the read API only; admin
// actions such as a full sync run for as long as the run takes.
func New(readTimeout time.Duration) *Server {
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	m := chi.NewRouter()

	m.Use(chimw.RealIP)
	m.Use(chimw.RequestID)
	m.Use(chimw.Recoverer)
	m.Use(Metrics)
	m.Use(Logger(log.Logger))

	return &Server{mux: m, readTimeout: readTimeout}
}

func (s *Server) Mux() http.Handler { return s.mux }

// Mount attaches any extra handler (e.g., /metrics) to the router.
func (s *Server) Mount(path string, h http.Handler) {
	s.mux.Handle(path, h)
}

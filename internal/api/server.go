package api

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/openwindow/internal/advisor"
	"github.com/lox/openwindow/internal/chart"
	"github.com/lox/openwindow/internal/narrative"
	"github.com/lox/openwindow/internal/store"
)

type Server struct {
	advisor  *advisor.Advisor
	store    *store.Store
	narrator *narrative.Writer
	charts   *chart.Cache
	port     string
	tmpl     *template.Template
}

// NewServer wires the HTTP surface. st and narrator may be nil.
func NewServer(adv *advisor.Advisor, st *store.Store, narrator *narrative.Writer, port string) *Server {
	return &Server{
		advisor:  adv,
		store:    st,
		narrator: narrator,
		charts:   chart.NewCache(10 * time.Minute),
		port:     port,
		tmpl:     newTemplates(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/windows", s.handleAPIWindows)
	mux.HandleFunc("GET /chart/{file}", s.handleChart)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

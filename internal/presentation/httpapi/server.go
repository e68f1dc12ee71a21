package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/sogos/pixelpipe/internal/domain/service"
)

// Server wraps the HTTP server exposing the repository API.
type Server struct {
	server *http.Server
	logger service.Logger
}

func NewServer(addr string, handler *TaskHandler, logger service.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/tasks", handler.SubmitTree)
	mux.HandleFunc("POST /api/tasks/input", handler.SubmitInput)
	mux.HandleFunc("GET /api/tasks", handler.ListTasks)
	mux.HandleFunc("GET /api/tasks/runnable", handler.ListRunnable)
	mux.HandleFunc("GET /api/tasks/{id}", handler.GetTask)
	mux.HandleFunc("GET /api/tasks/{id}/parents", handler.GetParents)
	mux.HandleFunc("POST /api/tasks/{id}/completed", handler.CompleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/failed", handler.FailTask)
	mux.HandleFunc("GET /api/settings", handler.GetSettings)
	mux.HandleFunc("PUT /api/settings", handler.UpdateSettings)

	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http api listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

package websocket

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/asistente-auditoria/widget/usecase"
)

type Server struct {
	upgrader   websocket.Upgrader
	sessions   *usecase.SessionFactory
	hub        *Hub
	eventRate  rate.Limit
	eventBurst int
}

type ServerOption func(*Server)

// WithEventRate limits inbound frames per connection.
func WithEventRate(perSecond float64, burst int) ServerOption {
	return func(s *Server) {
		s.eventRate = rate.Limit(perSecond)
		s.eventBurst = burst
	}
}

func NewServer(sessions *usecase.SessionFactory, opts ...ServerOption) *Server {
	s := &Server{
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		sessions:   sessions,
		hub:        NewHub(),
		eventRate:  5,
		eventBurst: 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) RunWebsocketHub(ctx context.Context) {
	s.hub.Run(ctx)
}

func (s *Server) GetHub() *Hub {
	return s.hub
}

func (s *Server) newLimiter() *rate.Limiter {
	if s.eventRate <= 0 {
		return nil
	}
	return rate.NewLimiter(s.eventRate, s.eventBurst)
}

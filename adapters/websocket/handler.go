package websocket

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/asistente-auditoria/widget/domain"
	"github.com/asistente-auditoria/widget/utils/log"
)

// Handler serves "/ws": every connection gets a fresh conversation that
// lives until the socket closes.
func (s *Server) Handler(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	ctx := log.WithSession(log.WithRemoteAddr(context.Background(), c.RealIP()), sessionID, "websocket")

	session, err := s.sessions.New(sessionID)
	if err != nil {
		log.WithCtx(ctx).Error("Failed to create session", zap.Error(err))
		conn.Close()
		return nil
	}

	broker := s.sessions.Broker()
	commands, err := broker.Subscribe(ctx, domain.CommandTopic, sessionID)
	if err != nil {
		log.WithCtx(ctx).Error("Failed to subscribe to session commands", zap.Error(err))
		conn.Close()
		return nil
	}

	client := NewClient(ctx, conn, session, commands, s.newLimiter())
	s.hub.Register(client)

	go session.Run(client.Context())
	client.Run()

	<-client.Context().Done()
	s.hub.Unregister(client)
	<-session.Done()
	broker.Unsubscribe(domain.CommandTopic, sessionID)

	log.WithCtx(ctx).Debug("Connection finished")
	return nil
}

package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/asistente-auditoria/widget/adapters/hasher"
	"github.com/asistente-auditoria/widget/adapters/markdown"
	"github.com/asistente-auditoria/widget/adapters/message_broker"
	"github.com/asistente-auditoria/widget/domain"
	"github.com/asistente-auditoria/widget/usecase"
)

type stubBackend struct{}

func (stubBackend) Ask(_ context.Context, req domain.AskRequest) (domain.AskReply, error) {
	return domain.AskReply{Success: true, Answer: "Respuesta a *" + req.Question + "*"}, nil
}

func (stubBackend) SuggestQuestions(_ context.Context, _ domain.Auditoria, _ domain.Ente) ([]string, error) {
	return []string{"¿Qué es una estimación?"}, nil
}

func (stubBackend) Upload(_ context.Context, _ []domain.Document) (domain.UploadReply, error) {
	return domain.UploadReply{Success: true}, nil
}

func startGateway(t *testing.T, opts ...ServerOption) (*Server, string) {
	t.Helper()
	m, err := usecase.NewMachine(markdown.NewRenderer(), hasher.New(), 5)
	require.NoError(t, err)
	broker := message_broker.NewChannelMessageBroker()
	sessions := usecase.NewSessionFactory(m, stubBackend{}, broker)

	ctx, cancel := context.WithCancel(context.Background())
	server := NewServer(sessions, opts...)
	server.RunWebsocketHub(ctx)

	e := echo.New()
	e.GET("/ws", server.Handler)
	ts := httptest.NewServer(e)
	t.Cleanup(func() {
		cancel()
		ts.Close()
		_ = broker.Close()
	})
	return server, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

type wsView struct {
	t      *testing.T
	conn   *websocket.Conn
	view   *domain.Transcript
	errors []ErrorResponse
}

func dial(t *testing.T, url string) *wsView {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsView{t: t, conn: conn, view: domain.NewTranscript()}
}

func (w *wsView) send(f Frame) {
	require.NoError(w.t, w.conn.WriteJSON(f))
}

func (w *wsView) waitFor(cond func(*wsView) bool) {
	w.t.Helper()
	require.NoError(w.t, w.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for !cond(w) {
		_, raw, err := w.conn.ReadMessage()
		require.NoError(w.t, err)

		var frame struct {
			Type     string           `json:"type"`
			Commands []domain.Command `json:"commands"`
			Error    ErrorResponse    `json:"error"`
		}
		require.NoError(w.t, json.Unmarshal(raw, &frame))
		switch frame.Type {
		case domain.EnvelopeCommands:
			w.view.Apply(frame.Commands...)
		case "error":
			w.errors = append(w.errors, frame.Error)
		}
	}
}

func TestGateway_Conversation(t *testing.T) {
	server, url := startGateway(t)
	c := dial(t, url)

	c.waitFor(func(w *wsView) bool { return len(w.view.Bubbles) == 1 })
	group, _ := c.view.ActiveOptions()
	require.Equal(t, domain.GroupAuditoria, group)
	require.Eventually(t, func() bool { return server.GetHub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	c.send(Frame{Type: FrameSelect, Group: domain.GroupAuditoria, Value: string(domain.AuditoriaFinanciera)})
	c.waitFor(func(w *wsView) bool {
		g, _ := w.view.ActiveOptions()
		return g == domain.GroupEnte
	})

	c.send(Frame{Type: FrameSelect, Group: domain.GroupEnte, Value: string(domain.EnteAutonomo)})
	c.waitFor(func(w *wsView) bool { return len(w.view.Suggestions) == 1 })
	require.True(t, c.view.InputEnabled)

	c.send(Frame{Type: FrameSuggestion, Text: c.view.Suggestions[0]})
	c.send(Frame{Type: FrameKey, Key: "Enter"})
	c.waitFor(func(w *wsView) bool { return w.view.Count(domain.KindAnswer) == 1 })

	answer := c.view.Bubbles[len(c.view.Bubbles)-1]
	require.Contains(t, answer.HTML, "<em>¿Qué es una estimación?</em>")
}

func TestGateway_InvalidFrame(t *testing.T) {
	_, url := startGateway(t)
	c := dial(t, url)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"dance"}`)))
	c.waitFor(func(w *wsView) bool { return len(w.errors) == 1 })
	require.Equal(t, "invalid_frame", c.errors[0].Code)

	// the connection stays usable
	c.send(Frame{Type: FrameSelect, Group: domain.GroupAuditoria, Value: string(domain.AuditoriaObraPublica)})
	c.waitFor(func(w *wsView) bool { return w.view.InputEnabled })
}

func TestGateway_RateLimited(t *testing.T) {
	_, url := startGateway(t, WithEventRate(0.001, 1))
	c := dial(t, url)

	c.send(Frame{Type: FrameInput, Text: "a"})
	c.send(Frame{Type: FrameInput, Text: "ab"})
	c.waitFor(func(w *wsView) bool { return len(w.errors) == 1 })
	require.Equal(t, "rate_limited", c.errors[0].Code)
}

func TestGateway_SessionsAreIndependent(t *testing.T) {
	server, url := startGateway(t)
	a := dial(t, url)
	b := dial(t, url)

	a.waitFor(func(w *wsView) bool { return len(w.view.Bubbles) == 1 })
	b.waitFor(func(w *wsView) bool { return len(w.view.Bubbles) == 1 })
	require.Eventually(t, func() bool { return server.GetHub().ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	a.send(Frame{Type: FrameSelect, Group: domain.GroupAuditoria, Value: string(domain.AuditoriaObraPublica)})
	a.waitFor(func(w *wsView) bool { return w.view.InputEnabled })

	group, _ := b.view.ActiveOptions()
	require.Equal(t, domain.GroupAuditoria, group)
	require.False(t, b.view.InputEnabled)

	a.conn.Close()
	require.Eventually(t, func() bool { return server.GetHub().ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

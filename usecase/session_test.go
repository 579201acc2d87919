package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asistente-auditoria/widget/domain"
)

type fakeBackend struct {
	mu          sync.Mutex
	asked       []domain.AskRequest
	suggestions int
	uploads     int

	reply domain.AskReply
	// block makes Ask wait for its context.
	block bool
}

func (f *fakeBackend) Ask(ctx context.Context, req domain.AskRequest) (domain.AskReply, error) {
	f.mu.Lock()
	f.asked = append(f.asked, req)
	block, reply := f.block, f.reply
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return domain.AskReply{}, ctx.Err()
	}
	return reply, nil
}

func (f *fakeBackend) SuggestQuestions(_ context.Context, _ domain.Auditoria, _ domain.Ente) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suggestions++
	return []string{"¿Qué es una estimación?", "¿Cuándo aplica una sanción?"}, nil
}

func (f *fakeBackend) Upload(_ context.Context, _ []domain.Document) (domain.UploadReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return domain.UploadReply{Success: true}, nil
}

func (f *fakeBackend) suggestCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suggestions
}

type harness struct {
	t        *testing.T
	session  *Session
	commands <-chan domain.Message
	view     *domain.Transcript
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, b domain.Backend, opts ...SessionOption) *harness {
	t.Helper()
	m, err := NewMachine(&fakeRenderer{}, fakeHasher{}, 5)
	require.NoError(t, err)
	broker := newFakeBroker()
	t.Cleanup(func() { _ = broker.Close() })

	s, err := NewSessionFactory(m, b, broker, opts...).New("s-1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	commands, err := broker.Subscribe(ctx, domain.CommandTopic, s.ID())
	require.NoError(t, err)

	h := &harness{t: t, session: s, commands: commands, view: domain.NewTranscript(), cancel: cancel}
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return h
}

func (h *harness) post(ev Event) {
	require.NoError(h.t, h.session.Post(context.Background(), ev))
}

// waitFor applies envelopes until cond holds.
func (h *harness) waitFor(cond func(*domain.Transcript) bool) {
	h.t.Helper()
	timeout := time.After(2 * time.Second)
	for !cond(h.view) {
		select {
		case msg := <-h.commands:
			var env domain.CommandEnvelope
			require.NoError(h.t, json.Unmarshal(msg.Payload, &env))
			require.Equal(h.t, domain.EnvelopeCommands, env.Type)
			require.Equal(h.t, h.session.ID(), env.SessionID)
			h.view.Apply(env.Commands...)
		case <-timeout:
			h.t.Fatalf("condition not met; transcript: %+v", h.view.Bubbles)
		}
	}
}

func TestNewSession_Validation(t *testing.T) {
	m, err := NewMachine(&fakeRenderer{}, fakeHasher{}, 5)
	require.NoError(t, err)
	broker := newFakeBroker()

	_, err = NewSession("", m, &fakeBackend{}, broker)
	require.Error(t, err)
	_, err = NewSession("id", nil, &fakeBackend{}, broker)
	require.Error(t, err)
	_, err = NewSession("id", m, nil, broker)
	require.Error(t, err)
	_, err = NewSession("id", m, &fakeBackend{}, nil)
	require.Error(t, err)
}

func TestSession_QuestionRoundTrip(t *testing.T) {
	b := &fakeBackend{reply: domain.AskReply{Success: true, Answer: "**ok**"}}
	h := newHarness(t, b)

	h.waitFor(func(v *domain.Transcript) bool { return len(v.Bubbles) == 1 })
	h.post(AuditoriaSelected{Value: string(domain.AuditoriaObraPublica)})
	h.waitFor(func(v *domain.Transcript) bool { return len(v.Suggestions) == 2 })

	h.post(Submitted{Text: "¿Qué revisar?"})
	h.waitFor(func(v *domain.Transcript) bool { return v.Count(domain.KindAnswer) == 1 })

	require.Equal(t, 0, h.view.Count(domain.KindLoading))
	require.True(t, h.view.InputEnabled)
	require.Equal(t, domain.PhaseReady, h.session.State().Phase)

	b.mu.Lock()
	require.Len(t, b.asked, 1)
	require.Equal(t, domain.EnteNoAplica, b.asked[0].Ente)
	b.mu.Unlock()

	// one refresh after configuration and one after the answer
	require.Eventually(t, func() bool { return b.suggestCalls() == 2 }, time.Second, 10*time.Millisecond)
}

func TestSession_RequestTimeout(t *testing.T) {
	b := &fakeBackend{block: true}
	h := newHarness(t, b, WithRequestTimeout(20*time.Millisecond))

	h.post(AuditoriaSelected{Value: string(domain.AuditoriaObraPublica)})
	h.post(Submitted{Text: "hola"})
	h.waitFor(func(v *domain.Transcript) bool { return v.Count(domain.KindError) == 1 })

	last := h.view.Bubbles[len(h.view.Bubbles)-1]
	require.True(t, strings.Contains(last.HTML, "tardó demasiado"), last.HTML)
	require.Equal(t, 0, h.view.Count(domain.KindLoading))
}

func TestSession_PostAfterClose(t *testing.T) {
	h := newHarness(t, &fakeBackend{block: true})

	h.post(AuditoriaSelected{Value: string(domain.AuditoriaObraPublica)})
	h.post(Submitted{Text: "hola"})
	h.waitFor(func(v *domain.Transcript) bool { return v.Count(domain.KindLoading) == 1 })

	h.cancel()
	select {
	case <-h.session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	require.ErrorIs(t, h.session.Post(context.Background(), Submitted{Text: "otra"}), ErrSessionClosed)
}

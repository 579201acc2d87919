package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/asistente-auditoria/widget/domain"
	"github.com/asistente-auditoria/widget/utils/log"
)

const eventBuffer = 32

var ErrSessionClosed = errors.New("usecase: session closed")

// Session runs one conversation. A single goroutine owns the state and
// handles events in arrival order; effects run concurrently and report back
// as events.
type Session struct {
	id      string
	machine *Machine
	backend domain.Backend
	broker  domain.MessageBroker
	timeout time.Duration

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu    sync.RWMutex
	state domain.ConversationState
}

type SessionOption func(*Session)

// WithRequestTimeout bounds each backend call. Zero leaves calls unbounded;
// they then end only when the session does.
func WithRequestTimeout(d time.Duration) SessionOption {
	return func(s *Session) {
		s.timeout = d
	}
}

func NewSession(id string, m *Machine, backend domain.Backend, broker domain.MessageBroker, opts ...SessionOption) (*Session, error) {
	if id == "" {
		return nil, errors.New("usecase: session id must not be empty")
	}
	if m == nil {
		return nil, errors.New("usecase: machine must not be nil")
	}
	if backend == nil {
		return nil, errors.New("usecase: backend must not be nil")
	}
	if broker == nil {
		return nil, errors.New("usecase: message broker must not be nil")
	}
	s := &Session{
		id:      id,
		machine: m,
		backend: backend,
		broker:  broker,
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
		state:   domain.NewConversationState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) ID() string { return s.id }

// SessionFactory builds sessions that share one machine, backend and broker.
type SessionFactory struct {
	machine *Machine
	backend domain.Backend
	broker  domain.MessageBroker
	opts    []SessionOption
}

func NewSessionFactory(m *Machine, backend domain.Backend, broker domain.MessageBroker, opts ...SessionOption) *SessionFactory {
	return &SessionFactory{machine: m, backend: backend, broker: broker, opts: opts}
}

func (f *SessionFactory) New(id string) (*Session, error) {
	return NewSession(id, f.machine, f.backend, f.broker, f.opts...)
}

func (f *SessionFactory) Broker() domain.MessageBroker { return f.broker }

// State returns a snapshot of the conversation state.
func (s *Session) State() domain.ConversationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Post queues an event for the session loop.
func (s *Session) Post(ctx context.Context, ev Event) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run starts the conversation and processes events until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	defer s.wg.Wait()

	log.WithCtx(ctx).Debug("Session started")
	s.handle(ctx, Started{})

	for {
		select {
		case ev := <-s.events:
			s.handle(ctx, ev)
		case <-ctx.Done():
			log.WithCtx(ctx).Debug("Session ended")
			return
		}
	}
}

func (s *Session) handle(ctx context.Context, ev Event) {
	s.mu.Lock()
	next, out := s.machine.Dispatch(s.state, ev)
	s.state = next
	s.mu.Unlock()

	log.WithCtx(ctx).Debug("Event handled",
		zap.String("event", ev.eventName()),
		zap.String("phase", string(next.Phase)),
		zap.Int("commands", len(out.Commands)),
		zap.Int("effects", len(out.Effects)))

	s.publish(ctx, out.Commands)
	for _, eff := range out.Effects {
		s.run(ctx, eff)
	}
}

func (s *Session) publish(ctx context.Context, cmds []domain.Command) {
	if len(cmds) == 0 {
		return
	}
	payload, err := json.Marshal(domain.CommandEnvelope{Type: domain.EnvelopeCommands, SessionID: s.id, Commands: cmds})
	if err != nil {
		log.WithCtx(ctx).Error("Failed to marshal commands", zap.Error(err))
		return
	}
	if err := s.broker.Publish(ctx, domain.CommandTopic, s.id, payload); err != nil {
		log.WithCtx(ctx).Error("Failed to publish commands", zap.Error(err))
	}
}

func (s *Session) run(ctx context.Context, eff Effect) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		rctx, cancel := s.requestContext(ctx)
		defer cancel()

		var result Event
		switch e := eff.(type) {
		case AskEffect:
			reply, err := s.backend.Ask(rctx, e.Request)
			if err != nil {
				log.WithCtx(ctx).Warn("Question failed", zap.Error(err))
				result = AnswerFailed{PlaceholderID: e.PlaceholderID, Err: err}
			} else {
				result = AnswerReceived{PlaceholderID: e.PlaceholderID, Reply: reply}
			}
		case SuggestEffect:
			items, err := s.backend.SuggestQuestions(rctx, e.Auditoria, e.Ente)
			if err != nil {
				log.WithCtx(ctx).Warn("Suggestions unavailable", zap.Error(err))
				result = SuggestionsFailed{Err: err}
			} else {
				result = SuggestionsReceived{Items: items}
			}
		case UploadEffect:
			reply, err := s.backend.Upload(rctx, e.Files)
			if err != nil {
				log.WithCtx(ctx).Warn("Upload failed", zap.Error(err))
			}
			result = UploadFinished{Digests: e.Digests, Reply: reply, Err: err}
		default:
			log.WithCtx(ctx).Error("Unknown effect", zap.String("effect", eff.effectName()))
			return
		}

		select {
		case s.events <- result:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

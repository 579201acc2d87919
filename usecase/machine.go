package usecase

import (
	"errors"
	"fmt"
	"html"
	"maps"
	"strings"

	"github.com/asistente-auditoria/widget/domain"
)

const defaultMaxSuggestions = 5

const (
	textWelcome        = "¡Hola! Soy tu asistente de auditoría. ¿Qué tipo de auditoría vas a realizar?"
	textAskEnte        = "¿Qué tipo de ente vas a auditar?"
	textReady          = "Configuración lista: auditoría <strong>%s</strong>, ente <strong>%s</strong>. Ya puedes escribir tu pregunta."
	textLoading        = "💬 Cargando..."
	textBlankQuestion  = "Por favor, escribe una pregunta."
	textIncomplete     = "Primero selecciona el tipo de auditoría y de ente."
	textAppError       = "⚠️ Error: %s"
	textTransportError = "⚠️ Ocurrió un error en la comunicación con el servidor: %s."
	textBadge          = "Irregularidad detectada: %s"
	textLoadingSuggest = "Cargando sugerencias..."
	textNoSuggestions  = "No hay sugerencias disponibles por ahora."
	textBusy           = "Espera a que termine la operación en curso."
	textNoFiles        = "Debes seleccionar al menos un PDF."
	textAlreadyLoaded  = "Estos documentos ya fueron cargados en esta sesión."
	textUploading      = "📄 Cargando %d documento(s)..."
	textUploadOK       = "✅ PDFs cargados correctamente."
	textUploadError    = "⚠️ No se pudieron cargar los documentos: %s."
)

// Machine holds the transition rules of the guided conversation. It never
// performs I/O: every dispatch returns the new state plus the commands to
// render and the effects to run.
type Machine struct {
	renderer       domain.MarkdownRenderer
	hasher         domain.Hasher
	maxSuggestions int
}

func NewMachine(r domain.MarkdownRenderer, h domain.Hasher, maxSuggestions int) (*Machine, error) {
	if r == nil {
		return nil, errors.New("usecase: markdown renderer must not be nil")
	}
	if h == nil {
		return nil, errors.New("usecase: hasher must not be nil")
	}
	if maxSuggestions <= 0 {
		maxSuggestions = defaultMaxSuggestions
	}
	return &Machine{renderer: r, hasher: h, maxSuggestions: maxSuggestions}, nil
}

// Dispatch applies one event to the state.
func (m *Machine) Dispatch(s domain.ConversationState, ev Event) (domain.ConversationState, Output) {
	var out Output
	switch e := ev.(type) {
	case Started:
		m.start(&s, &out)
	case AuditoriaSelected:
		m.selectAuditoria(&s, &out, e.Value)
	case EnteSelected:
		m.selectEnte(&s, &out, e.Value)
	case InputChanged:
		s.Draft = e.Text
	case KeyPressed:
		m.keyPressed(&s, &out, e)
	case Submitted:
		s.Draft = e.Text
		m.submitQuestion(&s, &out, e.Text)
	case SuggestionChosen:
		if s.ConfiguracionCompleta {
			s.Draft = e.Text
			out.render(domain.SetInput(e.Text))
		}
	case UploadRequested:
		m.requestUpload(&s, &out, e.Files)
	case AnswerReceived:
		if m.settle(&s, e.PlaceholderID) {
			m.answer(&s, &out, e.PlaceholderID, e.Reply)
			m.backToReady(&s, &out)
		}
	case AnswerFailed:
		if m.settle(&s, e.PlaceholderID) {
			out.render(
				domain.RemoveMessage(e.PlaceholderID),
				domain.AppendMessage(s.NextMessageID(), domain.BotRole, domain.KindError,
					fmt.Sprintf(textTransportError, describeFailure(e.Err))),
			)
			m.backToReady(&s, &out)
		}
	case SuggestionsReceived:
		m.showSuggestions(&out, e.Items)
	case SuggestionsFailed:
		out.render(domain.ShowSuggestions(nil, textNoSuggestions))
	case UploadFinished:
		m.uploadFinished(&s, &out, e)
	}
	return s, out
}

func (m *Machine) start(s *domain.ConversationState, out *Output) {
	if s.Phase != domain.PhaseStart {
		return
	}
	s.Phase = domain.PhaseAwaitingAuditoria
	out.render(
		domain.Simple(domain.CmdHideInput),
		domain.Simple(domain.CmdDisableInput),
		domain.Simple(domain.CmdHideSuggestions),
		domain.AppendPrompt(s.NextMessageID(), textWelcome, domain.GroupAuditoria, domain.AuditoriaOptions),
	)
}

func (m *Machine) selectAuditoria(s *domain.ConversationState, out *Output, value string) {
	if s.Phase != domain.PhaseAwaitingAuditoria {
		return
	}
	a, ok := domain.ParseAuditoria(value)
	if !ok {
		return
	}
	s.Auditoria = a
	out.render(
		domain.DisableOptions(domain.GroupAuditoria),
		domain.AppendMessage(s.NextMessageID(), domain.UserRole, domain.KindQuestion, userHTML(a.Label())),
	)

	if a == domain.AuditoriaObraPublica {
		s.Ente = domain.EnteNoAplica
		m.complete(s, out)
		return
	}
	s.Phase = domain.PhaseAwaitingEnte
	out.render(domain.AppendPrompt(s.NextMessageID(), textAskEnte, domain.GroupEnte, domain.EnteOptions))
}

func (m *Machine) selectEnte(s *domain.ConversationState, out *Output, value string) {
	if s.Phase != domain.PhaseAwaitingEnte {
		return
	}
	e, ok := domain.ParseEnte(value)
	if !ok {
		return
	}
	s.Ente = e
	out.render(
		domain.DisableOptions(domain.GroupEnte),
		domain.AppendMessage(s.NextMessageID(), domain.UserRole, domain.KindQuestion, userHTML(e.Label())),
	)
	m.complete(s, out)
}

func (m *Machine) complete(s *domain.ConversationState, out *Output) {
	s.ConfiguracionCompleta = true
	s.Phase = domain.PhaseReady
	out.render(
		domain.AppendMessage(s.NextMessageID(), domain.BotRole, domain.KindNotice,
			fmt.Sprintf(textReady, html.EscapeString(s.Auditoria.Label()), html.EscapeString(s.Ente.Label()))),
		domain.Simple(domain.CmdShowInput),
		domain.Simple(domain.CmdEnableInput),
		domain.ShowSuggestions(nil, textLoadingSuggest),
	)
	out.effect(SuggestEffect{Auditoria: s.Auditoria, Ente: s.Ente})
}

func (m *Machine) keyPressed(s *domain.ConversationState, out *Output, k KeyPressed) {
	if k.Key != "Enter" || k.Shift || k.Ctrl || k.Alt || k.Meta {
		return
	}
	if s.Phase != domain.PhaseReady || strings.TrimSpace(s.Draft) == "" {
		return
	}
	m.submitQuestion(s, out, s.Draft)
}

func (m *Machine) submitQuestion(s *domain.ConversationState, out *Output, text string) {
	if s.Phase == domain.PhaseSubmitting {
		return
	}
	question := strings.TrimSpace(text)
	if !s.ConfiguracionCompleta {
		m.warn(s, out, textIncomplete)
		return
	}
	if question == "" {
		m.warn(s, out, textBlankQuestion)
		return
	}

	userID := s.NextMessageID()
	placeholder := s.NextMessageID()
	s.Phase = domain.PhaseSubmitting
	s.PendingID = placeholder
	out.render(
		domain.Simple(domain.CmdHideWelcome),
		domain.AppendMessage(userID, domain.UserRole, domain.KindQuestion, userHTML(question)),
		domain.AppendMessage(placeholder, domain.BotRole, domain.KindLoading, textLoading),
		domain.Simple(domain.CmdDisableInput),
	)
	out.effect(AskEffect{
		PlaceholderID: placeholder,
		Request: domain.AskRequest{
			Question:  question,
			Auditoria: s.Auditoria,
			Ente:      s.Ente,
		},
	})
}

// settle ends the question exchange in flight. It reports false for results
// that do not belong to it.
func (m *Machine) settle(s *domain.ConversationState, placeholder string) bool {
	if s.Phase != domain.PhaseSubmitting || placeholder != s.PendingID {
		return false
	}
	s.Phase = domain.PhaseReady
	s.PendingID = ""
	s.Draft = ""
	return true
}

// backToReady runs whatever the outcome of the exchange was.
func (m *Machine) backToReady(s *domain.ConversationState, out *Output) {
	out.render(
		domain.Simple(domain.CmdEnableInput),
		domain.Simple(domain.CmdClearInput),
	)
	out.effect(SuggestEffect{Auditoria: s.Auditoria, Ente: s.Ente})
}

func (m *Machine) answer(s *domain.ConversationState, out *Output, placeholder string, reply domain.AskReply) {
	if !reply.Success {
		msg := strings.TrimSpace(reply.Message)
		if msg == "" {
			msg = "el servidor no pudo responder la pregunta"
		}
		out.render(
			domain.RemoveMessage(placeholder),
			domain.AppendMessage(s.NextMessageID(), domain.BotRole, domain.KindError,
				fmt.Sprintf(textAppError, html.EscapeString(msg))),
		)
		return
	}

	markdown := reply.Answer
	if links := strings.TrimSpace(reply.Links); links != "" {
		markdown += "\n\n" + links
	}
	var badge string
	if irr := strings.TrimSpace(reply.Irregularity); irr != "" {
		badge = fmt.Sprintf(textBadge, irr)
	}
	out.render(domain.ReplaceMessage(placeholder, domain.KindAnswer, m.renderer.Render(markdown), badge))
}

func (m *Machine) showSuggestions(out *Output, items []string) {
	clean := make([]string, 0, m.maxSuggestions)
	for _, it := range items {
		if it = strings.TrimSpace(it); it == "" {
			continue
		}
		clean = append(clean, it)
		if len(clean) == m.maxSuggestions {
			break
		}
	}
	if len(clean) == 0 {
		out.render(domain.ShowSuggestions(nil, textNoSuggestions))
		return
	}
	out.render(domain.ShowSuggestions(clean, ""))
}

func (m *Machine) requestUpload(s *domain.ConversationState, out *Output, files []domain.Document) {
	if s.Phase == domain.PhaseSubmitting || s.Uploading {
		m.warn(s, out, textBusy)
		return
	}
	if !anyContent(files) {
		m.warn(s, out, textNoFiles)
		return
	}
	var (
		send    []domain.Document
		digests []string
		seen    = map[string]bool{}
	)
	for _, f := range files {
		if f.Name == "" || len(f.Content) == 0 {
			continue
		}
		d := m.hasher.Hash(f.Content)
		if s.Uploaded[d] || seen[d] {
			continue
		}
		seen[d] = true
		send = append(send, f)
		digests = append(digests, d)
	}
	if len(send) == 0 {
		out.render(domain.AppendMessage(s.NextMessageID(), domain.BotRole, domain.KindNotice, textAlreadyLoaded))
		return
	}

	s.Uploading = true
	out.render(domain.AppendMessage(s.NextMessageID(), domain.BotRole, domain.KindNotice,
		fmt.Sprintf(textUploading, len(send))))
	out.effect(UploadEffect{Files: send, Digests: digests})
}

func anyContent(files []domain.Document) bool {
	for _, f := range files {
		if f.Name != "" && len(f.Content) > 0 {
			return true
		}
	}
	return false
}

func (m *Machine) uploadFinished(s *domain.ConversationState, out *Output, e UploadFinished) {
	if !s.Uploading {
		return
	}
	s.Uploading = false
	switch {
	case e.Err != nil:
		out.render(domain.AppendMessage(s.NextMessageID(), domain.BotRole, domain.KindError,
			fmt.Sprintf(textUploadError, describeFailure(e.Err))))
	case !e.Reply.Success:
		msg := strings.TrimSpace(e.Reply.Message)
		if msg == "" {
			msg = "no se pudo extraer texto de los PDFs"
		}
		out.render(domain.AppendMessage(s.NextMessageID(), domain.BotRole, domain.KindError,
			fmt.Sprintf(textAppError, html.EscapeString(msg))))
	default:
		uploaded := maps.Clone(s.Uploaded)
		if uploaded == nil {
			uploaded = make(map[string]bool, len(e.Digests))
		}
		for _, d := range e.Digests {
			uploaded[d] = true
		}
		s.Uploaded = uploaded
		msg := strings.TrimSpace(e.Reply.Message)
		if msg == "" {
			msg = textUploadOK
		}
		out.render(domain.AppendMessage(s.NextMessageID(), domain.BotRole, domain.KindNotice, html.EscapeString(msg)))
	}
}

func (m *Machine) warn(s *domain.ConversationState, out *Output, text string) {
	out.render(domain.AppendMessage(s.NextMessageID(), domain.BotRole, domain.KindWarning, text))
}

func userHTML(text string) string {
	return "👤 " + html.EscapeString(text)
}

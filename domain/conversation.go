package domain

import "strconv"

// Auditoria is the audit type chosen at the start of a conversation.
type Auditoria string

const (
	AuditoriaObraPublica Auditoria = "obra_publica"
	AuditoriaFinanciera  Auditoria = "financiera"
)

// Ente is the entity type. It is only asked for financial audits.
type Ente string

const (
	EnteAutonomo       Ente = "autonomo"
	EnteParaestatal    Ente = "paraestatal"
	EnteCentralizada   Ente = "centralizada"
	EnteNoEspecificado Ente = "no_especificado"
	EnteNoAplica       Ente = "no_aplica"
)

// Option groups carried on prompt bubbles.
const (
	GroupAuditoria = "auditoria"
	GroupEnte      = "ente"
)

// Option is a selectable button attached to a bot bubble.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// AuditoriaOptions lists the audit types in presentation order.
var AuditoriaOptions = []Option{
	{Value: string(AuditoriaObraPublica), Label: "Obra Pública"},
	{Value: string(AuditoriaFinanciera), Label: "Financiera"},
}

// EnteOptions lists the entity types offered for financial audits.
// EnteNoAplica is never offered; it is assigned for public works.
var EnteOptions = []Option{
	{Value: string(EnteAutonomo), Label: "Autónomo"},
	{Value: string(EnteParaestatal), Label: "Paraestatal"},
	{Value: string(EnteCentralizada), Label: "Centralizada"},
	{Value: string(EnteNoEspecificado), Label: "No especificado"},
}

func ParseAuditoria(v string) (Auditoria, bool) {
	switch a := Auditoria(v); a {
	case AuditoriaObraPublica, AuditoriaFinanciera:
		return a, true
	}
	return "", false
}

// ParseEnte accepts only the values a user may pick.
func ParseEnte(v string) (Ente, bool) {
	switch e := Ente(v); e {
	case EnteAutonomo, EnteParaestatal, EnteCentralizada, EnteNoEspecificado:
		return e, true
	}
	return "", false
}

func (a Auditoria) Label() string {
	return labelOf(AuditoriaOptions, string(a))
}

func (e Ente) Label() string {
	if e == EnteNoAplica {
		return "No aplica"
	}
	return labelOf(EnteOptions, string(e))
}

func labelOf(opts []Option, v string) string {
	for _, o := range opts {
		if o.Value == v {
			return o.Label
		}
	}
	return v
}

// Phase is the step of the guided intake a conversation is in.
type Phase string

const (
	PhaseStart             Phase = "start"
	PhaseAwaitingAuditoria Phase = "awaiting_auditoria"
	PhaseAwaitingEnte      Phase = "awaiting_ente"
	PhaseReady             Phase = "ready"
	PhaseSubmitting        Phase = "submitting"
)

// ConversationState is the single mutable record of a conversation.
// It lives as long as its session and is never persisted.
type ConversationState struct {
	Auditoria             Auditoria
	Ente                  Ente
	ConfiguracionCompleta bool

	Phase Phase
	// Draft is the pending question text.
	Draft string
	// PendingID is the loading bubble of the question in flight.
	PendingID string
	Uploading bool
	// Uploaded holds digests of documents sent in this session.
	Uploaded map[string]bool

	seq int
}

func NewConversationState() ConversationState {
	return ConversationState{Phase: PhaseStart}
}

// NextMessageID returns a fresh bubble id, unique within the conversation.
func (s *ConversationState) NextMessageID() string {
	s.seq++
	return "msg-" + strconv.Itoa(s.seq)
}

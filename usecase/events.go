package usecase

import "github.com/asistente-auditoria/widget/domain"

// Event is anything the machine reacts to: user input from a front end or
// the result of an effect.
type Event interface {
	eventName() string
}

type Started struct{}

type AuditoriaSelected struct{ Value string }

type EnteSelected struct{ Value string }

// InputChanged mirrors edits of the question box.
type InputChanged struct{ Text string }

type KeyPressed struct {
	Key   string
	Shift bool
	Ctrl  bool
	Alt   bool
	Meta  bool
}

type Submitted struct{ Text string }

type SuggestionChosen struct{ Text string }

type UploadRequested struct{ Files []domain.Document }

type AnswerReceived struct {
	PlaceholderID string
	Reply         domain.AskReply
}

type AnswerFailed struct {
	PlaceholderID string
	Err           error
}

type SuggestionsReceived struct{ Items []string }

type SuggestionsFailed struct{ Err error }

type UploadFinished struct {
	Digests []string
	Reply   domain.UploadReply
	Err     error
}

func (Started) eventName() string             { return "started" }
func (AuditoriaSelected) eventName() string   { return "auditoria_selected" }
func (EnteSelected) eventName() string        { return "ente_selected" }
func (InputChanged) eventName() string        { return "input_changed" }
func (KeyPressed) eventName() string          { return "key_pressed" }
func (Submitted) eventName() string           { return "submitted" }
func (SuggestionChosen) eventName() string    { return "suggestion_chosen" }
func (UploadRequested) eventName() string     { return "upload_requested" }
func (AnswerReceived) eventName() string      { return "answer_received" }
func (AnswerFailed) eventName() string        { return "answer_failed" }
func (SuggestionsReceived) eventName() string { return "suggestions_received" }
func (SuggestionsFailed) eventName() string   { return "suggestions_failed" }
func (UploadFinished) eventName() string      { return "upload_finished" }

// Effect is work the session runtime performs outside the machine.
type Effect interface {
	effectName() string
}

type AskEffect struct {
	PlaceholderID string
	Request       domain.AskRequest
}

type SuggestEffect struct {
	Auditoria domain.Auditoria
	Ente      domain.Ente
}

type UploadEffect struct {
	Files   []domain.Document
	Digests []string
}

func (AskEffect) effectName() string     { return "ask" }
func (SuggestEffect) effectName() string { return "suggest" }
func (UploadEffect) effectName() string  { return "upload" }

// Output is what one dispatch produces.
type Output struct {
	Commands []domain.Command
	Effects  []Effect
}

func (o *Output) render(cmds ...domain.Command) {
	o.Commands = append(o.Commands, cmds...)
}

func (o *Output) effect(e Effect) {
	o.Effects = append(o.Effects, e)
}

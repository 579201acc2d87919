package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/asistente-auditoria/widget/domain"
	"github.com/asistente-auditoria/widget/usecase"
)

// Inbound frame types.
const (
	FrameSelect     = "select"
	FrameInput      = "input"
	FrameKey        = "key"
	FrameSubmit     = "submit"
	FrameSuggestion = "suggestion"
	FrameUpload     = "upload"
)

// Frame is an event sent by a front end over the socket.
type Frame struct {
	Type  string            `json:"type"`
	Group string            `json:"group,omitempty"`
	Value string            `json:"value,omitempty"`
	Text  string            `json:"text,omitempty"`
	Key   string            `json:"key,omitempty"`
	Shift bool              `json:"shift,omitempty"`
	Ctrl  bool              `json:"ctrl,omitempty"`
	Alt   bool              `json:"alt,omitempty"`
	Meta  bool              `json:"meta,omitempty"`
	Files []domain.Document `json:"files,omitempty"`
}

// ErrorResponse is sent back for frames the gateway cannot accept.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type errorEnvelope struct {
	Type  string        `json:"type"`
	Error ErrorResponse `json:"error"`
}

func encodeError(code, message, details string) []byte {
	b, _ := json.Marshal(errorEnvelope{
		Type:  "error",
		Error: ErrorResponse{Code: code, Message: message, Details: details},
	})
	return b
}

// DecodeEvent turns a raw frame into a conversation event.
func DecodeEvent(raw []byte) (usecase.Event, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return f.Event()
}

func (f Frame) Event() (usecase.Event, error) {
	switch f.Type {
	case FrameSelect:
		switch f.Group {
		case domain.GroupAuditoria:
			return usecase.AuditoriaSelected{Value: f.Value}, nil
		case domain.GroupEnte:
			return usecase.EnteSelected{Value: f.Value}, nil
		}
		return nil, fmt.Errorf("unknown option group %q", f.Group)
	case FrameInput:
		return usecase.InputChanged{Text: f.Text}, nil
	case FrameKey:
		return usecase.KeyPressed{Key: f.Key, Shift: f.Shift, Ctrl: f.Ctrl, Alt: f.Alt, Meta: f.Meta}, nil
	case FrameSubmit:
		return usecase.Submitted{Text: f.Text}, nil
	case FrameSuggestion:
		return usecase.SuggestionChosen{Text: f.Text}, nil
	case FrameUpload:
		return usecase.UploadRequested{Files: f.Files}, nil
	}
	return nil, fmt.Errorf("unknown frame type %q", f.Type)
}

package domain

import (
	"context"
	"errors"
)

// Backend abstracts the audit assistant Q&A service.
type Backend interface {
	// Ask sends a question with the conversation configuration.
	Ask(ctx context.Context, req AskRequest) (AskReply, error)
	// SuggestQuestions returns follow-up questions for a configuration.
	SuggestQuestions(ctx context.Context, auditoria Auditoria, ente Ente) ([]string, error)
	// Upload sends PDF documents for the assistant to work from.
	Upload(ctx context.Context, docs []Document) (UploadReply, error)
}

type AskRequest struct {
	Question  string
	Auditoria Auditoria
	Ente      Ente
}

// AskReply mirrors the /ask response body. Answer and Links are Markdown.
type AskReply struct {
	Success      bool   `json:"success"`
	Answer       string `json:"answer,omitempty"`
	Links        string `json:"links,omitempty"`
	Message      string `json:"message,omitempty"`
	Irregularity string `json:"irregularidad_detectada,omitempty"`
}

type UploadReply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Document is a file picked for upload.
type Document struct {
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

// MarkdownRenderer turns Markdown into HTML that is safe to insert.
type MarkdownRenderer interface {
	Render(markdown string) string
}

// ErrMalformedResponse is returned when a backend reply cannot be decoded.
var ErrMalformedResponse = errors.New("malformed response")

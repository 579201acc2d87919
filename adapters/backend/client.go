package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/asistente-auditoria/widget/domain"
)

const (
	maxErrorBody    = 4096
	maxResponseBody = 1 << 20
)

// HTTPStatusError captures non-2xx responses from the Q&A service.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("backend: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

type suggestionsResponse struct {
	Success   bool     `json:"success"`
	Preguntas []string `json:"preguntas"`
	Message   string   `json:"message"`
}

// Client talks to the audit assistant endpoints /ask, /sugerir_preguntas and
// /upload.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient builds a client for the service rooted at baseURL. The default
// HTTP client has no timeout; requests end when their context does.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend: base URL must not be empty")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("backend: invalid base URL: %w", err)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c, nil
}

// Ask posts the question form. A reply with success=false is not an error:
// the caller shows its message.
func (c *Client) Ask(ctx context.Context, req domain.AskRequest) (domain.AskReply, error) {
	ente := req.Ente
	if ente == "" {
		ente = domain.EnteNoEspecificado
	}
	form := url.Values{}
	form.Set("question", req.Question)
	form.Set("auditoria", string(req.Auditoria))
	form.Set("ente", string(ente))

	endpoint := c.baseURL + "/ask"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.AskReply{}, fmt.Errorf("backend: create ask request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	var reply domain.AskReply
	if err := c.doJSON(httpReq, &reply); err != nil {
		return domain.AskReply{}, fmt.Errorf("backend: ask: %w", err)
	}
	if reply.Success && strings.TrimSpace(reply.Answer) == "" {
		return domain.AskReply{}, fmt.Errorf("backend: ask: %w: success without answer", domain.ErrMalformedResponse)
	}
	return reply, nil
}

// SuggestQuestions fetches suggested questions for a configuration. An empty
// ente is sent as no_especificado.
func (c *Client) SuggestQuestions(ctx context.Context, auditoria domain.Auditoria, ente domain.Ente) ([]string, error) {
	if ente == "" {
		ente = domain.EnteNoEspecificado
	}
	q := url.Values{}
	q.Set("auditoria_tipo", string(auditoria))
	q.Set("ente_tipo", string(ente))

	endpoint := c.baseURL + "/sugerir_preguntas?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: create suggestions request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	var payload suggestionsResponse
	if err := c.doJSON(httpReq, &payload); err != nil {
		return nil, fmt.Errorf("backend: suggestions: %w", err)
	}
	if !payload.Success {
		return nil, fmt.Errorf("backend: suggestions: server reported failure: %s", payload.Message)
	}
	return payload.Preguntas, nil
}

// Upload sends the documents as multipart field "pdfs".
func (c *Client) Upload(ctx context.Context, docs []domain.Document) (domain.UploadReply, error) {
	if len(docs) == 0 {
		return domain.UploadReply{}, errors.New("backend: upload: no documents")
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, d := range docs {
		part, err := mw.CreateFormFile("pdfs", d.Name)
		if err != nil {
			return domain.UploadReply{}, fmt.Errorf("backend: upload: create part %q: %w", d.Name, err)
		}
		if _, err := part.Write(d.Content); err != nil {
			return domain.UploadReply{}, fmt.Errorf("backend: upload: write part %q: %w", d.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return domain.UploadReply{}, fmt.Errorf("backend: upload: close multipart: %w", err)
	}

	endpoint := c.baseURL + "/upload"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return domain.UploadReply{}, fmt.Errorf("backend: create upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	var reply domain.UploadReply
	if err := c.doJSON(httpReq, &reply); err != nil {
		return domain.UploadReply{}, fmt.Errorf("backend: upload: %w", err)
	}
	return reply, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        req.URL.Redacted(),
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/asistente-auditoria/widget/adapters/markdown"
	"github.com/asistente-auditoria/widget/adapters/websocket"
	"github.com/asistente-auditoria/widget/domain"
)

// view keeps the transcript of the conversation and prints what changes.
type view struct {
	mu  sync.Mutex
	t   *domain.Transcript
	out io.Writer

	lastSuggestions string
}

func newView(out io.Writer) *view {
	return &view{t: domain.NewTranscript(), out: out}
}

type inbound struct {
	Type     string                   `json:"type"`
	Commands []domain.Command         `json:"commands"`
	Error    *websocket.ErrorResponse `json:"error"`
}

// handle applies one frame received from the gateway.
func (v *view) handle(raw []byte) error {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if in.Type == "error" && in.Error != nil {
		fmt.Fprintf(v.out, "! %s\n", in.Error.Message)
		return nil
	}

	draft := v.t.InputValue
	for _, i := range v.t.Apply(in.Commands...) {
		b := v.t.Bubbles[i]
		if b.Kind == domain.KindLoading {
			fmt.Fprintln(v.out, "…")
			continue
		}
		prefix := "🤖"
		if b.Role == domain.UserRole {
			prefix = ">"
		}
		fmt.Fprintf(v.out, "%s %s\n", prefix, markdown.PlainText(b.HTML))
		if b.Badge != "" {
			fmt.Fprintf(v.out, "   🚩 %s\n", b.Badge)
		}
		for n, o := range b.Options {
			fmt.Fprintf(v.out, "   [%d] %s\n", n+1, o.Label)
		}
	}

	if v.t.InputValue != draft && v.t.InputValue != "" {
		fmt.Fprintf(v.out, "✎ %s (Enter para enviar)\n", v.t.InputValue)
	}

	if v.t.SuggestionsVisible && len(v.t.Suggestions) > 0 {
		key := strings.Join(v.t.Suggestions, "\x00")
		if key != v.lastSuggestions {
			v.lastSuggestions = key
			fmt.Fprintln(v.out, "   Sugerencias (/s N):")
			for n, s := range v.t.Suggestions {
				fmt.Fprintf(v.out, "   (%d) %s\n", n+1, s)
			}
		}
	}
	return nil
}

// frames turns a line typed by the user into the frames to send. An empty
// line presses Enter, which sends a suggestion picked with /s.
func (v *view) frames(line string) ([]websocket.Frame, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return []websocket.Frame{{Type: websocket.FrameKey, Key: "Enter"}}, nil
	}

	v.mu.Lock()
	group, options := v.t.ActiveOptions()
	suggestions := append([]string(nil), v.t.Suggestions...)
	v.mu.Unlock()

	if n, err := strconv.Atoi(line); err == nil && len(options) > 0 {
		if n < 1 || n > len(options) {
			return nil, fmt.Errorf("elige una opción entre 1 y %d", len(options))
		}
		return []websocket.Frame{{Type: websocket.FrameSelect, Group: group, Value: options[n-1].Value}}, nil
	}

	switch {
	case strings.HasPrefix(line, "/s "):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "/s ")))
		if err != nil || n < 1 || n > len(suggestions) {
			return nil, fmt.Errorf("no existe esa sugerencia")
		}
		return []websocket.Frame{{Type: websocket.FrameSuggestion, Text: suggestions[n-1]}}, nil

	case strings.HasPrefix(line, "/upload"):
		var files []domain.Document
		for _, path := range strings.Fields(strings.TrimPrefix(line, "/upload")) {
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("leer %s: %w", path, err)
			}
			files = append(files, domain.Document{Name: filepath.Base(path), Content: content})
		}
		return []websocket.Frame{{Type: websocket.FrameUpload, Files: files}}, nil
	}

	return []websocket.Frame{{Type: websocket.FrameSubmit, Text: line}}, nil
}

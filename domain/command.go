package domain

type Role string

const (
	UserRole Role = "user"
	BotRole  Role = "bot"
)

// MessageKind tells front ends how to style a bubble.
type MessageKind string

const (
	KindPrompt   MessageKind = "prompt"
	KindQuestion MessageKind = "question"
	KindLoading  MessageKind = "loading"
	KindAnswer   MessageKind = "answer"
	KindError    MessageKind = "error"
	KindWarning  MessageKind = "warning"
	KindNotice   MessageKind = "notice"
)

type CommandType string

const (
	CmdAppendMessage   CommandType = "append_message"
	CmdReplaceMessage  CommandType = "replace_message"
	CmdRemoveMessage   CommandType = "remove_message"
	CmdDisableOptions  CommandType = "disable_options"
	CmdShowInput       CommandType = "show_input"
	CmdHideInput       CommandType = "hide_input"
	CmdEnableInput     CommandType = "enable_input"
	CmdDisableInput    CommandType = "disable_input"
	CmdClearInput      CommandType = "clear_input"
	CmdSetInput        CommandType = "set_input"
	CmdShowSuggestions CommandType = "show_suggestions"
	CmdHideSuggestions CommandType = "hide_suggestions"
	CmdHideWelcome     CommandType = "hide_welcome"
)

// Command is a single render instruction for a front end. Only the fields
// relevant to Type are set.
type Command struct {
	Type        CommandType `json:"type"`
	MessageID   string      `json:"message_id,omitempty"`
	Role        Role        `json:"role,omitempty"`
	Kind        MessageKind `json:"kind,omitempty"`
	HTML        string      `json:"html,omitempty"`
	Badge       string      `json:"badge,omitempty"`
	Group       string      `json:"group,omitempty"`
	Options     []Option    `json:"options,omitempty"`
	Text        string      `json:"text,omitempty"`
	Suggestions []string    `json:"suggestions,omitempty"`
	Notice      string      `json:"notice,omitempty"`
}

// EnvelopeCommands tags frames carrying render commands.
const EnvelopeCommands = "commands"

// CommandEnvelope is what a session publishes after each event.
type CommandEnvelope struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Commands  []Command `json:"commands"`
}

func AppendMessage(id string, role Role, kind MessageKind, html string) Command {
	return Command{Type: CmdAppendMessage, MessageID: id, Role: role, Kind: kind, HTML: html}
}

func AppendPrompt(id, html, group string, options []Option) Command {
	return Command{
		Type:      CmdAppendMessage,
		MessageID: id,
		Role:      BotRole,
		Kind:      KindPrompt,
		HTML:      html,
		Group:     group,
		Options:   options,
	}
}

func ReplaceMessage(id string, kind MessageKind, html, badge string) Command {
	return Command{Type: CmdReplaceMessage, MessageID: id, Kind: kind, HTML: html, Badge: badge}
}

func RemoveMessage(id string) Command {
	return Command{Type: CmdRemoveMessage, MessageID: id}
}

func DisableOptions(group string) Command {
	return Command{Type: CmdDisableOptions, Group: group}
}

func SetInput(text string) Command {
	return Command{Type: CmdSetInput, Text: text}
}

func ShowSuggestions(items []string, notice string) Command {
	return Command{Type: CmdShowSuggestions, Suggestions: items, Notice: notice}
}

func Simple(t CommandType) Command {
	return Command{Type: t}
}

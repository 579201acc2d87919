package domain

// Bubble is one chat message as currently shown.
type Bubble struct {
	ID       string
	Role     Role
	Kind     MessageKind
	HTML     string
	Badge    string
	Group    string
	Options  []Option
	Disabled bool
}

// Transcript is an in-memory view built by applying render commands. Front
// ends without a DOM keep one per conversation.
type Transcript struct {
	Bubbles []Bubble

	InputVisible bool
	InputEnabled bool
	InputValue   string
	WelcomeShown bool

	SuggestionsVisible bool
	Suggestions        []string
	SuggestionsNotice  string
}

func NewTranscript() *Transcript {
	return &Transcript{WelcomeShown: true}
}

// Apply interprets commands in order. It returns the indexes of bubbles that
// were appended or replaced, so callers can print only what changed.
func (t *Transcript) Apply(cmds ...Command) []int {
	var touched []int
	for _, c := range cmds {
		switch c.Type {
		case CmdAppendMessage:
			t.Bubbles = append(t.Bubbles, Bubble{
				ID:      c.MessageID,
				Role:    c.Role,
				Kind:    c.Kind,
				HTML:    c.HTML,
				Badge:   c.Badge,
				Group:   c.Group,
				Options: c.Options,
			})
			touched = append(touched, len(t.Bubbles)-1)
		case CmdReplaceMessage:
			if i := t.index(c.MessageID); i >= 0 {
				b := &t.Bubbles[i]
				b.HTML = c.HTML
				b.Badge = c.Badge
				if c.Kind != "" {
					b.Kind = c.Kind
				}
				touched = append(touched, i)
			}
		case CmdRemoveMessage:
			if i := t.index(c.MessageID); i >= 0 {
				t.Bubbles = append(t.Bubbles[:i], t.Bubbles[i+1:]...)
				touched = shiftAfterRemove(touched, i)
			}
		case CmdDisableOptions:
			for i := range t.Bubbles {
				if t.Bubbles[i].Group == c.Group {
					t.Bubbles[i].Disabled = true
				}
			}
		case CmdShowInput:
			t.InputVisible = true
		case CmdHideInput:
			t.InputVisible = false
		case CmdEnableInput:
			t.InputEnabled = true
		case CmdDisableInput:
			t.InputEnabled = false
		case CmdClearInput:
			t.InputValue = ""
		case CmdSetInput:
			t.InputValue = c.Text
		case CmdShowSuggestions:
			t.SuggestionsVisible = true
			t.Suggestions = append([]string(nil), c.Suggestions...)
			t.SuggestionsNotice = c.Notice
		case CmdHideSuggestions:
			t.SuggestionsVisible = false
		case CmdHideWelcome:
			t.WelcomeShown = false
		}
	}
	return touched
}

// Find returns the bubble with the given id.
func (t *Transcript) Find(id string) (Bubble, bool) {
	if i := t.index(id); i >= 0 {
		return t.Bubbles[i], true
	}
	return Bubble{}, false
}

// Count returns how many bubbles have the given kind.
func (t *Transcript) Count(kind MessageKind) int {
	n := 0
	for _, b := range t.Bubbles {
		if b.Kind == kind {
			n++
		}
	}
	return n
}

// ActiveOptions returns the options of the newest prompt that is still
// clickable.
func (t *Transcript) ActiveOptions() (string, []Option) {
	for i := len(t.Bubbles) - 1; i >= 0; i-- {
		b := t.Bubbles[i]
		if len(b.Options) > 0 && !b.Disabled {
			return b.Group, b.Options
		}
	}
	return "", nil
}

func (t *Transcript) index(id string) int {
	for i, b := range t.Bubbles {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func shiftAfterRemove(idx []int, removed int) []int {
	out := idx[:0]
	for _, i := range idx {
		switch {
		case i < removed:
			out = append(out, i)
		case i > removed:
			out = append(out, i-1)
		}
	}
	return out
}

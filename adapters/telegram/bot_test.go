package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"github.com/asistente-auditoria/widget/adapters/hasher"
	"github.com/asistente-auditoria/widget/adapters/markdown"
	"github.com/asistente-auditoria/widget/adapters/message_broker"
	"github.com/asistente-auditoria/widget/domain"
	"github.com/asistente-auditoria/widget/usecase"
)

type fakeSender struct {
	next     int
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable

	// rejectEdits fails every text edit, as Telegram does for oversized texts.
	rejectEdits bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if _, ok := c.(tgbotapi.EditMessageTextConfig); ok && f.rejectEdits {
		return tgbotapi.Message{}, errors.New("Bad Request: MESSAGE_TOO_LONG")
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok && utf8.RuneCountInString(m.Text) > maxMessageRunes {
		return tgbotapi.Message{}, errors.New("Bad Request: message is too long")
	}
	f.next++
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 100 + f.next}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func testChat(out sender) *chat {
	ctx, cancel := context.WithCancel(context.Background())
	return newChat(ctx, cancel, out, nil, nil, 42)
}

func TestRender_PromptWithOptions(t *testing.T) {
	out := &fakeSender{}
	c := testChat(out)

	c.render(domain.AppendPrompt("msg-1", "¿Qué tipo de auditoría?", domain.GroupAuditoria, domain.AuditoriaOptions))

	require.Len(t, out.sent, 1)
	m, ok := out.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	require.Equal(t, int64(42), m.ChatID)
	require.Equal(t, "¿Qué tipo de auditoría?", m.Text)

	kb, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 1)
	require.Equal(t, "auditoria:obra_publica", *kb.InlineKeyboard[0][0].CallbackData)
	require.Equal(t, "auditoria:financiera", *kb.InlineKeyboard[0][1].CallbackData)

	c.render(domain.DisableOptions(domain.GroupAuditoria))
	require.Len(t, out.requests, 1)
	edit, ok := out.requests[0].(tgbotapi.EditMessageReplyMarkupConfig)
	require.True(t, ok)
	require.Equal(t, 101, edit.MessageID)
}

func TestRender_UserEchoIsSkipped(t *testing.T) {
	out := &fakeSender{}
	c := testChat(out)

	c.render(domain.AppendMessage("msg-2", domain.UserRole, domain.KindQuestion, "👤 hola"))
	require.Empty(t, out.sent)
}

func TestRender_LoadingThenAnswer(t *testing.T) {
	out := &fakeSender{}
	c := testChat(out)

	c.render(domain.AppendMessage("msg-3", domain.BotRole, domain.KindLoading, "💬 Cargando..."))
	c.render(domain.ReplaceMessage("msg-3", domain.KindAnswer, "<p><strong>ok</strong></p>", "Irregularidad detectada: x"))

	require.Len(t, out.sent, 2)
	edit, ok := out.sent[1].(tgbotapi.EditMessageTextConfig)
	require.True(t, ok)
	require.Equal(t, 101, edit.MessageID)
	require.Equal(t, "ok\n\n🚩 Irregularidad detectada: x", edit.Text)
}

func TestRender_RemoveLoading(t *testing.T) {
	out := &fakeSender{}
	c := testChat(out)

	c.render(domain.AppendMessage("msg-3", domain.BotRole, domain.KindLoading, "💬 Cargando..."))
	c.render(domain.RemoveMessage("msg-3"))
	c.render(domain.RemoveMessage("msg-3"))

	require.Len(t, out.requests, 1)
	del, ok := out.requests[0].(tgbotapi.DeleteMessageConfig)
	require.True(t, ok)
	require.Equal(t, 101, del.MessageID)
}

func TestSuggestionCallbacks(t *testing.T) {
	out := &fakeSender{}
	c := testChat(out)

	c.render(domain.ShowSuggestions(nil, "Cargando sugerencias..."))
	require.Empty(t, out.sent)
	require.Nil(t, c.callbackEvents("sug:0"))

	c.render(domain.ShowSuggestions([]string{"¿Qué es una estimación?", "¿Quién firma?"}, ""))
	require.Len(t, out.sent, 1)

	kb := out.sent[0].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	data := *kb.InlineKeyboard[1][0].CallbackData
	require.Equal(t, []usecase.Event{
		usecase.SuggestionChosen{Text: "¿Quién firma?"},
		usecase.KeyPressed{Key: "Enter"},
	}, c.callbackEvents(data))
	require.Nil(t, c.callbackEvents("sug:2:7"))
	require.Nil(t, c.callbackEvents("sug:2:x"))
	require.Nil(t, c.callbackEvents("sug:1"))
}

func TestSuggestionCallbacks_OldKeyboardIgnored(t *testing.T) {
	out := &fakeSender{}
	c := testChat(out)

	c.render(domain.ShowSuggestions([]string{"¿Qué es una estimación?", "¿Quién firma?"}, ""))
	old := out.sent[0].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)

	c.render(domain.ShowSuggestions([]string{"¿Cuál es el plazo de finiquito?", "¿Qué es una fianza?"}, ""))
	current := out.sent[1].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)

	require.Nil(t, c.callbackEvents(*old.InlineKeyboard[0][0].CallbackData))
	require.Equal(t, []usecase.Event{
		usecase.SuggestionChosen{Text: "¿Cuál es el plazo de finiquito?"},
		usecase.KeyPressed{Key: "Enter"},
	}, c.callbackEvents(*current.InlineKeyboard[0][0].CallbackData))
}

func TestRender_LongAnswerIsSplit(t *testing.T) {
	out := &fakeSender{}
	c := testChat(out)

	c.render(domain.AppendMessage("msg-3", domain.BotRole, domain.KindLoading, "💬 Cargando..."))
	long := strings.Repeat("á", 5000)
	c.render(domain.ReplaceMessage("msg-3", domain.KindAnswer, "<p>"+long+"</p>", ""))

	require.Len(t, out.requests, 1)
	del, ok := out.requests[0].(tgbotapi.DeleteMessageConfig)
	require.True(t, ok)
	require.Equal(t, 101, del.MessageID)

	require.Len(t, out.sent, 3)
	var got strings.Builder
	for _, ch := range out.sent[1:] {
		m, ok := ch.(tgbotapi.MessageConfig)
		require.True(t, ok)
		require.LessOrEqual(t, utf8.RuneCountInString(m.Text), maxMessageRunes)
		got.WriteString(m.Text)
	}
	require.Equal(t, long, got.String())
}

func TestRender_RejectedEditFallsBackToNewMessage(t *testing.T) {
	out := &fakeSender{rejectEdits: true}
	c := testChat(out)

	c.render(domain.AppendMessage("msg-3", domain.BotRole, domain.KindLoading, "💬 Cargando..."))
	c.render(domain.ReplaceMessage("msg-3", domain.KindAnswer, "<p>respuesta</p>", ""))

	require.Len(t, out.requests, 1)
	_, ok := out.requests[0].(tgbotapi.DeleteMessageConfig)
	require.True(t, ok)
	require.Len(t, out.sent, 2)
	require.Equal(t, "respuesta", out.sent[1].(tgbotapi.MessageConfig).Text)
}

func TestSplitText(t *testing.T) {
	require.Equal(t, []string{"abc"}, splitText("abc", 5))
	require.Equal(t, []string{"abcde", "fg"}, splitText("abcdefg", 5))
	require.Equal(t, []string{"abcd\n", "efgh"}, splitText("abcd\nefgh", 5))
}

type idleBackend struct{}

func (idleBackend) Ask(context.Context, domain.AskRequest) (domain.AskReply, error) {
	return domain.AskReply{}, errors.New("unused")
}

func (idleBackend) SuggestQuestions(context.Context, domain.Auditoria, domain.Ente) ([]string, error) {
	return nil, nil
}

func (idleBackend) Upload(context.Context, []domain.Document) (domain.UploadReply, error) {
	return domain.UploadReply{}, nil
}

func TestExpireIdle(t *testing.T) {
	m, err := usecase.NewMachine(markdown.NewRenderer(), hasher.New(), 5)
	require.NoError(t, err)
	broker := message_broker.NewChannelMessageBroker()
	defer broker.Close()
	sessions := usecase.NewSessionFactory(m, idleBackend{}, broker)

	b := &Bot{sessions: sessions, chats: make(map[int64]*chat)}
	for _, id := range []int64{1, 2} {
		c, err := startChat(context.Background(), &fakeSender{}, sessions, id)
		require.NoError(t, err)
		b.chats[id] = c
	}
	b.chats[1].activeMu.Lock()
	b.chats[1].active = time.Now().Add(-3 * time.Hour)
	b.chats[1].activeMu.Unlock()
	stale := b.chats[1]

	require.Equal(t, 1, b.expireIdle(time.Now()))
	require.NotContains(t, b.chats, int64(1))
	require.Contains(t, b.chats, int64(2))

	select {
	case <-stale.session.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expired session still running")
	}
	b.chats[2].stop()
}

func TestCallbackEvents_Selections(t *testing.T) {
	c := testChat(&fakeSender{})

	require.Equal(t, []usecase.Event{usecase.AuditoriaSelected{Value: "financiera"}}, c.callbackEvents("auditoria:financiera"))
	require.Equal(t, []usecase.Event{usecase.EnteSelected{Value: "autonomo"}}, c.callbackEvents("ente:autonomo"))
	require.Nil(t, c.callbackEvents("nada"))
	require.Nil(t, c.callbackEvents("color:rojo"))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "corto", truncate("corto", 60))
	require.Equal(t, "áéí…", truncate("áéíóú", 4))
}

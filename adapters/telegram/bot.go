package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/asistente-auditoria/widget/adapters/markdown"
	"github.com/asistente-auditoria/widget/domain"
	"github.com/asistente-auditoria/widget/usecase"
	"github.com/asistente-auditoria/widget/utils/log"
)

const (
	maxDocumentSize = 10 * 1024 * 1024
	// Telegram rejects longer message texts.
	maxMessageRunes = 4096

	chatIdleTTL   = 2 * time.Hour
	idleSweepTick = 10 * time.Minute
)

// sender is the part of tgbotapi.BotAPI the renderer needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot serves the guided conversation over Telegram, one session per chat.
type Bot struct {
	api      *tgbotapi.BotAPI
	sessions *usecase.SessionFactory
	http     *http.Client

	mu    sync.Mutex
	chats map[int64]*chat
}

func NewBot(token string, sessions *usecase.SessionFactory) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: invalid token: %w", err)
	}
	return &Bot{
		api:      api,
		sessions: sessions,
		http:     &http.Client{Timeout: 30 * time.Second},
		chats:    make(map[int64]*chat),
	}, nil
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	log.With(zap.String("bot", b.api.Self.UserName)).Info("Telegram polling started")

	sweep := time.NewTicker(idleSweepTick)
	defer sweep.Stop()

	for {
		select {
		case now := <-sweep.C:
			if n := b.expireIdle(now); n > 0 {
				log.With(zap.Int("chats", n)).Info("Expired idle Telegram conversations")
			}
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.mu.Lock()
			for id, c := range b.chats {
				c.stop()
				delete(b.chats, id)
			}
			b.mu.Unlock()
			log.With().Info("Telegram polling stopped")
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		cb := update.CallbackQuery
		_, _ = b.api.Request(tgbotapi.NewCallback(cb.ID, ""))
		if cb.Message == nil {
			return
		}
		c, err := b.chat(ctx, cb.Message.Chat.ID, false)
		if err != nil {
			return
		}
		for _, ev := range c.callbackEvents(cb.Data) {
			c.post(ev)
		}

	case update.Message != nil:
		msg := update.Message
		restart := msg.IsCommand() && msg.Command() == "start"
		c, err := b.chat(ctx, msg.Chat.ID, restart)
		if err != nil || restart {
			return
		}
		if msg.Document != nil {
			go b.handleDocument(c, msg.Document)
			return
		}
		if text := strings.TrimSpace(msg.Text); text != "" && !msg.IsCommand() {
			c.post(usecase.Submitted{Text: text})
		}
	}
}

func (b *Bot) handleDocument(c *chat, doc *tgbotapi.Document) {
	if doc.FileSize > maxDocumentSize {
		_, _ = c.out.Send(tgbotapi.NewMessage(c.id, "⚠️ El documento supera el tamaño máximo de 10 MB."))
		return
	}
	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		log.WithCtx(c.ctx).Warn("Failed to resolve document URL", zap.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	res, err := b.http.Do(req)
	if err != nil {
		log.WithCtx(c.ctx).Warn("Failed to download document", zap.Error(err))
		return
	}
	defer res.Body.Close()
	content, err := io.ReadAll(io.LimitReader(res.Body, maxDocumentSize))
	if err != nil {
		log.WithCtx(c.ctx).Warn("Failed to read document", zap.Error(err))
		return
	}
	c.post(usecase.UploadRequested{Files: []domain.Document{{Name: doc.FileName, Content: content}}})
}

// expireIdle stops conversations nobody touched for chatIdleTTL. A later
// message from the same chat starts a fresh one.
func (b *Bot) expireIdle(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for id, c := range b.chats {
		if now.Sub(c.lastActive()) < chatIdleTTL {
			continue
		}
		c.stop()
		delete(b.chats, id)
		n++
	}
	return n
}

// chat returns the conversation of a Telegram chat, starting one if needed.
// restart replaces any existing conversation, like a page reload.
func (b *Bot) chat(ctx context.Context, chatID int64, restart bool) (*chat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.chats[chatID]; ok {
		if !restart {
			return c, nil
		}
		c.stop()
		delete(b.chats, chatID)
	}

	c, err := startChat(ctx, b.api, b.sessions, chatID)
	if err != nil {
		log.With(zap.Int64("chat_id", chatID)).Error("Failed to start conversation", zap.Error(err))
		return nil, err
	}
	b.chats[chatID] = c
	return c, nil
}

// chat renders one session into one Telegram chat.
type chat struct {
	id      int64
	out     sender
	session *usecase.Session
	broker  domain.MessageBroker
	ctx     context.Context
	cancel  context.CancelFunc

	// bubble id -> telegram message id; only touched by the render loop
	sent   map[string]int
	groups map[string][]int

	// suggestMu guards the current suggestion batch. Buttons carry their
	// batch number so taps on older keyboards are ignored.
	suggestMu    sync.Mutex
	suggestBatch int
	suggestions  []string

	activeMu sync.Mutex
	active   time.Time
}

func startChat(parent context.Context, out sender, sessions *usecase.SessionFactory, chatID int64) (*chat, error) {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(log.WithSession(parent, id, "telegram"))

	session, err := sessions.New(id)
	if err != nil {
		cancel()
		return nil, err
	}
	broker := sessions.Broker()
	commands, err := broker.Subscribe(ctx, domain.CommandTopic, id)
	if err != nil {
		cancel()
		return nil, err
	}

	c := newChat(ctx, cancel, out, session, broker, chatID)
	go session.Run(ctx)
	go c.renderLoop(commands)
	return c, nil
}

func newChat(ctx context.Context, cancel context.CancelFunc, out sender, session *usecase.Session, broker domain.MessageBroker, chatID int64) *chat {
	return &chat{
		id:      chatID,
		out:     out,
		session: session,
		broker:  broker,
		ctx:     ctx,
		cancel:  cancel,
		sent:    make(map[string]int),
		groups:  make(map[string][]int),
		active:  time.Now(),
	}
}

func (c *chat) touch() {
	c.activeMu.Lock()
	c.active = time.Now()
	c.activeMu.Unlock()
}

func (c *chat) lastActive() time.Time {
	c.activeMu.Lock()
	defer c.activeMu.Unlock()
	return c.active
}

func (c *chat) post(ev usecase.Event) {
	c.touch()
	if err := c.session.Post(c.ctx, ev); err != nil {
		log.WithCtx(c.ctx).Debug("Event not delivered", zap.Error(err))
	}
}

func (c *chat) stop() {
	c.cancel()
	go func() {
		<-c.session.Done()
		c.broker.Unsubscribe(domain.CommandTopic, c.session.ID())
	}()
}

func (c *chat) renderLoop(commands <-chan domain.Message) {
	for {
		select {
		case msg, ok := <-commands:
			if !ok {
				return
			}
			var env domain.CommandEnvelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				log.WithCtx(c.ctx).Error("Bad command envelope", zap.Error(err))
				continue
			}
			for _, cmd := range env.Commands {
				c.render(cmd)
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *chat) render(cmd domain.Command) {
	switch cmd.Type {
	case domain.CmdAppendMessage:
		// Telegram already shows what the user typed or tapped.
		if cmd.Role == domain.UserRole {
			return
		}
		var markup any
		if len(cmd.Options) > 0 {
			markup = optionsKeyboard(cmd.Group, cmd.Options)
		}
		mid, ok := c.sendText(bubbleText(cmd), markup)
		if !ok {
			return
		}
		c.sent[cmd.MessageID] = mid
		if cmd.Group != "" {
			c.groups[cmd.Group] = append(c.groups[cmd.Group], mid)
		}

	case domain.CmdReplaceMessage:
		mid, ok := c.sent[cmd.MessageID]
		if !ok {
			return
		}
		text := bubbleText(cmd)
		if utf8.RuneCountInString(text) <= maxMessageRunes {
			_, err := c.out.Send(tgbotapi.NewEditMessageText(c.id, mid, text))
			if err == nil {
				return
			}
			log.WithCtx(c.ctx).Warn("Failed to edit message, sending a new one", zap.Error(err))
		}
		// The placeholder cannot hold the answer: drop it and send the
		// answer as new messages.
		delete(c.sent, cmd.MessageID)
		if _, err := c.out.Request(tgbotapi.NewDeleteMessage(c.id, mid)); err != nil {
			log.WithCtx(c.ctx).Warn("Failed to delete message", zap.Error(err))
		}
		if newID, ok := c.sendText(text, nil); ok {
			c.sent[cmd.MessageID] = newID
		}

	case domain.CmdRemoveMessage:
		if mid, ok := c.sent[cmd.MessageID]; ok {
			delete(c.sent, cmd.MessageID)
			if _, err := c.out.Request(tgbotapi.NewDeleteMessage(c.id, mid)); err != nil {
				log.WithCtx(c.ctx).Warn("Failed to delete message", zap.Error(err))
			}
		}

	case domain.CmdDisableOptions:
		empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
		for _, mid := range c.groups[cmd.Group] {
			_, _ = c.out.Request(tgbotapi.NewEditMessageReplyMarkup(c.id, mid, empty))
		}
		delete(c.groups, cmd.Group)

	case domain.CmdShowSuggestions:
		c.suggestMu.Lock()
		c.suggestBatch++
		batch := c.suggestBatch
		c.suggestions = append([]string(nil), cmd.Suggestions...)
		c.suggestMu.Unlock()
		if len(cmd.Suggestions) == 0 {
			return
		}
		m := tgbotapi.NewMessage(c.id, "Preguntas sugeridas:")
		m.ReplyMarkup = suggestionsKeyboard(batch, cmd.Suggestions)
		if _, err := c.out.Send(m); err != nil {
			log.WithCtx(c.ctx).Warn("Failed to send suggestions", zap.Error(err))
		}
	}
}

// sendText sends text split into messages Telegram accepts. markup goes on
// the last part, whose id is returned.
func (c *chat) sendText(text string, markup any) (int, bool) {
	parts := splitText(text, maxMessageRunes)
	last := 0
	for i, part := range parts {
		m := tgbotapi.NewMessage(c.id, part)
		if i == len(parts)-1 && markup != nil {
			m.ReplyMarkup = markup
		}
		sent, err := c.out.Send(m)
		if err != nil {
			log.WithCtx(c.ctx).Warn("Failed to send message", zap.Error(err))
			return 0, false
		}
		last = sent.MessageID
	}
	return last, true
}

// callbackEvents maps inline button data to session events.
func (c *chat) callbackEvents(data string) []usecase.Event {
	group, value, ok := strings.Cut(data, ":")
	if !ok {
		return nil
	}
	switch group {
	case domain.GroupAuditoria:
		return []usecase.Event{usecase.AuditoriaSelected{Value: value}}
	case domain.GroupEnte:
		return []usecase.Event{usecase.EnteSelected{Value: value}}
	case "sug":
		batchPart, indexPart, ok := strings.Cut(value, ":")
		if !ok {
			return nil
		}
		batch, err := strconv.Atoi(batchPart)
		if err != nil {
			return nil
		}
		i, err := strconv.Atoi(indexPart)
		if err != nil {
			return nil
		}
		c.suggestMu.Lock()
		defer c.suggestMu.Unlock()
		if batch != c.suggestBatch || i < 0 || i >= len(c.suggestions) {
			return nil
		}
		// Telegram has no input box to prefill, so a tap also sends.
		return []usecase.Event{
			usecase.SuggestionChosen{Text: c.suggestions[i]},
			usecase.KeyPressed{Key: "Enter"},
		}
	}
	return nil
}

func bubbleText(cmd domain.Command) string {
	text := markdown.PlainText(cmd.HTML)
	if cmd.Badge != "" {
		text += "\n\n🚩 " + cmd.Badge
	}
	if text == "" {
		text = "…"
	}
	return text
}

func optionsKeyboard(group string, options []domain.Option) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for i, o := range options {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(o.Label, group+":"+o.Value))
		if (i+1)%2 == 0 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func suggestionsKeyboard(batch int, items []string) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(items))
	for i, s := range items {
		data := "sug:" + strconv.Itoa(batch) + ":" + strconv.Itoa(i)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(truncate(s, 60), data),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// splitText cuts s into parts of at most n runes, preferring line breaks.
func splitText(s string, n int) []string {
	r := []rune(s)
	var parts []string
	for len(r) > n {
		cut := n
		for i := n; i > n/2; i-- {
			if r[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(r[:cut]))
		r = r[cut:]
	}
	return append(parts, string(r))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Package telegram implements chat.Transport on the Telegram Bot API.
//
// Telegram offers bots no way to list users or chats, so the transport keeps
// its own directory of every chat and sender it has seen and serves
// ListUsers and ListChannels from it.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"slack-logger/internal/chat"
)

// SubtypeNonText marks updates without text (photos, stickers, joins).
const SubtypeNonText = "non_text"

const maxMessageRunes = 4096

// Transport is a Telegram bot connection. Read is meant for a single goroutine.
type Transport struct {
	token    string
	endpoint string
	delay    time.Duration
	log      zerolog.Logger

	s       sender
	p       poller
	updates tgbotapi.UpdatesChannel

	mu     sync.RWMutex
	users  map[string]string
	chats  map[string]string
	selfID string
}

func New(token string, reconnectDelay time.Duration, log zerolog.Logger) *Transport {
	if reconnectDelay <= 0 {
		reconnectDelay = time.Second
	}
	return &Transport{
		token:    token,
		endpoint: tgbotapi.APIEndpoint,
		delay:    reconnectDelay,
		log:      log,
		users:    make(map[string]string),
		chats:    make(map[string]string),
	}
}

// fatal reports Bot API errors no retry can fix: a token Telegram rejects.
func fatal(err error) bool {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusNotFound
}

var _ chat.Transport = (*Transport)(nil)

// Connect authenticates the bot and starts long polling, retrying at a fixed
// delay until it succeeds, ctx ends or Telegram rejects the token. Polling
// errors after this point are retried inside the Bot API library.
func (t *Transport) Connect(ctx context.Context) error {
	if t.s == nil {
		var api *tgbotapi.BotAPI
		op := func() error {
			var err error
			api, err = tgbotapi.NewBotAPIWithClient(t.token, t.endpoint, &http.Client{})
			if err != nil && fatal(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		notify := func(err error, next time.Duration) {
			t.log.Warn().Err(err).Dur("retry_in", next).Msg("telegram connect failed, retrying")
		}
		b := backoff.WithContext(backoff.NewConstantBackOff(t.delay), ctx)
		if err := backoff.RetryNotify(op, b, notify); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("telegram connect: %w", err)
		}
		bot := botAPI{api: api}
		t.s, t.p = bot, bot

		t.mu.Lock()
		t.selfID = strconv.FormatInt(api.Self.ID, 10)
		t.mu.Unlock()
		t.log.Info().Str("self", api.Self.UserName).Msg("telegram bot authorized")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	t.updates = t.p.GetUpdatesChan(u)
	return nil
}

func (t *Transport) Read(ctx context.Context) (chat.Event, error) {
	if t.updates == nil {
		return chat.Event{}, chat.ErrNotConnected
	}
	for {
		select {
		case <-ctx.Done():
			return chat.Event{}, ctx.Err()
		case upd, ok := <-t.updates:
			if !ok {
				return chat.Event{}, chat.ErrNotConnected
			}
			msg := upd.Message
			if msg == nil || msg.Chat == nil {
				continue
			}
			t.remember(msg)
			return eventFromMessage(msg), nil
		}
	}
}

func eventFromMessage(msg *tgbotapi.Message) chat.Event {
	ev := chat.Event{
		Type:    chat.TypeMessage,
		Channel: strconv.FormatInt(msg.Chat.ID, 10),
		Text:    msg.Text,
		TS:      strconv.Itoa(msg.Date),
	}
	switch {
	case msg.From != nil:
		ev.User = strconv.FormatInt(msg.From.ID, 10)
	case msg.SenderChat != nil:
		ev.User = strconv.FormatInt(msg.SenderChat.ID, 10)
	}
	if ev.Text == "" {
		ev.Subtype = SubtypeNonText
	}
	return ev
}

func (t *Transport) remember(msg *tgbotapi.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chats[strconv.FormatInt(msg.Chat.ID, 10)] = chatName(msg.Chat)
	if msg.From != nil {
		t.users[strconv.FormatInt(msg.From.ID, 10)] = userName(msg.From)
	}
	if msg.SenderChat != nil {
		t.users[strconv.FormatInt(msg.SenderChat.ID, 10)] = chatName(msg.SenderChat)
	}
}

func chatName(c *tgbotapi.Chat) string {
	switch {
	case c.Title != "":
		return c.Title
	case c.UserName != "":
		return c.UserName
	default:
		return strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
}

func userName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (t *Transport) PostMessage(ctx context.Context, channel, text string) error {
	id, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", channel, err)
	}
	if t.s == nil {
		return chat.ErrNotConnected
	}
	msg := tgbotapi.NewMessage(id, truncate(text, maxMessageRunes))
	if _, err := t.s.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (t *Transport) PostFormattedMessage(ctx context.Context, channel string, attachments []chat.Attachment) error {
	id, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", channel, err)
	}
	if t.s == nil {
		return chat.ErrNotConnected
	}
	msg := tgbotapi.NewMessage(id, renderHTML(attachments))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.s.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// renderHTML renders attachments as Telegram HTML, keeping the whole message
// within Telegram's length limit by cutting attachment text.
func renderHTML(attachments []chat.Attachment) string {
	var head, body []string
	budget := maxMessageRunes
	for _, a := range attachments {
		var h []string
		if a.Pretext != "" {
			h = append(h, "<b>"+html.EscapeString(a.Pretext)+"</b>")
		}
		if a.Title != "" {
			h = append(h, "<b>"+html.EscapeString(a.Title)+"</b>")
		}
		head = append(head, strings.Join(h, "\n"))
		budget -= len([]rune(head[len(head)-1])) + 2
		body = append(body, a.Text)
	}

	var b strings.Builder
	for i := range attachments {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(head[i])
		if body[i] == "" {
			continue
		}
		if head[i] != "" {
			b.WriteString("\n")
		}
		text := body[i]
		escaped := html.EscapeString(text)
		for text != "" && len([]rune(escaped)) > budget {
			n := len([]rune(text))
			text = truncate(text, min(n*max(budget, 0)/len([]rune(escaped)), n-1))
			escaped = html.EscapeString(text)
		}
		budget -= len([]rune(escaped))
		b.WriteString(escaped)
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:max(n, 0)])
	}
	return string(r[:n-1]) + "…"
}

func (t *Transport) ListUsers(ctx context.Context) ([]chat.Entity, error) {
	return t.snapshot(t.users), nil
}

func (t *Transport) ListChannels(ctx context.Context) ([]chat.Entity, error) {
	return t.snapshot(t.chats), nil
}

func (t *Transport) snapshot(m map[string]string) []chat.Entity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]chat.Entity, 0, len(m))
	for id, name := range m {
		out = append(out, chat.Entity{ID: id, Name: name})
	}
	return out
}

func (t *Transport) SelfID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selfID
}

// Close stops long polling.
func (t *Transport) Close() error {
	if t.p != nil {
		t.p.StopReceivingUpdates()
	}
	return nil
}

// Package chat defines the capability interface the bot needs from a chat
// service and the event shape every transport produces.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TypeMessage is the event type of a chat message.
const TypeMessage = "message"

var ErrNotConnected = errors.New("chat transport not connected")

// Event is one decoded event from the chat stream. Fields follow the Slack
// RTM message shape; other transports fill the same fields.
type Event struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Channel string `json:"channel"`
	User    string `json:"user"`
	Text    string `json:"text"`
	TS      string `json:"ts"`
}

// IsPlainMessage reports whether e is a user message worth logging:
// a message event without subtype and with text.
func (e Event) IsPlainMessage() bool {
	return e.Type == TypeMessage && e.Subtype == "" && e.Text != ""
}

// Time parses TS ("1610000000.000200": seconds, optional fraction).
func (e Event) Time() (time.Time, error) {
	sec, frac, _ := strings.Cut(e.TS, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse ts %q: %w", e.TS, err)
	}
	var nsec int64
	if frac != "" {
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		nsec, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse ts %q: %w", e.TS, err)
		}
	}
	return time.Unix(s, nsec), nil
}

// DecodeEvent decodes one raw RTM frame.
func DecodeEvent(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

// Attachment is one block of a formatted reply.
type Attachment struct {
	Pretext string `json:"pretext,omitempty"`
	Title   string `json:"title,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Entity is a directory entry: a user or a channel.
type Entity struct {
	ID   string
	Name string
}

// Transport is everything the bot consumes from a chat service.
// Reconnection after a dropped stream is the transport's job: Read keeps
// blocking across reconnects and only returns an error it cannot recover from
// or ctx.Err().
type Transport interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (Event, error)
	PostMessage(ctx context.Context, channel, text string) error
	PostFormattedMessage(ctx context.Context, channel string, attachments []Attachment) error
	ListUsers(ctx context.Context) ([]Entity, error)
	ListChannels(ctx context.Context) ([]Entity, error)
}

// SelfIdentifier is implemented by transports that know the bot's own user id.
type SelfIdentifier interface {
	SelfID() string
}

// Package ingest drives the bot: it reads chat events one at a time, logs
// every plain message and answers log commands.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"slack-logger/internal/chat"
	"slack-logger/internal/directory"
	"slack-logger/internal/model"
)

// Persister stores one message; *storage.Store satisfies it.
type Persister interface {
	Persist(ctx context.Context, msg model.ChatMessage) (bool, error)
}

// Responder answers command text; *command.Interpreter satisfies it.
type Responder interface {
	Handle(ctx context.Context, scope, text string) []chat.Attachment
}

// Loop is the single ingestion goroutine bound to one chat transport.
type Loop struct {
	transport chat.Transport
	dir       *directory.Cache
	store     Persister
	responder Responder
	timeout   time.Duration
	log       zerolog.Logger
}

// New wires a loop. timeout bounds the work done for a single event;
// zero means no bound beyond ctx.
func New(transport chat.Transport, dir *directory.Cache, store Persister, responder Responder, timeout time.Duration, log zerolog.Logger) *Loop {
	if dir == nil {
		dir = directory.NewCache(transport)
	}
	return &Loop{
		transport: transport,
		dir:       dir,
		store:     store,
		responder: responder,
		timeout:   timeout,
		log:       log,
	}
}

// Run connects and processes events until ctx ends. It returns nil on
// cancellation and an error only when the transport cannot connect or
// its stream fails for good.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.transport.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if err := l.dir.Prime(ctx); err != nil {
		l.log.Warn().Err(err).Msg("directory prime failed, names will resolve on demand")
	}
	l.log.Info().
		Int("channels", l.dir.Len(directory.KindChannel)).
		Int("users", l.dir.Len(directory.KindUser)).
		Msg("ingestion started")

	for {
		ev, err := l.transport.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.log.Info().Msg("ingestion stopped")
				return nil
			}
			if errors.Is(err, chat.ErrNotConnected) {
				return err
			}
			l.log.Error().Err(err).Msg("read event failed")
			continue
		}
		l.Handle(ctx, ev)
	}
}

// Handle processes one event. Failures are logged and never returned.
func (l *Loop) Handle(ctx context.Context, ev chat.Event) {
	if !ev.IsPlainMessage() {
		return
	}
	if self, ok := l.transport.(chat.SelfIdentifier); ok && self.SelfID() != "" && ev.User == self.SelfID() {
		return
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	ts, err := ev.Time()
	if err != nil {
		l.log.Warn().Err(err).Str("channel", ev.Channel).Msg("bad message timestamp, using receive time")
		ts = time.Now()
	}
	msg := model.ChatMessage{
		ChannelID:   ev.Channel,
		UserID:      ev.User,
		ChannelName: l.resolve(ctx, directory.KindChannel, ev.Channel),
		UserName:    l.resolve(ctx, directory.KindUser, ev.User),
		Text:        ev.Text,
		Timestamp:   ts,
	}
	if _, err := l.store.Persist(ctx, msg); err != nil {
		l.log.Error().Err(err).Str("channel", msg.ChannelName).Msg("persist message failed")
	}

	reply := l.responder.Handle(ctx, ev.Channel, ev.Text)
	if len(reply) == 0 {
		return
	}
	if err := l.transport.PostFormattedMessage(ctx, ev.Channel, reply); err != nil {
		l.log.Error().Err(err).Str("channel", ev.Channel).Msg("post reply failed")
	}
}

func (l *Loop) resolve(ctx context.Context, kind directory.Kind, id string) string {
	name, err := l.dir.Resolve(ctx, kind, id)
	if err != nil {
		l.log.Warn().Err(err).Str("kind", kind.String()).Str("id", id).Msg("directory refresh failed")
	}
	return name
}

// Package slack implements chat.Transport on the Slack Web API and the RTM
// websocket stream.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"slack-logger/internal/chat"
)

const pageLimit = "200"

// Config holds Slack credentials and connection tuning.
type Config struct {
	Token          string
	APIURL         string
	ReconnectDelay time.Duration
	PostRate       float64
	PostBurst      int
}

// Client is a Slack bot connection. Read is meant for a single goroutine.
type Client struct {
	api     *resty.Client
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	delay   time.Duration
	log     zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	selfID string
}

func New(cfg Config, log zerolog.Logger) *Client {
	api := resty.New().
		SetBaseURL(cfg.APIURL).
		SetAuthToken(cfg.Token).
		SetTimeout(30 * time.Second)

	limit := rate.Inf
	if cfg.PostRate > 0 {
		limit = rate.Limit(cfg.PostRate)
	}
	burst := cfg.PostBurst
	if burst <= 0 {
		burst = 1
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = time.Second
	}

	return &Client{
		api:     api,
		dialer:  websocket.DefaultDialer,
		limiter: rate.NewLimiter(limit, burst),
		delay:   delay,
		log:     log,
	}
}

var _ chat.Transport = (*Client)(nil)

type apiError struct {
	Method string
	Code   string
}

func (e *apiError) Error() string { return fmt.Sprintf("slack %s: %s", e.Method, e.Code) }

// fatal reports errors no reconnect attempt can fix.
func fatal(err error) bool {
	var ae *apiError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.Code {
	case "invalid_auth", "not_authed", "account_inactive", "token_revoked", "missing_scope":
		return true
	}
	return false
}

type envelope struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error"`
	Metadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

func (c *Client) decode(method string, resp *resty.Response, out any) (envelope, error) {
	if resp.IsError() {
		return envelope{}, fmt.Errorf("slack %s: status %d", method, resp.StatusCode())
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return envelope{}, fmt.Errorf("slack %s: decode: %w", method, err)
	}
	if !env.OK {
		return env, &apiError{Method: method, Code: env.Error}
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return env, fmt.Errorf("slack %s: decode: %w", method, err)
		}
	}
	return env, nil
}

func (c *Client) get(ctx context.Context, method string, params map[string]string, out any) (envelope, error) {
	resp, err := c.api.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(method)
	if err != nil {
		return envelope{}, fmt.Errorf("slack %s: %w", method, err)
	}
	return c.decode(method, resp, out)
}

func (c *Client) post(ctx context.Context, method string, body any) error {
	resp, err := c.api.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetBody(body).
		Post(method)
	if err != nil {
		return fmt.Errorf("slack %s: %w", method, err)
	}
	_, err = c.decode(method, resp, nil)
	return err
}

type rtmConnectResponse struct {
	URL  string `json:"url"`
	Self struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"self"`
}

// Connect opens the RTM stream, retrying at a fixed delay until it succeeds,
// ctx ends or Slack rejects the credentials.
func (c *Client) Connect(ctx context.Context) error {
	op := func() error {
		err := c.dial(ctx)
		if err != nil && fatal(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		c.log.Warn().Err(err).Dur("retry_in", next).Msg("slack connect failed, retrying")
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(c.delay), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	var rc rtmConnectResponse
	if _, err := c.get(ctx, "rtm.connect", nil, &rc); err != nil {
		return err
	}
	conn, _, err := c.dialer.DialContext(ctx, rc.URL, nil)
	if err != nil {
		return fmt.Errorf("dial rtm: %w", err)
	}

	c.mu.Lock()
	old := c.conn
	c.conn = conn
	c.selfID = rc.Self.ID
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	c.log.Info().Str("self", rc.Self.Name).Str("self_id", rc.Self.ID).Msg("slack rtm connected")
	return nil
}

func (c *Client) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

// Read blocks until the next decodable event. A dropped stream is
// reconnected transparently; when Slack rejects the credentials on reconnect
// the error wraps chat.ErrNotConnected.
func (c *Client) Read(ctx context.Context) (chat.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return chat.Event{}, err
		}
		conn := c.current()
		if conn == nil {
			if err := c.Connect(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return chat.Event{}, ctxErr
				}
				return chat.Event{}, fmt.Errorf("%w: %w", chat.ErrNotConnected, err)
			}
			continue
		}

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		_, data, err := conn.ReadMessage()
		stop()
		if err != nil {
			c.drop(conn)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return chat.Event{}, ctxErr
			}
			c.log.Warn().Err(err).Msg("slack rtm connection error, reconnecting")
			continue
		}

		ev, err := chat.DecodeEvent(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("skipping undecodable rtm frame")
			continue
		}
		return ev, nil
	}
}

type postMessageRequest struct {
	Channel     string            `json:"channel"`
	Text        string            `json:"text,omitempty"`
	Attachments []chat.Attachment `json:"attachments,omitempty"`
	AsUser      bool              `json:"as_user"`
}

func (c *Client) PostMessage(ctx context.Context, channel, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.post(ctx, "chat.postMessage", postMessageRequest{Channel: channel, Text: text, AsUser: true})
}

func (c *Client) PostFormattedMessage(ctx context.Context, channel string, attachments []chat.Attachment) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.post(ctx, "chat.postMessage", postMessageRequest{Channel: channel, Attachments: attachments, AsUser: true})
}

type usersListResponse struct {
	Members []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"members"`
}

func (c *Client) ListUsers(ctx context.Context) ([]chat.Entity, error) {
	var out []chat.Entity
	err := c.paginate(ctx, "users.list", nil, func(body []byte) error {
		var r usersListResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return err
		}
		for _, m := range r.Members {
			out = append(out, chat.Entity{ID: m.ID, Name: m.Name})
		}
		return nil
	})
	return out, err
}

type conversationsListResponse struct {
	Channels []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"channels"`
}

func (c *Client) ListChannels(ctx context.Context) ([]chat.Entity, error) {
	var out []chat.Entity
	params := map[string]string{"types": "public_channel,private_channel"}
	err := c.paginate(ctx, "conversations.list", params, func(body []byte) error {
		var r conversationsListResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return err
		}
		for _, ch := range r.Channels {
			out = append(out, chat.Entity{ID: ch.ID, Name: ch.Name})
		}
		return nil
	})
	return out, err
}

// paginate follows response_metadata.next_cursor until it is empty.
func (c *Client) paginate(ctx context.Context, method string, base map[string]string, page func([]byte) error) error {
	cursor := ""
	for {
		params := map[string]string{"limit": pageLimit}
		for k, v := range base {
			params[k] = v
		}
		if cursor != "" {
			params["cursor"] = cursor
		}
		resp, err := c.api.R().SetContext(ctx).SetQueryParams(params).Get(method)
		if err != nil {
			return fmt.Errorf("slack %s: %w", method, err)
		}
		env, err := c.decode(method, resp, nil)
		if err != nil {
			return err
		}
		if err := page(resp.Body()); err != nil {
			return fmt.Errorf("slack %s: decode page: %w", method, err)
		}
		if cursor = env.Metadata.NextCursor; cursor == "" {
			return nil
		}
	}
}

// SelfID is the bot's own user id, known after Connect.
func (c *Client) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

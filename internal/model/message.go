package model

import (
	"fmt"
	"time"
)

// TimeLayout is the layout of Record.Time, e.g. 2021/01/07 06:13:20.
const TimeLayout = "2006/01/02 15:04:05"

// ChatMessage is a single plain user message received from the chat stream,
// with its channel and user already resolved to display names.
type ChatMessage struct {
	ChannelID   string
	UserID      string
	ChannelName string
	UserName    string
	Text        string
	Timestamp   time.Time
}

// Record is the structured form of a message written to the log sink and
// the search index.
type Record struct {
	Channel string `json:"channel"`
	User    string `json:"user"`
	Text    string `json:"text"`
	Time    string `json:"time"`
}

// NewRecord converts m to a Record with its time rendered in loc.
// A nil loc keeps the timestamp's own location.
func NewRecord(m ChatMessage, loc *time.Location) Record {
	ts := m.Timestamp
	if loc != nil {
		ts = ts.In(loc)
	}
	return Record{
		Channel: m.ChannelName,
		User:    m.UserName,
		Text:    m.Text,
		Time:    ts.Format(TimeLayout),
	}
}

// Line renders the record the way search results are shown in chat.
func (r Record) Line() string {
	return fmt.Sprintf("%s %s@%s: %s", r.Time, r.User, r.Channel, r.Text)
}

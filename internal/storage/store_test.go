package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-logger/internal/model"
)

type fakeIndexer struct {
	records []model.Record
	err     error
	failAt  int
}

func (f *fakeIndexer) Index(ctx context.Context, rec model.Record) (bool, error) {
	if f.err != nil && (f.failAt < 0 || len(f.records) == f.failAt) {
		return false, f.err
	}
	f.records = append(f.records, rec)
	return true, nil
}

type failingRecorder struct{ err error }

func (f failingRecorder) Append(model.Record) error     { return f.err }
func (f failingRecorder) Load() ([]model.Record, error) { return nil, f.err }

func testMessage() model.ChatMessage {
	return model.ChatMessage{
		ChannelID:   "C1",
		UserID:      "U1",
		ChannelName: "general",
		UserName:    "alice",
		Text:        "hello 월드",
		Timestamp:   time.Unix(1610000000, 0),
	}
}

func TestStorePersist_WritesBothSinks(t *testing.T) {
	rec, err := NewFileRecorder(filepath.Join(t.TempDir(), "slack-log"))
	require.NoError(t, err)
	idx := &fakeIndexer{}
	s := NewStore(rec, idx, time.UTC, zerolog.Nop())

	created, err := s.Persist(context.Background(), testMessage())
	require.NoError(t, err)
	assert.True(t, created)

	want := model.Record{Channel: "general", User: "alice", Text: "hello 월드", Time: "2021/01/07 06:13:20"}
	logged, err := rec.Load()
	require.NoError(t, err)
	assert.Equal(t, []model.Record{want}, logged)
	assert.Equal(t, []model.Record{want}, idx.records)
}

func TestStorePersist_IndexFailureKeepsLog(t *testing.T) {
	rec, err := NewFileRecorder(filepath.Join(t.TempDir(), "slack-log"))
	require.NoError(t, err)
	boom := errors.New("es down")
	s := NewStore(rec, &fakeIndexer{err: boom, failAt: -1}, time.UTC, zerolog.Nop())

	created, err := s.Persist(context.Background(), testMessage())
	require.ErrorIs(t, err, boom)
	assert.False(t, created)

	logged, err := rec.Load()
	require.NoError(t, err)
	assert.Len(t, logged, 1)
}

func TestStorePersist_LogFailureStillIndexes(t *testing.T) {
	boom := errors.New("disk full")
	idx := &fakeIndexer{}
	s := NewStore(failingRecorder{err: boom}, idx, time.UTC, zerolog.Nop())

	created, err := s.Persist(context.Background(), testMessage())
	require.ErrorIs(t, err, boom)
	assert.True(t, created)
	assert.Len(t, idx.records, 1)
}

func TestStoreReindex(t *testing.T) {
	recs := []model.Record{{Text: "a"}, {Text: "b"}, {Text: "c"}}

	idx := &fakeIndexer{}
	n, err := NewStore(nil, idx, time.UTC, zerolog.Nop()).Reindex(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	boom := errors.New("boom")
	idx = &fakeIndexer{err: boom, failAt: 1}
	n, err = NewStore(nil, idx, time.UTC, zerolog.Nop()).Reindex(context.Background(), recs)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)

	_, err = NewStore(nil, nil, time.UTC, zerolog.Nop()).Reindex(context.Background(), recs)
	require.Error(t, err)
}

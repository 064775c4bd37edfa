package search

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slack-logger/internal/config"
)

func TestOpen(t *testing.T) {
	be, closeFn, err := Open(&config.Config{SearchBackend: config.BackendElasticsearch, ESURL: "http://localhost:9200", ESIndex: "slack", ESType: "log"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &Elasticsearch{}, be)
	assert.NoError(t, closeFn())

	be, closeFn, err = Open(&config.Config{SearchBackend: config.BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "i.db")}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, be)
	assert.NoError(t, closeFn())

	_, _, err = Open(&config.Config{SearchBackend: "solr"}, zerolog.Nop())
	assert.Error(t, err)
}

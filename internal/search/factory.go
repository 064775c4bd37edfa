package search

import (
	"fmt"

	"github.com/rs/zerolog"

	"slack-logger/internal/config"
)

// Open builds the backend selected by cfg. The returned close func releases
// it and is never nil.
func Open(cfg *config.Config, log zerolog.Logger) (Backend, func() error, error) {
	switch cfg.SearchBackend {
	case config.BackendElasticsearch:
		es := NewElasticsearch(ElasticsearchConfig{
			URL:     cfg.ESURL,
			Index:   cfg.ESIndex,
			Type:    cfg.ESType,
			Timeout: cfg.SearchTimeout,
		}, log)
		return es, func() error { return nil }, nil
	case config.BackendSQLite:
		loc, err := cfg.Location()
		if err != nil {
			return nil, nil, err
		}
		s, err := NewSQLite(cfg.SQLitePath, loc, log)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown search backend: %s", cfg.SearchBackend)
	}
}

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slack-logger/internal/model"
)

// ElasticsearchConfig addresses one index/type pair.
type ElasticsearchConfig struct {
	URL     string
	Index   string
	Type    string
	Timeout time.Duration
}

// Elasticsearch talks to the Elasticsearch REST API.
type Elasticsearch struct {
	client *resty.Client
	index  string
	typ    string
	log    zerolog.Logger
}

func NewElasticsearch(cfg ElasticsearchConfig, log zerolog.Logger) *Elasticsearch {
	c := resty.New().
		SetBaseURL(cfg.URL).
		SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		c.SetTimeout(cfg.Timeout)
	}
	return &Elasticsearch{client: c, index: cfg.Index, typ: cfg.Type, log: log}
}

type indexResponse struct {
	Created *bool  `json:"created"`
	Result  string `json:"result"`
}

type searchResponse struct {
	Hits *struct {
		Hits *[]struct {
			Sort   []float64    `json:"sort"`
			Source model.Record `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (es *Elasticsearch) docPath(parts ...string) string {
	p := "/" + url.PathEscape(es.index) + "/" + url.PathEscape(es.typ)
	for _, s := range parts {
		p += "/" + s
	}
	return p
}

// Index stores rec under a fresh document id and reports whether
// Elasticsearch created it.
func (es *Elasticsearch) Index(ctx context.Context, rec model.Record) (bool, error) {
	id := uuid.NewString()
	resp, err := es.client.R().
		SetContext(ctx).
		SetBody(rec).
		Put(es.docPath(id))
	if err != nil {
		return false, fmt.Errorf("elasticsearch index request: %w", err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("elasticsearch index status %d: %s", resp.StatusCode(), resp.String())
	}

	var ir indexResponse
	if err := json.Unmarshal(resp.Body(), &ir); err != nil {
		return false, fmt.Errorf("decode index response: %w", err)
	}
	created := ir.Result == "created"
	if ir.Created != nil {
		created = *ir.Created
	}
	es.log.Debug().Str("id", id).Bool("created", created).Msg("record indexed")
	return created, nil
}

// Search posts q.Body() to the _search endpoint.
func (es *Elasticsearch) Search(ctx context.Context, q Query) ([]Hit, error) {
	resp, err := es.client.R().
		SetContext(ctx).
		SetBody(q.Body()).
		Post(es.docPath("_search"))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("elasticsearch search status %d: %s", resp.StatusCode(), resp.String())
	}

	var sr searchResponse
	if err := json.Unmarshal(resp.Body(), &sr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if sr.Hits == nil || sr.Hits.Hits == nil {
		return nil, fmt.Errorf("%w: missing hits.hits", ErrMalformedResponse)
	}

	raw := *sr.Hits.Hits
	hits := make([]Hit, 0, len(raw))
	for i, h := range raw {
		if len(h.Sort) == 0 {
			return nil, fmt.Errorf("%w: hit %d has no sort value", ErrMalformedResponse, i)
		}
		hits = append(hits, Hit{SortKey: h.Sort[0], Record: h.Source})
	}
	return hits, nil
}

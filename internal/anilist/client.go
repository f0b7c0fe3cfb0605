package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "airabot/pkg/logx"
)

const defaultEndpoint = "https://graphql.anilist.co"

// ErrNotFound means the query succeeded but matched no series.
var ErrNotFound = errors.New("anilist: not found")

type Config struct {
	Endpoint string
	// RatePerSec throttles outbound requests. AniList allows ~90/min;
	// we default well below that.
	RatePerSec float64
	Timeout    time.Duration
}

type Client struct {
	endpoint string
	hc       *http.Client
	limiter  *rate.Limiter
	log      logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		hc:       &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		log:      log.With(logx.String("comp", "anilist")),
	}
}

const searchQuery = `query ($search: String) {
  Page(page: 1, perPage: 5) {
    media(search: $search, type: ANIME) {
      id
      title { romaji english native }
      coverImage { medium }
      episodes
      status
      season
      seasonYear
      genres
      averageScore
      popularity
      nextAiringEpisode { episode airingAt timeUntilAiring }
      description
    }
  }
}`

const detailsQuery = `query ($id: Int) {
  Media(id: $id, type: ANIME) {
    id
    title { romaji english native }
    coverImage { medium large }
    episodes
    status
    season
    seasonYear
    genres
    averageScore
    popularity
    nextAiringEpisode { episode airingAt timeUntilAiring }
    description
    studios(isMain: true) { nodes { name } }
  }
}`

// Search returns up to 5 series matching the free-text query,
// in upstream relevance order. Returns ErrNotFound on zero matches.
func (c *Client) Search(ctx context.Context, search string) ([]Media, error) {
	var out struct {
		Page struct {
			Media []Media `json:"media"`
		} `json:"Page"`
	}
	if err := c.do(ctx, searchQuery, map[string]any{"search": search}, &out); err != nil {
		return nil, err
	}
	if len(out.Page.Media) == 0 {
		return nil, ErrNotFound
	}
	return out.Page.Media, nil
}

// Details fetches one series by its AniList id.
func (c *Client) Details(ctx context.Context, animeID int) (*Media, error) {
	var out struct {
		Media *Media `json:"Media"`
	}
	if err := c.do(ctx, detailsQuery, map[string]any{"id": animeID}, &out); err != nil {
		return nil, err
	}
	if out.Media == nil {
		return nil, ErrNotFound
	}
	return out.Media, nil
}

func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("anilist: request: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug("graphql request",
		logx.Int("status", resp.StatusCode),
		logx.Duration("took", time.Since(started)))

	// GraphQL errors arrive with a 4xx status and an errors array.
	// A 404-shaped "Not Found" for unknown ids maps to ErrNotFound.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("anilist: read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("anilist: unexpected status %d", resp.StatusCode)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("anilist: decode envelope: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("anilist: graphql: %s", envelope.Errors[0].Message)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return ErrNotFound
	}
	return json.Unmarshal(envelope.Data, out)
}

package anilist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	logx "airabot/pkg/logx"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{Endpoint: srv.URL, RatePerSec: 1000}, logx.Nop())
}

func TestSearchDecodesMedia(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Variables["search"] != "frieren" {
			t.Fatalf("unexpected search variable: %v", req.Variables)
		}
		_, _ = w.Write([]byte(`{"data":{"Page":{"media":[
			{"id":154587,"title":{"romaji":"Sousou no Frieren","english":"Frieren: Beyond Journey's End"},
			 "episodes":28,"status":"FINISHED","averageScore":89},
			{"id":1,"title":{"romaji":"Other"},"episodes":null,"status":"RELEASING",
			 "nextAiringEpisode":{"episode":12,"airingAt":1700000000,"timeUntilAiring":3600}}
		]}}}`))
	})

	got, err := c.Search(context.Background(), "frieren")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ID != 154587 || got[0].Episodes == nil || *got[0].Episodes != 28 {
		t.Fatalf("unexpected first result: %+v", got[0])
	}
	if got[1].Episodes != nil {
		t.Fatalf("null episodes should decode to nil")
	}
	if got[1].NextAiringEpisode == nil || got[1].NextAiringEpisode.Episode != 12 {
		t.Fatalf("unexpected airing info: %+v", got[1].NextAiringEpisode)
	}
}

func TestSearchNoMatches(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"Page":{"media":[]}}}`))
	})
	_, err := c.Search(context.Background(), "zzz")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDetailsGraphQLError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"data":{"Media":null},"errors":[{"message":"Not Found.","status":404}]}`))
	})
	_, err := c.Details(context.Background(), 999999999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDetailsDecodesStudios(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"Media":{
			"id":5,"title":{"romaji":"X"},"status":"RELEASING",
			"studios":{"nodes":[{"name":"Madhouse"}]}}}}`))
	})
	m, err := c.Details(context.Background(), 5)
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if m.Studios == nil || len(m.Studios.Nodes) != 1 || m.Studios.Nodes[0].Name != "Madhouse" {
		t.Fatalf("unexpected studios: %+v", m.Studios)
	}
}

func TestFormatTimeUntil(t *testing.T) {
	cases := []struct {
		seconds int64
		want    string
	}{
		{-5, "already aired"},
		{30, "less than a minute"},
		{90, "1 minute"},
		{3600, "1 hour"},
		{90000, "1 day, 1 hour"},
		{2 * 86400, "2 days"},
		{86400 + 120, "1 day"}, // minutes suppressed past a day
	}
	for _, tc := range cases {
		if got := FormatTimeUntil(tc.seconds); got != tc.want {
			t.Errorf("FormatTimeUntil(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestTitleDisplayFallback(t *testing.T) {
	if got := (Title{Romaji: "R", English: "E"}).Display(); got != "R" {
		t.Fatalf("expected romaji, got %q", got)
	}
	if got := (Title{English: "E"}).Display(); got != "E" {
		t.Fatalf("expected english fallback, got %q", got)
	}
	if got := (Title{Native: "N"}).Display(); got != "N" {
		t.Fatalf("expected native fallback, got %q", got)
	}
}

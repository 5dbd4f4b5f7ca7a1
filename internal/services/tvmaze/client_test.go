package tvmaze

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/guardarr/internal/config"
	"github.com/amaumene/guardarr/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewClient(&config.Config{
		TVMazeBase:    srv.URL,
		TVMazeTimeout: 2 * time.Second,
	}, logger)
}

func TestEpisodeAirDateViaTVDBLookup(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/lookup/shows":
			if r.URL.Query().Get("thetvdb") != "1234" {
				t.Errorf("unexpected lookup query %q", r.URL.RawQuery)
			}
			w.Write([]byte(`{"id": 42}`))
		case "/shows/42/episodebynumber":
			w.Write([]byte(`{"airstamp": "2024-06-10T02:00:00+00:00"}`))
		default:
			http.NotFound(w, r)
		}
	})

	series := &models.Series{ID: 7, TVDBID: 1234}
	air, resolved := c.EpisodeAirDate(context.Background(), series, 1, 3)
	if !resolved {
		t.Fatalf("expected the show to resolve")
	}
	if air == nil || !air.Equal(time.Date(2024, 6, 10, 2, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected airstamp %v", air)
	}

	// A second lookup reuses the memoised show id.
	c.EpisodeAirDate(context.Background(), series, 1, 4)
	lookups := 0
	for _, p := range paths {
		if p == "/lookup/shows" {
			lookups++
		}
	}
	if lookups != 1 {
		t.Errorf("expected one show lookup, got %d", lookups)
	}
}

func TestEpisodeAirDateFallsBackToTitleSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/lookup/shows":
			http.NotFound(w, r)
		case "/singlesearch/shows":
			if r.URL.Query().Get("q") != "Some Show" {
				t.Errorf("unexpected search query %q", r.URL.RawQuery)
			}
			w.Write([]byte(`{"id": 99}`))
		case "/shows/99/episodebynumber":
			w.Write([]byte(`{"airstamp": ""}`))
		default:
			http.NotFound(w, r)
		}
	})

	series := &models.Series{ID: 7, TVDBID: 1234, IMDBID: "tt555", Title: "Some Show"}
	air, resolved := c.EpisodeAirDate(context.Background(), series, 2, 1)
	if !resolved {
		t.Fatalf("expected resolution via title search")
	}
	if air != nil {
		t.Errorf("expected a nil airstamp for an empty value, got %v", air)
	}
}

func TestEpisodeAirDateUnresolvedShow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	if _, resolved := c.EpisodeAirDate(context.Background(), &models.Series{ID: 7, Title: "Nope"}, 1, 1); resolved {
		t.Errorf("expected resolved=false when nothing matches")
	}
	if _, resolved := c.EpisodeAirDate(context.Background(), nil, 1, 1); resolved {
		t.Errorf("expected resolved=false for a nil series")
	}
}

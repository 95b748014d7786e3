package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/openbroker/internal/broker"
	"stealthcompany.com/openbroker/internal/store"
)

const feedLicense = "https://creativecommons.org/licenses/by/4.0/"

// FeedResponse is one RPDE page of the republished feed.
type FeedResponse struct {
	Next    string            `json:"next"`
	Items   []broker.FeedItem `json:"items"`
	License string            `json:"license"`
}

// OpportunityFeedHandler serves the broker's own RPDE feed. Children are
// only visible once their parent has been ingested; each item is merged
// with its parent document. An empty page repeats the caller's cursor so
// pollers hold their position at the feed front.
func (s *Server) OpportunityFeedHandler(w http.ResponseWriter, r *http.Request) {
	cursor, err := parseCursor(r)
	if err != nil {
		log.Warn().
			Err(err).
			Str("query", r.URL.RawQuery).
			Msg("Rejecting feed request with malformed cursor")
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	items, next, err := s.broker.FeedPage(r.Context(), cursor, s.cfg.FeedPageSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query feed page")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to query feed page"})
		return
	}
	if items == nil {
		items = []broker.FeedItem{}
	}

	writeJSON(w, http.StatusOK, FeedResponse{
		Next:    feedPageURL(r, next),
		Items:   items,
		License: feedLicense,
	})
}

func parseCursor(r *http.Request) (*store.Cursor, error) {
	afterTimestamp := r.URL.Query().Get("afterTimestamp")
	afterID := r.URL.Query().Get("afterId")
	if afterTimestamp == "" && afterID == "" {
		return nil, nil
	}
	ts, err := strconv.ParseInt(afterTimestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid afterTimestamp %q", afterTimestamp)
	}
	return &store.Cursor{AfterTimestamp: ts, AfterID: afterID}, nil
}

// feedPageURL builds the absolute next URL on the same authority the page
// was requested from, as the RPDE contract requires.
func feedPageURL(r *http.Request, cursor *store.Cursor) string {
	base := "http://" + r.Host + r.URL.Path
	if r.TLS != nil {
		base = "https://" + r.Host + r.URL.Path
	}
	if cursor == nil {
		return base
	}
	return fmt.Sprintf("%s?afterTimestamp=%d&afterId=%s",
		base, cursor.AfterTimestamp, url.QueryEscape(cursor.AfterID))
}

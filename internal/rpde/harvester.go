package rpde

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/openbroker/internal/metrics"
)

// ErrProtocolViolation indicates the upstream served a page that breaks the
// RPDE contract (missing next URL, or a next URL pointing at a different
// authority). The affected feed's loop stops; other feeds are unaffected.
var ErrProtocolViolation = errors.New("rpde protocol violation")

// PageHandler processes one harvested page. Items must be handled in feed
// order before the handler returns; the harvester does not fetch the next
// page until the handler has completed.
type PageHandler func(ctx context.Context, page *Page, pageNumber int) error

// Harvester follows a feed's next chain indefinitely, delivering each page
// to its handler.
type Harvester struct {
	FeedName   string
	Handler    PageHandler
	Client     *http.Client
	AuthHeader string // header name for feed authentication, optional
	AuthValue  string
	PageDelay  time.Duration // pause after a processed page
	RetryDelay time.Duration // pause before retrying a failed fetch
}

// NewHarvester creates a harvester with default pacing.
func NewHarvester(feedName string, handler PageHandler) *Harvester {
	return &Harvester{
		FeedName:   feedName,
		Handler:    handler,
		Client:     &http.Client{Timeout: 30 * time.Second},
		PageDelay:  200 * time.Millisecond,
		RetryDelay: 5 * time.Second,
	}
}

// Run fetches pages starting at startURL until the feed is retired (404),
// the context is cancelled, or a protocol violation is detected. Transient
// fetch failures are retried indefinitely against the same URL.
func (h *Harvester) Run(ctx context.Context, startURL string) error {
	pageURL := startURL
	pageNumber := 0

	for {
		page, status, err := h.fetchPage(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().
				Err(err).
				Str("feed", h.FeedName).
				Str("url", pageURL).
				Msg("Feed fetch failed, retrying")
			metrics.RecordHarvestPage(h.FeedName, "error")
			if err := sleepCtx(ctx, h.RetryDelay); err != nil {
				return err
			}
			continue
		}

		if status == http.StatusNotFound {
			log.Info().
				Str("feed", h.FeedName).
				Str("url", pageURL).
				Msg("Feed returned 404, stopping harvest permanently")
			metrics.RecordHarvestPage(h.FeedName, "retired")
			return nil
		}

		if status != http.StatusOK {
			log.Warn().
				Int("status", status).
				Str("feed", h.FeedName).
				Str("url", pageURL).
				Msg("Feed returned unexpected status, retrying")
			metrics.RecordHarvestPage(h.FeedName, "error")
			if err := sleepCtx(ctx, h.RetryDelay); err != nil {
				return err
			}
			continue
		}

		if err := validateNextURL(pageURL, page.Next); err != nil {
			log.Error().
				Err(err).
				Str("feed", h.FeedName).
				Str("url", pageURL).
				Msg("Feed page failed validation, aborting harvest")
			metrics.RecordHarvestPage(h.FeedName, "violation")
			return err
		}

		metrics.RecordHarvestPage(h.FeedName, "success")
		metrics.RecordFeedItems(h.FeedName, len(page.Items))

		if err := h.Handler(ctx, page, pageNumber); err != nil {
			return fmt.Errorf("feed %s: page handler failed: %w", h.FeedName, err)
		}
		pageNumber++
		pageURL = page.Next

		if err := sleepCtx(ctx, h.PageDelay); err != nil {
			return err
		}
	}
}

func (h *Harvester) fetchPage(ctx context.Context, pageURL string) (*Page, int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/vnd.openactive.booking+json; version=1")
	req.Header.Set("Cache-Control", "max-age=0")
	if h.AuthHeader != "" {
		req.Header.Set(h.AuthHeader, h.AuthValue)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch feed page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, 0, fmt.Errorf("failed to decode feed page: %w", err)
	}
	return &page, resp.StatusCode, nil
}

// validateNextURL enforces that a page carries a next URL and that it stays
// on the same authority as the page just fetched.
func validateNextURL(pageURL, nextURL string) error {
	if nextURL == "" {
		return fmt.Errorf("%w: page has no next URL", ErrProtocolViolation)
	}
	current, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("%w: unparseable page URL %q", ErrProtocolViolation, pageURL)
	}
	next, err := url.Parse(nextURL)
	if err != nil {
		return fmt.Errorf("%w: unparseable next URL %q", ErrProtocolViolation, nextURL)
	}
	if next.Scheme != current.Scheme || next.Host != current.Host {
		return fmt.Errorf("%w: next URL authority %s://%s does not match feed authority %s://%s",
			ErrProtocolViolation, next.Scheme, next.Host, current.Scheme, current.Host)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

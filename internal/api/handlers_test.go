package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stealthcompany.com/openbroker/internal/broker"
	"stealthcompany.com/openbroker/internal/config"
	"stealthcompany.com/openbroker/internal/rpde"
	"stealthcompany.com/openbroker/internal/store"
)

func testSetup(t *testing.T) (*broker.Broker, *httptest.Server, func(time.Duration)) {
	t.Helper()

	cfg := &config.Config{
		FeedPageSize:     500,
		BookableLeadTime: 24 * time.Hour,
		CriteriaLeadTime: 2 * time.Hour,
		BookingChannel:   "https://openactive.io/OpenBookingPrepayment",
	}

	b := broker.New(cfg, store.NewMemoryStore())
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	b.Clock = func() time.Time { return current }
	advance := func(d time.Duration) { current = current.Add(d) }

	server := httptest.NewServer(NewServer(cfg, b).SetupRoutes())
	t.Cleanup(server.Close)
	return b, server, advance
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if len(body) > 0 && out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("GET %s: failed to decode %q: %v", url, body, err)
		}
	}
	return resp.StatusCode
}

func ingestItem(t *testing.T, handler rpde.PageHandler, itemID string, data map[string]interface{}) {
	t.Helper()
	item := rpde.Item{
		ID:       json.RawMessage(fmt.Sprintf("%q", itemID)),
		Modified: json.RawMessage(`"1"`),
		State:    rpde.StateUpdated,
		Data:     data,
	}
	page := &rpde.Page{Next: "http://upstream/feed", Items: []rpde.Item{item}}
	if err := handler(context.Background(), page, 0); err != nil {
		t.Fatalf("Ingestion failed: %v", err)
	}
}

// Harvest one SessionSeries and one ScheduledSession referencing it: the
// feed must return exactly one item with the parent document injected.
func TestOpportunityFeedScenario(t *testing.T) {
	b, server, advance := testSetup(t)
	start := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	ingestItem(t, b.ParentPageHandler("parent-0"), "p1", map[string]interface{}{
		"@type": "SessionSeries",
		"@id":   "P1",
		"name":  "Morning Yoga",
	})
	ingestItem(t, b.ChildPageHandler("child-0"), "c1", map[string]interface{}{
		"@type":      "ScheduledSession",
		"@id":        "C1",
		"superEvent": "P1",
		"startDate":  start.Format(time.RFC3339),
	})
	advance(2 * time.Second)

	var feedPage FeedResponse
	if status := getJSON(t, server.URL+"/feeds/opportunities", &feedPage); status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if len(feedPage.Items) != 1 {
		t.Fatalf("Expected exactly one item, got %d", len(feedPage.Items))
	}

	item := feedPage.Items[0]
	if item.ID != "C1" {
		t.Errorf("Expected item C1, got %s", item.ID)
	}
	super, ok := item.Data["superEvent"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected injected superEvent, got %v", item.Data["superEvent"])
	}
	if super["name"] != "Morning Yoga" {
		t.Errorf("Expected P1's document injected, got %+v", super)
	}
	if feedPage.License == "" {
		t.Error("Expected license on feed page")
	}

	// Following next reaches the feed front: empty items, cursor unchanged.
	var frontPage FeedResponse
	if status := getJSON(t, feedPage.Next, &frontPage); status != http.StatusOK {
		t.Fatalf("Expected 200 at feed front, got %d", status)
	}
	if len(frontPage.Items) != 0 {
		t.Errorf("Expected empty page at feed front, got %d items", len(frontPage.Items))
	}
	if frontPage.Next != feedPage.Next {
		t.Errorf("Expected cursor held at feed front: %s vs %s", frontPage.Next, feedPage.Next)
	}
}

func TestOpportunityFeedRejectsMalformedCursor(t *testing.T) {
	_, server, _ := testSetup(t)

	status := getJSON(t, server.URL+"/feeds/opportunities?afterTimestamp=nonsense&afterId=x", nil)
	if status != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed cursor, got %d", status)
	}
}

func TestGetRandomOpportunity(t *testing.T) {
	b, server, _ := testSetup(t)

	status := getJSON(t, server.URL+"/get-random-opportunity?type=ScheduledSession", nil)
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 before anything is bookable, got %d", status)
	}

	b.Bookable.Add("ScheduledSession", "https://example.com/session/1")

	var body map[string]string
	status = getJSON(t, server.URL+"/get-random-opportunity?type=ScheduledSession", &body)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 once bookable, got %d", status)
	}
	if body["@type"] != "ScheduledSession" || body["@id"] != "https://example.com/session/1" {
		t.Errorf("Unexpected body %v", body)
	}

	status = getJSON(t, server.URL+"/get-random-opportunity?type=Slot", nil)
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for a type with no bookable ids, got %d", status)
	}
}

func TestGetCachedOpportunityServesFromCache(t *testing.T) {
	b, server, _ := testSetup(t)
	start := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	ingestItem(t, b.ParentPageHandler("parent-0"), "p1", map[string]interface{}{
		"@type": "SessionSeries",
		"@id":   "https://example.com/series/1",
	})
	ingestItem(t, b.ChildPageHandler("child-0"), "c1", map[string]interface{}{
		"@type":      "ScheduledSession",
		"@id":        "https://example.com/session/1",
		"superEvent": "https://example.com/series/1",
		"startDate":  start.Format(time.RFC3339),
	})

	var body map[string]interface{}
	status := getJSON(t, server.URL+"/get-cached-opportunity/https://example.com/session/1", &body)
	if status != http.StatusOK {
		t.Fatalf("Expected 200 from cache, got %d", status)
	}
	if body["id"] != "https://example.com/session/1" {
		t.Errorf("Unexpected cached payload %v", body)
	}
}

func TestGetOpportunityWaitsForFeedObservation(t *testing.T) {
	b, server, _ := testSetup(t)

	type result struct {
		status int
		body   map[string]interface{}
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Get(server.URL + "/get-opportunity/https://example.com/session/9")
		if err != nil {
			done <- result{status: -1}
			return
		}
		defer resp.Body.Close()
		var body map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&body)
		done <- result{status: resp.StatusCode, body: body}
	}()

	// Wait for the request to park its waiter, then observe the item.
	waitFor(t, func() bool { return b.OpportunityWaiters.Has("https://example.com/session/9") })
	b.OpportunityWaiters.Fulfill("https://example.com/session/9", map[string]interface{}{
		"id":    "https://example.com/session/9",
		"state": "updated",
	})

	r := <-done
	if r.status != http.StatusOK {
		t.Fatalf("Expected 200 after fulfillment, got %d", r.status)
	}
	if r.body["id"] != "https://example.com/session/9" {
		t.Errorf("Unexpected payload %v", r.body)
	}
}

func TestGetOpportunitySupersededRequestEndsEmpty(t *testing.T) {
	b, server, _ := testSetup(t)
	url := server.URL + "/get-opportunity/https://example.com/session/9"

	statuses := make(chan int, 2)
	go func() {
		resp, err := http.Get(url)
		if err != nil {
			statuses <- -1
			return
		}
		resp.Body.Close()
		statuses <- resp.StatusCode
	}()
	waitFor(t, func() bool { return b.OpportunityWaiters.Has("https://example.com/session/9") })

	// A second request for the same key supersedes the first.
	go func() {
		resp, err := http.Get(url)
		if err != nil {
			statuses <- -1
			return
		}
		resp.Body.Close()
		statuses <- resp.StatusCode
	}()

	first := <-statuses
	if first != http.StatusNoContent {
		t.Errorf("Expected superseded request to end 204, got %d", first)
	}

	b.OpportunityWaiters.Fulfill("https://example.com/session/9", map[string]interface{}{"id": "x"})
	second := <-statuses
	if second != http.StatusOK {
		t.Errorf("Expected surviving request to be fulfilled with 200, got %d", second)
	}
}

func TestGetOrderWaits(t *testing.T) {
	b, server, _ := testSetup(t)

	done := make(chan int, 1)
	go func() {
		resp, err := http.Get(server.URL + "/get-order/order-expr-1")
		if err != nil {
			done <- -1
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	waitFor(t, func() bool { return b.OrderWaiters.Has("order-expr-1") })
	b.OrderWaiters.Fulfill("order-expr-1", map[string]interface{}{"id": "order-expr-1"})

	if status := <-done; status != http.StatusOK {
		t.Errorf("Expected 200 after order fulfillment, got %d", status)
	}
}

func TestHealthCheck(t *testing.T) {
	b, server, _ := testSetup(t)
	b.Status.RecordPage("parent-0", 3)

	var body map[string]interface{}
	status := getJSON(t, server.URL+"/health-check", &body)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d", status)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
	feeds, ok := body["feeds"].(map[string]interface{})
	if !ok || feeds["parent-0"] == nil {
		t.Errorf("Expected per-feed progress, got %v", body["feeds"])
	}
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for condition")
}

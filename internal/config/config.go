package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all broker configuration, loaded from environment variables.
type Config struct {
	// HTTP
	Port string

	// Upstream feeds
	ParentFeedURLs []string
	ChildFeedURLs  []string
	OrdersFeedURL  string
	OrdersAPIKey   string

	// Store backend: "memory" or "couchbase"
	StoreBackend      string
	CouchbaseURL      string
	CouchbaseUsername string
	CouchbasePassword string
	CouchbaseBucket   string

	// Feed republishing
	FeedPageSize int

	// Harvester pacing
	PageDelay  time.Duration
	RetryDelay time.Duration

	// Bookability thresholds. BookableLeadTime gates the index; the service
	// does not consume CriteriaLeadTime itself, it is surfaced for the
	// external criteria matcher, which uses a shorter window.
	BookableLeadTime time.Duration
	CriteriaLeadTime time.Duration
	BookingChannel   string

	// Logging
	ElasticsearchURL string
	LogLevel         string
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Port:              getEnvOrDefault("BROKER_PORT", "3000"),
		ParentFeedURLs:    splitURLs(os.Getenv("PARENT_FEED_URLS")),
		ChildFeedURLs:     splitURLs(os.Getenv("CHILD_FEED_URLS")),
		OrdersFeedURL:     os.Getenv("ORDERS_FEED_URL"),
		OrdersAPIKey:      os.Getenv("ORDERS_FEED_API_KEY"),
		StoreBackend:      getEnvOrDefault("STORE_BACKEND", "memory"),
		CouchbaseURL:      getEnvOrDefault("COUCHBASE_URL", "couchbase://openbroker-db"),
		CouchbaseUsername: getEnvOrDefault("COUCHBASE_USERNAME", "openbroker_user"),
		CouchbasePassword: getEnvOrDefault("COUCHBASE_PASSWORD", "password"),
		CouchbaseBucket:   getEnvOrDefault("COUCHBASE_BUCKET", "openbroker"),
		FeedPageSize:      getEnvIntOrDefault("FEED_PAGE_SIZE", 500),
		PageDelay:         getEnvDurationOrDefault("HARVEST_PAGE_DELAY", 200*time.Millisecond),
		RetryDelay:        getEnvDurationOrDefault("HARVEST_RETRY_DELAY", 5*time.Second),
		BookableLeadTime:  getEnvDurationOrDefault("BOOKABLE_LEAD_TIME", 24*time.Hour),
		CriteriaLeadTime:  getEnvDurationOrDefault("CRITERIA_LEAD_TIME", 2*time.Hour),
		BookingChannel:    getEnvOrDefault("BOOKING_CHANNEL", "https://openactive.io/OpenBookingPrepayment"),
		ElasticsearchURL:  os.Getenv("ELASTICSEARCH_URL"),
		LogLevel:          getEnvOrDefault("BROKER_LOG_LEVEL", "info"),
	}
}

// SelfFeedURL returns the loopback URL of the broker's own republished feed.
func (c *Config) SelfFeedURL() string {
	return "http://127.0.0.1:" + c.Port + "/feeds/opportunities"
}

func splitURLs(value string) []string {
	if value == "" {
		return nil
	}
	var urls []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			urls = append(urls, part)
		}
	}
	return urls
}

// Helper function to get environment variable with default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

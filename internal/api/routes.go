package api

import (
	"github.com/gorilla/mux"

	"stealthcompany.com/openbroker/internal/metrics"
)

// SetupRoutes configures and returns the HTTP router
func (s *Server) SetupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Opportunity ids are URLs; path cleaning would collapse their double
	// slashes and redirect.
	r.SkipClean(true)

	// Add middleware to all routes
	r.Use(metrics.MetricsMiddleware)

	// Republished feed (also consumed by the self-feed monitor)
	r.HandleFunc("/feeds/opportunities", s.OpportunityFeedHandler).Methods("GET")

	// Cache/blocking read API. Opportunity ids are URLs, so the patterns
	// must swallow slashes.
	r.HandleFunc("/get-cached-opportunity/{id:.+}", s.GetCachedOpportunityHandler).Methods("GET")
	r.HandleFunc("/get-opportunity/{id:.+}", s.GetOpportunityHandler).Methods("GET")
	r.HandleFunc("/get-random-opportunity", s.GetRandomOpportunityHandler).Methods("GET")
	r.HandleFunc("/get-order/{expression:.+}", s.GetOrderHandler).Methods("GET")

	r.HandleFunc("/health-check", s.HealthCheckHandler).Methods("GET")

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler()).Methods("GET")

	return r
}

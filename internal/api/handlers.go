package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/openbroker/internal/waiters"
)

// GetCachedOpportunityHandler serves an opportunity from the join cache
// when it is present and parent-ingested, and parks a waiter otherwise.
func (s *Server) GetCachedOpportunityHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if payload, ok := s.broker.CachedOpportunity(id); ok {
		log.Debug().
			Str("id", id).
			Msg("Serving opportunity from cache")
		writeJSON(w, http.StatusOK, payload)
		return
	}

	log.Debug().
		Str("id", id).
		Msg("Opportunity not cached, waiting for feed observation")
	s.waitForKey(w, r, s.broker.OpportunityWaiters, id)
}

// GetOpportunityHandler always waits for the next feed observation of the
// opportunity, ignoring the cache.
func (s *Server) GetOpportunityHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.waitForKey(w, r, s.broker.OpportunityWaiters, id)
}

// GetRandomOpportunityHandler picks an arbitrary currently-bookable
// opportunity, optionally restricted by type.
func (s *Server) GetRandomOpportunityHandler(w http.ResponseWriter, r *http.Request) {
	requestedType := r.URL.Query().Get("type")

	opportunityType, id, ok := s.broker.Bookable.Random(requestedType)
	if !ok {
		log.Debug().
			Str("type", requestedType).
			Msg("No bookable opportunity available")
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no bookable opportunity available",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"@type": opportunityType,
		"@id":   id,
	})
}

// GetOrderHandler waits for the orders feed to observe an item matching the
// caller-supplied expression.
func (s *Server) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	expression := mux.Vars(r)["expression"]
	s.waitForKey(w, r, s.broker.OrderWaiters, expression)
}

// HealthCheckHandler reports service status and per-feed harvest progress.
func (s *Server) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"feeds":  s.broker.Status.Snapshot(),
	})
}

// waitForKey parks the request against key until a feed observation
// fulfills it. A superseding request for the same key ends this one empty;
// the waiter is released if the client goes away first. There is no
// server-side timeout: bounding the wait is the caller's concern.
func (s *Server) waitForKey(w http.ResponseWriter, r *http.Request, registry *waiters.Registry, key string) {
	ch := registry.Register(key)

	select {
	case payload, ok := <-ch:
		if !ok {
			// Superseded by a newer request for the same key.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case <-r.Context().Done():
		registry.Release(key, ch)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

package api

import (
	"stealthcompany.com/openbroker/internal/broker"
	"stealthcompany.com/openbroker/internal/config"
)

// Server holds the broker state behind the HTTP surface.
type Server struct {
	broker *broker.Broker
	cfg    *config.Config
}

// NewServer creates the HTTP surface over a broker.
func NewServer(cfg *config.Config, b *broker.Broker) *Server {
	return &Server{broker: b, cfg: cfg}
}

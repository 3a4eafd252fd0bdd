package api

import (
	"net/http"

	"github.com/okian/starchallenge/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins restricts CORS to the given origins. Empty allows any.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithLiveHandler mounts the websocket upgrade handler at /ws.
func WithLiveHandler(h http.Handler) Option {
	return func(s *Server) {
		s.live = h
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

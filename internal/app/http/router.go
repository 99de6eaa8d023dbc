// Package transport is the HTTP edge: one signed webhook for slash commands
// plus the unauthenticated health endpoints.
package transport

import (
	"encoding/json"
	"fmt"
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"alphamachine/gateway/internal/observability"
)

type RouterConfig struct {
	SigningSecret string
	Logger        *zap.Logger
	Version       string
}

type Handlers struct {
	Command stdhttp.HandlerFunc
}

func NewRouter(cfg RouterConfig, handlers Handlers) stdhttp.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(observability.RequestID)
	r.Use(observability.Logging(log))

	r.Get("/healthz", func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	r.Get("/version", func(w stdhttp.ResponseWriter, _ *stdhttp.Request) {
		writeJSON(w, map[string]string{"version": cfg.Version})
	})

	r.Group(func(signed chi.Router) {
		signed.Use(observability.SlackSignature(cfg.SigningSecret, nil))
		signed.Post("/slack/commands", mustHandler("slack commands", handlers.Command))
	})

	return r
}

func writeJSON(w stdhttp.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func mustHandler(name string, handler stdhttp.HandlerFunc) stdhttp.HandlerFunc {
	if handler != nil {
		return handler
	}
	panic(fmt.Sprintf("transport router missing handler: %s", name))
}

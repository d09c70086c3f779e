/*
Package handler provides the verb router and per-verb handlers for the line
protocol.

This file defines the optional operational HTTP endpoint: liveness and a
small session statistics view. It carries no chat functionality and stays
disabled unless an address is configured.
*/
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"linechat/internal/pkg/logx"
)

// OpsRouter sets up the operational routing table (chi.Router).
func OpsRouter(deps *AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]string{
			"status":  "ok",
			"service": "linechat",
		})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, map[string]any{
			"sessions":        deps.Sessions.Count(),
			"online_user_ids": deps.Sessions.OnlineUserIDs(),
		})
	})

	return r
}

// respondJSON writes payload as a JSON body with status 200.
func respondJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	body, err := json.Marshal(payload)
	if err != nil {
		logx.Error(err, "Error encoding ops JSON response")
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

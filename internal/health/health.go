// Package health serves the liveness endpoint. It only reads the engine's
// aggregate counters.
package health

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/luciancaetano/fiftysocket"
)

// StatsProvider exposes the counters reported by the health endpoint.
type StatsProvider interface {
	Stats() fiftysocket.Stats
}

// Response is the body of GET /health.
type Response struct {
	Status string `json:"status"`
	fiftysocket.Stats
}

// Handler answers with {"status":"ok","connections":N,"channels":N}.
func Handler(p StatsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body, err := json.Marshal(Response{Status: "ok", Stats: p.Stats()})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"questgraph/pkg/version"
)

// NewServer creates and configures the HTTP server.
// shutdown is called after POST /api/shutdown has been answered.
func NewServer(addr string, qh *QuestHandler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Logs
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/log/events", handleEventLog)

	// 3. Quest
	mux.HandleFunc("GET /api/quest/event", qh.HandleEvent)
	mux.HandleFunc("POST /api/quest/choose", qh.HandleChoose)
	mux.HandleFunc("POST /api/quest/reset", qh.HandleReset)
	mux.HandleFunc("GET /api/quest/graph", qh.HandleGraph)
	mux.HandleFunc("GET /api/quest/journal", qh.HandleJournal)
	mux.HandleFunc("GET /api/quest/runs", qh.HandleRuns)
	mux.HandleFunc("GET /api/quest/ws", qh.HandleWS)

	// 4. Shutdown
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Let the response flush first.
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	// WriteTimeout stays zero: websocket connections outlive any request deadline.
	return &http.Server{
		Addr:              addr,
		Handler:           logRequests(mux),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"questgraph/pkg/layout"
	"questgraph/pkg/model"
	"questgraph/pkg/quest"
	"questgraph/pkg/session"
	"questgraph/pkg/store"
)

// QuestHandler serves the running quest.
type QuestHandler struct {
	sess   *session.Session
	store  store.JournalStore
	layout layout.Options
}

// NewQuestHandler creates a handler for sess. st may be nil when the journal is disabled.
func NewQuestHandler(sess *session.Session, st store.JournalStore) *QuestHandler {
	return &QuestHandler{sess: sess, store: st, layout: layout.DefaultOptions()}
}

type chooseRequest struct {
	Ending string `json:"ending"`
}

type chooseResponse struct {
	Resolved      []model.JournalEntry `json:"resolved"`
	QuestFinished bool                 `json:"quest_finished"`
	State         session.Snapshot     `json:"state"`
}

// HandleEvent returns the session state with the event in play.
// GET /api/quest/event
func (h *QuestHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Snapshot())
}

// HandleChoose resolves the event in play.
// POST /api/quest/choose {"ending": "..."}
func (h *QuestHandler) HandleChoose(w http.ResponseWriter, r *http.Request) {
	var req chooseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Ending == "" {
		writeError(w, http.StatusBadRequest, "ending is required")
		return
	}

	eff, entries, err := h.sess.Decide(r.Context(), req.Ending)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := chooseResponse{
		Resolved:      nonNil(entries),
		QuestFinished: eff.QuestFinished,
		State:         h.sess.Snapshot(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleReset restarts the quest with a new run.
// POST /api/quest/reset
func (h *QuestHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Start(r.Context()); err != nil {
		slog.Error("Quest reset failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	slog.Info("Quest reset via API")
	writeJSON(w, http.StatusOK, h.sess.Snapshot())
}

// HandleGraph returns the graph view of a quest layer.
// GET /api/quest/graph?depth=N (default: innermost layer)
func (h *QuestHandler) HandleGraph(w http.ResponseWriter, r *http.Request) {
	depth := -1
	if s := r.URL.Query().Get("depth"); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "depth must be an integer")
			return
		}
		depth = d
	}
	writeJSON(w, http.StatusOK, h.graph(depth))
}

func (h *QuestHandler) graph(depth int) model.GraphView {
	var view model.GraphView
	h.sess.View(func(q *quest.Quest) {
		view = layout.Build(q, depth, h.layout)
	})
	return view
}

// HandleJournal returns the resolutions of the current run, or of ?run=ID from the store.
// GET /api/quest/journal
func (h *QuestHandler) HandleJournal(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run")
	if runID == "" {
		writeJSON(w, http.StatusOK, nonNil(h.sess.Journal()))
		return
	}
	if h.store == nil {
		writeError(w, http.StatusNotFound, "journal store disabled")
		return
	}
	entries, err := h.store.ListResolutions(r.Context(), runID)
	if err != nil {
		slog.Error("Failed to read journal", "run", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// HandleRuns lists recent runs from the store.
// GET /api/quest/runs?limit=N
func (h *QuestHandler) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusOK, []*model.Run{})
		return
	}
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			limit = n
		}
	}
	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func nonNil(entries []model.JournalEntry) []model.JournalEntry {
	if entries == nil {
		return []model.JournalEntry{}
	}
	return entries
}

// writeEngineError maps engine and session errors onto status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quest.ErrInvalidEnding):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, quest.ErrEventNotActive), errors.Is(err, session.ErrNoEvent):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("Quest update failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"go.uber.org/zap"
)

const (
	defaultTransitionsLimit = 1000
	maxTransitionsLimit     = 10000
)

// JournalHandler serves recorded transitions of past and running sessions.
type JournalHandler struct {
	store  TransitionStore
	logger *zap.Logger
}

func NewJournalHandler(store TransitionStore, logger *zap.Logger) (*JournalHandler, error) {
	if store == nil {
		return nil, errors.New("transition store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JournalHandler{store: store, logger: logger.Named("journal_handler")}, nil
}

type transitionView struct {
	SessionID   string               `json:"sessionId"`
	Subscriber  string               `json:"subscriber"`
	Type        model.TransitionType `json:"type"`
	Hash        string               `json:"hash"`
	Sequence    uint64               `json:"sequence"`
	TipSequence uint64               `json:"tipSequence"`
	EmittedAt   time.Time            `json:"emittedAt"`
}

// SessionTransitions answers GET /sessions/{id}/transitions?limit=N.
func (h *JournalHandler) SessionTransitions(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	id := pathParams["id"]
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("session id is required"))
		return
	}

	limit := uint64(defaultTransitionsLimit)
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil || parsed == 0 || parsed > maxTransitionsLimit {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be between 1 and %d", maxTransitionsLimit))
			return
		}
		limit = parsed
	}

	entries, err := h.store.SessionTransitions(r.Context(), id, limit)
	if err != nil {
		h.logger.Error("session transitions lookup failed", zap.String("session", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, errors.New("journal unavailable"))
		return
	}

	views := make([]transitionView, 0, len(entries))
	for _, e := range entries {
		views = append(views, transitionView{
			SessionID:   e.SessionID,
			Subscriber:  e.Subscriber,
			Type:        e.Type,
			Hash:        e.Hash,
			Sequence:    e.Sequence,
			TipSequence: e.TipSequence,
			EmittedAt:   e.EmittedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

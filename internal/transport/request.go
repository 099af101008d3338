package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goodnatureofminers/chainfollow/internal/follow/model"
	"github.com/goodnatureofminers/chainfollow/internal/follow/stream"
	"github.com/lightningnetwork/lnd/fn/v2"
)

const maxRequestBytes = 4 << 10

// FollowRequest opens a follow session. Head is the hex hash of the last
// block the subscriber has seen; empty starts at the live tip.
type FollowRequest struct {
	Head       string `json:"head,omitempty"`
	Serialized bool   `json:"serialized,omitempty"`
	Subscriber string `json:"subscriber,omitempty"`
}

func (r FollowRequest) config(cadence time.Duration, wakeOnMutation bool) (stream.Config, error) {
	cfg := stream.Config{
		Serialized:     r.Serialized,
		Subscriber:     r.Subscriber,
		Cadence:        cadence,
		WakeOnMutation: wakeOnMutation,
	}
	if r.Head != "" {
		hash, err := model.ParseHash(r.Head)
		if err != nil {
			return cfg, fmt.Errorf("invalid head: %w", err)
		}
		cfg.Head = fn.Some(model.ChainHead{Hash: hash})
	}
	return cfg, nil
}

// decodeFollowRequest reads a JSON body on POST; query parameters override
// body fields.
func decodeFollowRequest(w http.ResponseWriter, r *http.Request) (FollowRequest, error) {
	var req FollowRequest
	if r.Method == http.MethodPost && r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, fmt.Errorf("decode request: %w", err)
		}
	}

	q := r.URL.Query()
	if v := q.Get("head"); v != "" {
		req.Head = v
	}
	if v := q.Get("serialized"); v != "" {
		serialized, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("invalid serialized flag %q", v)
		}
		req.Serialized = serialized
	}
	if v := q.Get("subscriber"); v != "" {
		req.Subscriber = v
	}
	return req, nil
}

type terminalFrame struct {
	Status stream.Status `json:"status"`
	Error  string        `json:"error"`
}

func newTerminalFrame(terminal *stream.TerminalError) terminalFrame {
	return terminalFrame{Status: terminal.Status, Error: terminal.Err.Error()}
}

func httpStatus(status stream.Status) int {
	switch status {
	case stream.StatusCursorLost:
		return http.StatusNotFound
	case stream.StatusMalformedBlockData:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

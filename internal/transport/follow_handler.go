// Package transport exposes follow sessions over HTTP, WebSocket and gRPC
// health checks.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/goodnatureofminers/chainfollow/internal/follow/encoder"
	"github.com/goodnatureofminers/chainfollow/internal/follow/stream"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SessionHeader carries the session id on NDJSON responses.
const SessionHeader = "X-Follow-Session"

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
	DefaultPongWait     = 10 * time.Second
)

// FollowConfig tunes sessions opened by the handler.
type FollowConfig struct {
	Cadence        time.Duration
	WakeOnMutation bool
	// WriteTimeout bounds a single element write to a subscriber.
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongWait     time.Duration
}

// FollowHandler serves follow sessions.
type FollowHandler struct {
	source   stream.Source
	encoder  stream.Encoder
	journal  stream.Journal
	metrics  stream.Metrics
	cfg      FollowConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader
	newID    func() string
}

// NewFollowHandler validates dependencies. journal may be nil.
func NewFollowHandler(
	source stream.Source,
	enc stream.Encoder,
	journal stream.Journal,
	metrics stream.Metrics,
	cfg FollowConfig,
	logger *zap.Logger,
) (*FollowHandler, error) {
	switch {
	case source == nil:
		return nil, errors.New("chain source is required")
	case enc == nil:
		return nil, errors.New("encoder is required")
	case metrics == nil:
		return nil, errors.New("session metrics is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultPongWait
	}

	return &FollowHandler{
		source:  source,
		encoder: enc,
		journal: journal,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger.Named("follow"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		newID: uuid.NewString,
	}, nil
}

func (h *FollowHandler) newSession(cfg stream.Config, sink stream.Sink) (*stream.Session, error) {
	return stream.NewSession(h.newID(), cfg, h.source, h.encoder, sink, h.journal, h.metrics, h.logger)
}

// Follow streams elements as newline delimited JSON until the client goes
// away or the session terminates.
func (h *FollowHandler) Follow(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	req, err := decodeFollowRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cfg, err := req.config(h.cfg.Cadence, h.cfg.WakeOnMutation)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sink := newNDJSONSink(w, h.cfg.WriteTimeout)
	session, err := h.newSession(cfg, sink)
	if err != nil {
		h.logger.Error("session not created", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set(SessionHeader, session.ID())

	var terminal *stream.TerminalError
	if err := session.Run(r.Context()); errors.As(err, &terminal) && terminal.Status != stream.StatusSubscriberGone {
		sink.terminate(terminal)
	}
}

type ndjsonSink struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	enc          *json.Encoder
	writeTimeout time.Duration
	started      bool
}

func newNDJSONSink(w http.ResponseWriter, writeTimeout time.Duration) *ndjsonSink {
	return &ndjsonSink{
		w:            w,
		rc:           http.NewResponseController(w),
		enc:          json.NewEncoder(w),
		writeTimeout: writeTimeout,
	}
}

func (s *ndjsonSink) Send(_ context.Context, element encoder.Element) error {
	s.begin(http.StatusOK)
	return s.write(element)
}

// terminate sends the final frame. Sessions that end before their first
// element get a matching HTTP status.
func (s *ndjsonSink) terminate(terminal *stream.TerminalError) {
	s.begin(httpStatus(terminal.Status))
	_ = s.write(newTerminalFrame(terminal))
}

func (s *ndjsonSink) begin(code int) {
	if s.started {
		return
	}
	s.started = true
	s.w.Header().Set("Content-Type", "application/x-ndjson")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.WriteHeader(code)
}

func (s *ndjsonSink) write(v any) error {
	// not every ResponseWriter supports deadlines
	_ = s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.enc.Encode(v); err != nil {
		return err
	}
	return s.rc.Flush()
}

// FollowWebSocket runs the same protocol over a WebSocket. The first client
// message is the FollowRequest; every later frame is server to client.
func (h *FollowHandler) FollowWebSocket(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(maxRequestBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PingInterval + h.cfg.PongWait))

	var req FollowRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.closeWebSocket(conn, websocket.ClosePolicyViolation, "invalid follow request")
		return
	}
	cfg, err := req.config(h.cfg.Cadence, h.cfg.WakeOnMutation)
	if err != nil {
		h.closeWebSocket(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}

	sink := &wsSink{conn: conn, writeTimeout: h.cfg.WriteTimeout}
	session, err := h.newSession(cfg, sink)
	if err != nil {
		h.logger.Error("session not created", zap.Error(err))
		h.closeWebSocket(conn, websocket.CloseInternalServerErr, "session not created")
		return
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PingInterval + h.cfg.PongWait))
	})
	// The read loop only notices the client leaving and services pongs.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	go h.ping(ctx, conn)

	var terminal *stream.TerminalError
	if err := session.Run(ctx); errors.As(err, &terminal) {
		if terminal.Status == stream.StatusSubscriberGone {
			return
		}
		sink.terminate(terminal)
		h.closeWebSocket(conn, websocket.CloseNormalClosure, string(terminal.Status))
		return
	}
	h.closeWebSocket(conn, websocket.CloseGoingAway, string(stream.StatusCancelled))
}

func (h *FollowHandler) ping(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.PongWait)); err != nil {
				h.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (h *FollowHandler) closeWebSocket(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
		h.logger.Debug("websocket close not sent", zap.Error(err))
	}
}

type wsSink struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (s *wsSink) Send(_ context.Context, element encoder.Element) error {
	return s.write(element)
}

func (s *wsSink) terminate(terminal *stream.TerminalError) {
	_ = s.write(newTerminalFrame(terminal))
}

func (s *wsSink) write(v any) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

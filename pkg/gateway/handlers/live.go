package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/gateway/config"
	"github.com/vango-go/vai-tutor/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-tutor/pkg/gateway/live"
	"github.com/vango-go/vai-tutor/pkg/gateway/mw"
	"github.com/vango-go/vai-tutor/pkg/gateway/ratelimit"
	"github.com/vango-go/vai-tutor/pkg/persona"
	"github.com/vango-go/vai-tutor/pkg/session"
	"github.com/vango-go/vai-tutor/pkg/store"
)

// LiveMetrics is what the live handler reports. *metrics.Metrics implements
// it.
type LiveMetrics interface {
	session.Observer
	live.AudioRecorder
	RecordLiveSessionStart()
	RecordLiveSessionEnd(status string, duration time.Duration)
}

// LiveHandler handles /v1/live: one WebSocket drives one server-side
// session for the chosen persona and conversation.
type LiveHandler struct {
	Config      config.Config
	Store       store.Store
	Personas    *persona.Registry
	Transcriber session.Transcriber
	Answerer    session.Answerer
	Synthesizer session.Synthesizer
	Lifecycle   *lifecycle.Lifecycle
	Sessions    *live.Registry
	Limiter     *ratelimit.Limiter
	Metrics     LiveMetrics
	Logger      *slog.Logger
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, &core.Error{Type: core.ErrAPI, Message: "server is draining", Code: "draining", RequestID: reqID}, http.StatusServiceUnavailable)
		return
	}
	if !h.originAllowed(r) {
		writeCoreErrorJSON(w, &core.Error{Type: core.ErrInvalidRequest, Message: "origin is not allowed", Param: "Origin", RequestID: reqID}, http.StatusForbidden)
		return
	}

	if h.Transcriber == nil || h.Answerer == nil {
		unavailable(w, r, "live mode")
		return
	}

	slot := h.Limiter.AcquireLive(ratelimit.ClientKey(r), time.Now())
	if !slot.Allowed {
		mw.WriteRateLimited(w, r, slot.RetryAfter, "too many live sessions")
		return
	}
	defer slot.Permit.Release()

	q := r.URL.Query()
	p := h.Personas.Resolve(q.Get("persona"))
	conversationID := strings.TrimSpace(q.Get("conversation_id"))
	if conversationID != "" && h.Store != nil {
		if _, err := h.Store.ListTurns(r.Context(), conversationID); err != nil {
			writeError(w, r, h.Logger, err)
			return
		}
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.Config.LiveMaxJSONMessageBytes)

	logger := h.logger().With("request_id", reqID, "persona", p.ID, "conversation_id", conversationID)
	started := time.Now()
	status := "ok"
	if h.Metrics != nil {
		h.Metrics.RecordLiveSessionStart()
		defer func() { h.Metrics.RecordLiveSessionEnd(status, time.Since(started)) }()
	}

	var audio live.AudioRecorder
	var observer session.Observer
	if h.Metrics != nil {
		audio, observer = h.Metrics, h.Metrics
	}
	bridge := live.NewBridge(r.Context(), conn, live.Config{
		CaptureHandshakeTimeout: h.Config.CaptureHandshakeTimeout,
		PlaybackTimeout:         h.Config.PlaybackTimeout,
		MaxAudioBytes:           h.Config.MaxAudioBytes,
		PingInterval:            h.Config.LiveWSPingInterval,
		WriteTimeout:            h.Config.LiveWSWriteTimeout,
	}, logger, audio)
	defer h.Sessions.Add(bridge)()

	deps := session.Dependencies{
		Config: session.Config{
			Persona:                   p,
			ConversationID:            conversationID,
			RecordingTimeout:          h.Config.RecordingTimeout,
			ErrorRecovery:             h.Config.ErrorRecovery,
			PersistTimeout:            h.Config.PersistTimeout,
			PersistOnSynthesisFailure: h.Config.PersistOnSynthesisFailure,
		},
		Capture:     bridge.CaptureSource(),
		Transcriber: h.Transcriber,
		Answerer:    h.Answerer,
		Synthesizer: h.Synthesizer,
		Player:      bridge.Player(),
		Observer:    observer,
		Logger:      logger,
	}
	if h.Store != nil {
		deps.Store = h.Store
	}
	sess, err := session.New(deps)
	if err != nil {
		status = "error"
		logger.Error("live session setup failed", "error", err)
		bridge.Close(err)
		return
	}
	defer func() {
		if err := sess.Close(); err != nil && !errors.Is(err, session.ErrClosed) {
			logger.Warn("live session close failed", "error", err)
		}
	}()

	openCtx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	err = sess.Open(openCtx)
	cancel()
	if err != nil {
		status = "error"
		logger.Warn("live session open failed", "error", err)
		bridge.Close(err)
		return
	}

	logger.Info("live session started")
	if err := bridge.Run(sess, p.VoiceID); err != nil {
		status = "error"
		logger.Warn("live session ended with error", "error", err)
	}
	logger.Info("live session ended", "duration_ms", time.Since(started).Milliseconds(), "turns", len(sess.Snapshot().Turns))
}

// originAllowed accepts non-browser clients, same-host pages and origins in
// the CORS allowlist.
func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if mw.OriginAllowed(h.Config.AllowedOrigins(), origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

func (h LiveHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

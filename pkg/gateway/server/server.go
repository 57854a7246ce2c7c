package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/vango-go/vai-tutor/pkg/gateway/config"
	"github.com/vango-go/vai-tutor/pkg/gateway/handlers"
	"github.com/vango-go/vai-tutor/pkg/gateway/lifecycle"
	"github.com/vango-go/vai-tutor/pkg/gateway/live"
	"github.com/vango-go/vai-tutor/pkg/gateway/mw"
	"github.com/vango-go/vai-tutor/pkg/gateway/ratelimit"
	"github.com/vango-go/vai-tutor/pkg/metrics"
	"github.com/vango-go/vai-tutor/pkg/persona"
	"github.com/vango-go/vai-tutor/pkg/session"
	"github.com/vango-go/vai-tutor/pkg/store"
)

// Deps are the backends the routes serve. Store is required; a nil stage
// makes its routes answer 500 "not configured".
type Deps struct {
	Store       store.Store
	Personas    *persona.Registry
	Transcriber session.Transcriber
	Answerer    session.Answerer
	// Synthesizer speaks live replies; Speech serves /v1/speech.
	Synthesizer session.Synthesizer
	Speech      handlers.SpeechSynthesizer
	Metrics     *metrics.Metrics
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Deps

	lifecycle *lifecycle.Lifecycle
	sessions  *live.Registry
	limiter   *ratelimit.Limiter
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Personas == nil {
		deps.Personas = persona.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("")
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		deps:      deps,
		lifecycle: lifecycle.New(),
		sessions:  live.NewRegistry(),
	}
	if rl := cfg.RateLimit(); rl.Enabled() {
		s.limiter = ratelimit.New(rl)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	st := handlers.StoreHandlers{
		Store:         s.deps.Store,
		Personas:      s.deps.Personas,
		MaxBodyBytes:  s.cfg.MaxBodyBytes,
		MaxAudioBytes: s.cfg.MaxAudioBytes,
		Logger:        s.logger,
	}
	vh := handlers.VoiceHandlers{
		Transcriber:   s.deps.Transcriber,
		Answerer:      s.deps.Answerer,
		Synthesizer:   s.deps.Speech,
		Personas:      s.deps.Personas,
		Observer:      s.deps.Metrics,
		MaxBodyBytes:  s.cfg.MaxBodyBytes,
		MaxAudioBytes: s.cfg.MaxAudioBytes,
		Logger:        s.logger,
	}

	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{Store: s.deps.Store, Lifecycle: s.lifecycle})
	s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())

	s.mux.HandleFunc("GET /v1/personas", st.ListPersonas)
	s.mux.HandleFunc("GET /v1/conversations", st.ListConversations)
	s.mux.HandleFunc("POST /v1/conversations", st.CreateConversation)
	s.mux.HandleFunc("GET /v1/conversations/{id}/turns", st.ListTurns)
	s.mux.HandleFunc("POST /v1/conversations/{id}/turns", st.AppendTurn)
	s.mux.HandleFunc("GET /v1/conversations/{id}/graph", st.Graph)
	s.mux.HandleFunc("GET /v1/conversations/{id}/graph/nodes/{node}", st.GraphNode)
	s.mux.HandleFunc("GET /v1/audio/{id}", st.Audio)

	s.mux.Handle("POST /v1/transcriptions", mw.RateLimit(s.limiter, http.HandlerFunc(vh.Transcribe)))
	s.mux.Handle("POST /v1/ask", mw.RateLimit(s.limiter, http.HandlerFunc(vh.Ask)))
	s.mux.Handle("POST /v1/speech", mw.RateLimit(s.limiter, http.HandlerFunc(vh.Speech)))

	s.mux.Handle("GET /v1/live", handlers.LiveHandler{
		Config:      s.cfg,
		Store:       s.deps.Store,
		Personas:    s.deps.Personas,
		Transcriber: s.deps.Transcriber,
		Answerer:    s.deps.Answerer,
		Synthesizer: s.deps.Synthesizer,
		Lifecycle:   s.lifecycle,
		Sessions:    s.sessions,
		Limiter:     s.limiter,
		Metrics:     s.deps.Metrics,
		Logger:      s.logger,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Metrics(s.deps.Metrics, h)
	h = mw.CORS(s.cfg.AllowedOrigins(), h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Drain starts draining: readiness fails, new live sessions are refused and
// open ones are warned, then closed once ctx ends. It returns when every
// live session has finished or closeWait has passed after closing.
func (s *Server) Drain(ctx context.Context, closeWait time.Duration) {
	s.lifecycle.StartDraining()
	if n := s.sessions.WarnAll("draining", "server is shutting down"); n > 0 {
		s.logger.Info("draining live sessions", "sessions", n)
	}
	if s.sessions.Wait(ctx) {
		return
	}

	closed := s.sessions.CloseAll(context.Cause(ctx))
	s.logger.Warn("closing live sessions after grace period", "sessions", closed)
	waitCtx, cancel := context.WithTimeout(context.Background(), closeWait)
	defer cancel()
	if !s.sessions.Wait(waitCtx) {
		s.logger.Warn("live sessions still open after close", "sessions", s.sessions.Count())
	}
}

// LiveSessions reports the number of open live sessions.
func (s *Server) LiveSessions() int {
	return s.sessions.Count()
}

// Package config loads the tutor server configuration from TUTOR_*
// environment variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/vango-go/vai-tutor/pkg/gateway/ratelimit"
)

// Prefix is prepended to every variable name below.
const Prefix = "TUTOR_"

const (
	AnswerProviderAnthropic = "anthropic"
	AnswerProviderGemini    = "gemini"

	STTProviderElevenLabs = "elevenlabs"
	STTProviderCartesia   = "cartesia"

	SearchProviderParallel = "parallel"
	SearchProviderTavily   = "tavily"
	SearchProviderExa      = "exa"
	SearchProviderNone     = "none"
)

type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Store selection: DatabaseURL picks Postgres, StoreURL a remote tutor
	// server, neither the in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`
	StoreURL    string `env:"STORE_URL"`

	// Optional S3 offload of audio payloads (Postgres only).
	S3Bucket          string `env:"S3_BUCKET"`
	S3Region          string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`

	AnswerProvider  string `env:"ANSWER_PROVIDER" envDefault:"anthropic"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	GeminiModel     string `env:"GEMINI_MODEL"`
	AnswerMaxTokens int    `env:"ANSWER_MAX_TOKENS" envDefault:"1024"`

	STTProvider       string `env:"STT_PROVIDER" envDefault:"elevenlabs"`
	CartesiaAPIKey    string `env:"CARTESIA_API_KEY"`
	ElevenLabsAPIKey  string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsBaseURL string `env:"ELEVENLABS_BASE_URL"`
	STTModel          string `env:"STT_MODEL" envDefault:"scribe_v1"`
	STTLanguage       string `env:"STT_LANGUAGE" envDefault:"eng"`
	TTSModel          string `env:"TTS_MODEL" envDefault:"eleven_multilingual_v2"`

	SearchProvider   string `env:"SEARCH_PROVIDER" envDefault:"parallel"`
	ParallelAPIKey   string `env:"PARALLEL_API_KEY"`
	TavilyAPIKey     string `env:"TAVILY_API_KEY"`
	ExaAPIKey        string `env:"EXA_API_KEY"`
	SearchMaxResults int    `env:"SEARCH_MAX_RESULTS" envDefault:"3"`

	// PersonaVoices overrides voice ids, e.g. "peter=abc123,dora=". An
	// empty id forces the fallback voice for that persona.
	PersonaVoices map[string]string `env:"PERSONA_VOICES" envSeparator:"," envKeyValSeparator:"="`

	RecordingTimeout          time.Duration `env:"RECORDING_TIMEOUT" envDefault:"10s"`
	ErrorRecovery             time.Duration `env:"ERROR_RECOVERY" envDefault:"3s"`
	PersistTimeout            time.Duration `env:"PERSIST_TIMEOUT" envDefault:"15s"`
	PersistOnSynthesisFailure bool          `env:"PERSIST_ON_SYNTHESIS_FAILURE" envDefault:"false"`

	// Live WebSocket mode (/v1/live).
	CaptureHandshakeTimeout time.Duration `env:"CAPTURE_HANDSHAKE_TIMEOUT" envDefault:"15s"`
	PlaybackTimeout         time.Duration `env:"PLAYBACK_TIMEOUT" envDefault:"2m"`
	LiveMaxJSONMessageBytes int64         `env:"LIVE_MAX_JSON_MESSAGE_BYTES" envDefault:"65536"`
	LiveWSPingInterval      time.Duration `env:"LIVE_WS_PING_INTERVAL" envDefault:"20s"`
	LiveWSWriteTimeout      time.Duration `env:"LIVE_WS_WRITE_TIMEOUT" envDefault:"5s"`

	// Per-client limits on the provider-backed routes; zero disables one.
	LimitRPS                   float64 `env:"LIMIT_RPS" envDefault:"1"`
	LimitBurst                 int     `env:"LIMIT_BURST" envDefault:"10"`
	LimitMaxConcurrentRequests int     `env:"LIMIT_MAX_CONCURRENT_REQUESTS" envDefault:"4"`
	LimitMaxLiveSessions       int     `env:"LIMIT_MAX_LIVE_SESSIONS" envDefault:"2"`

	MaxBodyBytes  int64    `env:"MAX_BODY_BYTES" envDefault:"16777216"`
	MaxAudioBytes int64    `env:"MAX_AUDIO_BYTES" envDefault:"10485760"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envSeparator:","`

	ReadHeaderTimeout   time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
	ReadTimeout         time.Duration `env:"READ_TIMEOUT" envDefault:"60s"`
	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"30s"`
}

// LoadDotEnv loads the first existing file among paths without overriding
// variables that are already set.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return nil
	}
	return nil
}

// LoadFromEnv reads the process environment.
func LoadFromEnv() (Config, error) {
	return load(env.Options{Prefix: Prefix})
}

// LoadFrom reads an explicit environment, keyed with the prefix.
func LoadFrom(environ map[string]string) (Config, error) {
	return load(env.Options{Prefix: Prefix, Environment: environ})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.AnswerProvider = strings.ToLower(strings.TrimSpace(c.AnswerProvider))
	c.SearchProvider = strings.ToLower(strings.TrimSpace(c.SearchProvider))
	c.STTProvider = strings.ToLower(strings.TrimSpace(c.STTProvider))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.StoreURL = strings.TrimRight(strings.TrimSpace(c.StoreURL), "/")
	c.S3Bucket = strings.TrimSpace(c.S3Bucket)

	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.CORSOrigins = origins

	if len(c.PersonaVoices) > 0 {
		voices := make(map[string]string, len(c.PersonaVoices))
		for k, v := range c.PersonaVoices {
			voices[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
		c.PersonaVoices = voices
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return errors.New(Prefix + "LOG_FORMAT must be one of json|text")
	}
	switch c.AnswerProvider {
	case AnswerProviderAnthropic, AnswerProviderGemini:
	default:
		return errors.New(Prefix + "ANSWER_PROVIDER must be one of anthropic|gemini")
	}
	switch c.STTProvider {
	case STTProviderElevenLabs, STTProviderCartesia:
	default:
		return errors.New(Prefix + "STT_PROVIDER must be one of elevenlabs|cartesia")
	}
	switch c.SearchProvider {
	case SearchProviderParallel, SearchProviderTavily, SearchProviderExa, SearchProviderNone:
	default:
		return errors.New(Prefix + "SEARCH_PROVIDER must be one of parallel|tavily|exa|none")
	}
	if c.DatabaseURL != "" && c.StoreURL != "" {
		return errors.New(Prefix + "DATABASE_URL and " + Prefix + "STORE_URL are mutually exclusive")
	}
	if c.S3Bucket != "" && c.DatabaseURL == "" {
		return errors.New(Prefix + "S3_BUCKET requires " + Prefix + "DATABASE_URL")
	}
	if c.AnswerMaxTokens <= 0 {
		return errors.New(Prefix + "ANSWER_MAX_TOKENS must be > 0")
	}
	if c.SearchMaxResults <= 0 {
		return errors.New(Prefix + "SEARCH_MAX_RESULTS must be > 0")
	}
	if c.LimitRPS < 0 || c.LimitBurst < 0 || c.LimitMaxConcurrentRequests < 0 || c.LimitMaxLiveSessions < 0 {
		return errors.New(Prefix + "LIMIT_* values must be >= 0")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New(Prefix + "MAX_BODY_BYTES must be > 0")
	}
	if c.MaxAudioBytes <= 0 {
		return errors.New(Prefix + "MAX_AUDIO_BYTES must be > 0")
	}
	if c.LiveMaxJSONMessageBytes <= 0 {
		return errors.New(Prefix + "LIVE_MAX_JSON_MESSAGE_BYTES must be > 0")
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"RECORDING_TIMEOUT", c.RecordingTimeout},
		{"ERROR_RECOVERY", c.ErrorRecovery},
		{"PERSIST_TIMEOUT", c.PersistTimeout},
		{"CAPTURE_HANDSHAKE_TIMEOUT", c.CaptureHandshakeTimeout},
		{"PLAYBACK_TIMEOUT", c.PlaybackTimeout},
		{"LIVE_WS_PING_INTERVAL", c.LiveWSPingInterval},
		{"LIVE_WS_WRITE_TIMEOUT", c.LiveWSWriteTimeout},
		{"READ_HEADER_TIMEOUT", c.ReadHeaderTimeout},
		{"READ_TIMEOUT", c.ReadTimeout},
		{"SHUTDOWN_GRACE_PERIOD", c.ShutdownGracePeriod},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s%s must be > 0", Prefix, d.name)
		}
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("%sLOG_LEVEL must be one of debug|info|warn|error", Prefix)
	}
	return level, nil
}

// AllowedOrigins returns CORSOrigins as a set; empty disables CORS.
func (c Config) AllowedOrigins() map[string]struct{} {
	out := make(map[string]struct{}, len(c.CORSOrigins))
	for _, o := range c.CORSOrigins {
		out[o] = struct{}{}
	}
	return out
}

// RateLimit returns the per-client limiter settings.
func (c Config) RateLimit() ratelimit.Config {
	return ratelimit.Config{
		RPS:                   c.LimitRPS,
		Burst:                 c.LimitBurst,
		MaxConcurrentRequests: c.LimitMaxConcurrentRequests,
		MaxLiveSessions:       c.LimitMaxLiveSessions,
	}
}

// NewLogger builds the process logger.
func (c Config) NewLogger() *slog.Logger {
	level, err := c.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

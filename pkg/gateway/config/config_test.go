package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.RecordingTimeout != 10*time.Second || cfg.ErrorRecovery != 3*time.Second || cfg.PersistTimeout != 15*time.Second {
		t.Fatalf("session timeouts = %v/%v/%v", cfg.RecordingTimeout, cfg.ErrorRecovery, cfg.PersistTimeout)
	}
	if cfg.PersistOnSynthesisFailure {
		t.Fatal("PersistOnSynthesisFailure should default to false")
	}
	if cfg.AnswerProvider != AnswerProviderAnthropic || cfg.SearchProvider != SearchProviderParallel {
		t.Fatalf("providers = %q/%q", cfg.AnswerProvider, cfg.SearchProvider)
	}
	if cfg.STTModel != "scribe_v1" || cfg.STTLanguage != "eng" || cfg.TTSModel != "eleven_multilingual_v2" {
		t.Fatalf("voice defaults = %q/%q/%q", cfg.STTModel, cfg.STTLanguage, cfg.TTSModel)
	}
	if len(cfg.AllowedOrigins()) != 0 {
		t.Fatalf("CORS should be disabled by default")
	}
	if rl := cfg.RateLimit(); !rl.Enabled() || rl.MaxLiveSessions != 2 || rl.Burst != 10 {
		t.Fatalf("rate limit defaults = %+v", rl)
	}
	if level, _ := cfg.SlogLevel(); level != slog.LevelInfo {
		t.Fatalf("level = %v", level)
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"TUTOR_ADDR":                         ":9090",
		"TUTOR_LOG_LEVEL":                    "debug",
		"TUTOR_LOG_FORMAT":                   "TEXT",
		"TUTOR_ANSWER_PROVIDER":              "Gemini",
		"TUTOR_SEARCH_PROVIDER":              "none",
		"TUTOR_RECORDING_TIMEOUT":            "5s",
		"TUTOR_PERSIST_ON_SYNTHESIS_FAILURE": "true",
		"TUTOR_CORS_ORIGINS":                 "http://localhost:3000, https://tutor.example ,",
		"TUTOR_PERSONA_VOICES":               "Peter=abc123,dora=",
		"TUTOR_STORE_URL":                    "http://tutor:8080/",
	})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Addr != ":9090" || cfg.LogFormat != "text" || cfg.AnswerProvider != AnswerProviderGemini {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RecordingTimeout != 5*time.Second || !cfg.PersistOnSynthesisFailure {
		t.Fatalf("session cfg = %v/%v", cfg.RecordingTimeout, cfg.PersistOnSynthesisFailure)
	}
	origins := cfg.AllowedOrigins()
	if len(origins) != 2 {
		t.Fatalf("origins = %v", origins)
	}
	if _, ok := origins["https://tutor.example"]; !ok {
		t.Fatalf("origins = %v", origins)
	}
	if v, ok := cfg.PersonaVoices["peter"]; !ok || v != "abc123" {
		t.Fatalf("voices = %v", cfg.PersonaVoices)
	}
	if v, ok := cfg.PersonaVoices["dora"]; !ok || v != "" {
		t.Fatalf("voices = %v", cfg.PersonaVoices)
	}
	if cfg.StoreURL != "http://tutor:8080" {
		t.Fatalf("StoreURL = %q", cfg.StoreURL)
	}
	if level, _ := cfg.SlogLevel(); level != slog.LevelDebug {
		t.Fatalf("level = %v", level)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		want    string
	}{
		{"answer provider", map[string]string{"TUTOR_ANSWER_PROVIDER": "openai"}, "ANSWER_PROVIDER"},
		{"search provider", map[string]string{"TUTOR_SEARCH_PROVIDER": "bing"}, "SEARCH_PROVIDER"},
		{"stt provider", map[string]string{"TUTOR_STT_PROVIDER": "whisper"}, "STT_PROVIDER"},
		{"log format", map[string]string{"TUTOR_LOG_FORMAT": "xml"}, "LOG_FORMAT"},
		{"log level", map[string]string{"TUTOR_LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"both stores", map[string]string{"TUTOR_DATABASE_URL": "postgres://x", "TUTOR_STORE_URL": "http://x"}, "mutually exclusive"},
		{"s3 without db", map[string]string{"TUTOR_S3_BUCKET": "audio"}, "S3_BUCKET"},
		{"zero timeout", map[string]string{"TUTOR_ERROR_RECOVERY": "0s"}, "ERROR_RECOVERY"},
		{"negative body", map[string]string{"TUTOR_MAX_BODY_BYTES": "-1"}, "MAX_BODY_BYTES"},
		{"negative limit", map[string]string{"TUTOR_LIMIT_MAX_LIVE_SESSIONS": "-1"}, "LIMIT_"},
		{"bad duration", map[string]string{"TUTOR_PERSIST_TIMEOUT": "soon"}, "parse env config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.environ)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("TUTOR_ADDR=:7000\nTUTOR_LOG_LEVEL=warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TUTOR_ADDR", ":6000")
	t.Setenv("TUTOR_LOG_LEVEL", "")
	os.Unsetenv("TUTOR_LOG_LEVEL")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.Addr != ":6000" {
		t.Fatalf("Addr = %q, existing variables must win", cfg.Addr)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, want value from .env", cfg.LogLevel)
	}
}

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/vai-tutor/pkg/gateway/config"
	gatewayserver "github.com/vango-go/vai-tutor/pkg/gateway/server"
	"github.com/vango-go/vai-tutor/pkg/store/memory"
)

func noSignals() (func(chan<- os.Signal, ...os.Signal), func(chan<- os.Signal)) {
	return func(chan<- os.Signal, ...os.Signal) {}, func(chan<- os.Signal) {}
}

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	notify, stop := noSignals()
	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, tutorDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		buildBackends: func(context.Context, config.Config, *slog.Logger) (gatewayserver.Deps, func(), error) {
			t.Fatalf("buildBackends should not be called when config load fails")
			return gatewayserver.Deps{}, nil, nil
		},
		signalNotify: notify,
		signalStop:   stop,
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if got := stderr.String(); !strings.Contains(got, "boom") {
		t.Fatalf("stderr=%q", got)
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Addr:              "127.0.0.1:9999",
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       3 * time.Second,
	}

	srv := buildHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout || srv.ReadTimeout != cfg.ReadTimeout {
		t.Fatalf("timeouts=%v/%v", srv.ReadHeaderTimeout, srv.ReadTimeout)
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func TestRunServer_ServesUntilContextCancelled(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{
		"TUTOR_ADDR":                  freeAddr(t),
		"TUTOR_SHUTDOWN_GRACE_PERIOD": "1s",
	})
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}

	closed := make(chan struct{})
	notify, stop := noSignals()
	deps := tutorDeps{
		loadConfig: func() (config.Config, error) { return cfg, nil },
		buildBackends: func(context.Context, config.Config, *slog.Logger) (gatewayserver.Deps, func(), error) {
			return gatewayserver.Deps{Store: memory.New()}, func() { close(closed) }, nil
		},
		signalNotify: notify,
		signalStop:   stop,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServer(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), deps)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + cfg.Addr + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("healthz status=%d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("runServer did not return")
	}
	select {
	case <-closed:
	default:
		t.Fatal("backends were not closed")
	}
}

func TestBuildVoice_OnlyConfiguredStages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		cfg            config.Config
		wantSTT, wantT bool
	}{
		{"no keys", config.Config{STTProvider: config.STTProviderElevenLabs}, false, false},
		{"elevenlabs", config.Config{STTProvider: config.STTProviderElevenLabs, ElevenLabsAPIKey: "k"}, true, true},
		{"cartesia without key", config.Config{STTProvider: config.STTProviderCartesia, ElevenLabsAPIKey: "k"}, false, true},
		{"cartesia", config.Config{STTProvider: config.STTProviderCartesia, CartesiaAPIKey: "c"}, true, false},
	}
	for _, tt := range tests {
		_, sttOK, ttsOK := buildVoice(tt.cfg)
		if sttOK != tt.wantSTT || ttsOK != tt.wantT {
			t.Errorf("%s: stt=%v tts=%v", tt.name, sttOK, ttsOK)
		}
	}
}

func TestBuildBackends_MemoryWithoutKeys(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFrom(map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	deps, closeFn, err := buildBackends(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("buildBackends: %v", err)
	}
	defer closeFn()

	if _, ok := deps.Store.(*memory.Store); !ok {
		t.Fatalf("store = %T, want *memory.Store", deps.Store)
	}
	if deps.Transcriber != nil || deps.Answerer != nil || deps.Synthesizer != nil || deps.Speech != nil {
		t.Fatalf("stages without keys should be unset: %+v", deps)
	}
	if deps.Personas == nil || deps.Metrics == nil {
		t.Fatalf("personas/metrics not built")
	}
}

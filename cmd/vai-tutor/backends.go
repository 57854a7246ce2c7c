package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vango-go/vai-tutor/pkg/core/answer"
	"github.com/vango-go/vai-tutor/pkg/core/search"
	"github.com/vango-go/vai-tutor/pkg/core/search/exa"
	"github.com/vango-go/vai-tutor/pkg/core/search/parallel"
	"github.com/vango-go/vai-tutor/pkg/core/search/tavily"
	"github.com/vango-go/vai-tutor/pkg/core/voice"
	"github.com/vango-go/vai-tutor/pkg/core/voice/stt"
	"github.com/vango-go/vai-tutor/pkg/core/voice/tts"
	"github.com/vango-go/vai-tutor/pkg/gateway/config"
	gatewayserver "github.com/vango-go/vai-tutor/pkg/gateway/server"
	"github.com/vango-go/vai-tutor/pkg/metrics"
	"github.com/vango-go/vai-tutor/pkg/persona"
	"github.com/vango-go/vai-tutor/pkg/session"
	"github.com/vango-go/vai-tutor/pkg/store"
	"github.com/vango-go/vai-tutor/pkg/store/memory"
	"github.com/vango-go/vai-tutor/pkg/store/postgres"
	"github.com/vango-go/vai-tutor/pkg/store/s3audio"
	"github.com/vango-go/vai-tutor/pkg/store/storeclient"
)

const (
	storeOpenTimeout = 30 * time.Second
	searchTimeout    = 4 * time.Second
)

// buildBackends wires the store, the voice pipeline and the answer generator
// from cfg. A stage whose API key is missing is left unset and its routes
// report "not configured".
func buildBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (gatewayserver.Deps, func(), error) {
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return gatewayserver.Deps{}, nil, err
	}

	deps := gatewayserver.Deps{
		Store:    st,
		Personas: persona.Default().WithVoices(cfg.PersonaVoices),
		Metrics:  metrics.New("tutor"),
	}

	pipeline, sttOK, ttsOK := buildVoice(cfg)
	if sttOK {
		deps.Transcriber = pipeline
	} else {
		logger.Warn("speech-to-text disabled: no API key", "stt_provider", cfg.STTProvider)
	}
	if ttsOK {
		deps.Synthesizer = session.PipelineSynthesizer{Pipeline: pipeline}
		deps.Speech = pipeline
	} else {
		logger.Warn("speech synthesis disabled: " + config.Prefix + "ELEVENLABS_API_KEY is not set")
	}

	gen, err := buildAnswerer(ctx, cfg, logger)
	if err != nil {
		closeStore()
		return gatewayserver.Deps{}, nil, err
	}
	if gen != nil {
		deps.Answerer = gen
	} else {
		logger.Warn("answer generation disabled: no API key", "answer_provider", cfg.AnswerProvider)
	}
	return deps, closeStore, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		openCtx, cancel := context.WithTimeout(ctx, storeOpenTimeout)
		defer cancel()
		pg, err := postgres.Open(openCtx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.S3Bucket != "" {
			blobs, err := s3audio.New(openCtx, s3audio.Config{
				Bucket:          cfg.S3Bucket,
				Region:          cfg.S3Region,
				Endpoint:        cfg.S3Endpoint,
				AccessKeyID:     cfg.S3AccessKeyID,
				SecretAccessKey: cfg.S3SecretAccessKey,
				UsePathStyle:    cfg.S3UsePathStyle,
			}, logger)
			if err != nil {
				pg.Close()
				if errors.Is(err, s3audio.ErrDisabled) {
					return nil, nil, fmt.Errorf("%sS3_BUCKET is set: %w", config.Prefix, err)
				}
				return nil, nil, err
			}
			pg.WithBlobs(blobs)
			logger.Info("audio offloaded to s3", "bucket", cfg.S3Bucket)
		}
		logger.Info("using postgres store")
		return pg, pg.Close, nil

	case cfg.StoreURL != "":
		logger.Info("using remote store", "url", cfg.StoreURL)
		return storeclient.New(cfg.StoreURL), func() {}, nil

	default:
		logger.Warn("using in-memory store; turns are lost on restart")
		return memory.New(), func() {}, nil
	}
}

// buildVoice returns a pipeline with whichever providers have keys.
func buildVoice(cfg config.Config) (p *voice.Pipeline, sttOK, ttsOK bool) {
	var sttProvider stt.Provider
	switch cfg.STTProvider {
	case config.STTProviderCartesia:
		if cfg.CartesiaAPIKey != "" {
			sttProvider = stt.NewCartesia(cfg.CartesiaAPIKey)
		}
	default:
		if cfg.ElevenLabsAPIKey != "" {
			sttProvider = stt.NewElevenLabs(cfg.ElevenLabsAPIKey).WithBaseURL(cfg.ElevenLabsBaseURL)
		}
	}

	var ttsProvider tts.Provider
	if cfg.ElevenLabsAPIKey != "" {
		ttsProvider = tts.NewElevenLabs(cfg.ElevenLabsAPIKey).WithBaseURL(cfg.ElevenLabsBaseURL)
	}

	p = voice.NewPipelineWithProviders(sttProvider, ttsProvider).
		WithTranscribeOptions(stt.TranscribeOptions{Model: cfg.STTModel, Language: cfg.STTLanguage}).
		WithSynthesizeOptions(tts.SynthesizeOptions{Model: cfg.TTSModel})
	return p, sttProvider != nil, ttsProvider != nil
}

// buildAnswerer returns nil when the selected provider has no key.
func buildAnswerer(ctx context.Context, cfg config.Config, logger *slog.Logger) (*answer.Generator, error) {
	var backend answer.Backend
	switch cfg.AnswerProvider {
	case config.AnswerProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, nil
		}
		g, err := answer.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, "")
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		backend = g
	default:
		if cfg.AnthropicAPIKey == "" {
			return nil, nil
		}
		backend = answer.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	}

	var web answer.ContextSource
	if searcher := buildSearcher(cfg); searcher != nil && searcher.Configured() {
		web = search.NewAugmenter(searcher, logger).
			WithMaxResults(cfg.SearchMaxResults).
			WithTimeout(searchTimeout)
	}
	return answer.NewGenerator(backend, web, logger).WithMaxTokens(cfg.AnswerMaxTokens), nil
}

func buildSearcher(cfg config.Config) search.Searcher {
	switch cfg.SearchProvider {
	case config.SearchProviderParallel:
		return parallel.NewClient(cfg.ParallelAPIKey, "")
	case config.SearchProviderTavily:
		return tavily.NewClient(cfg.TavilyAPIKey, "", nil)
	case config.SearchProviderExa:
		return exa.NewClient(cfg.ExaAPIKey, "", nil)
	default:
		return nil
	}
}

package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/core/answer"
	"github.com/vango-go/vai-tutor/pkg/core/voice/tts"
	"github.com/vango-go/vai-tutor/pkg/persona"
	"github.com/vango-go/vai-tutor/pkg/session"
)

// SpeechSynthesizer renders text in a voice. *voice.Pipeline implements it.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) (*tts.Synthesis, error)
	SynthesizeStream(ctx context.Context, text, voiceID string) (*tts.SynthesisStream, error)
}

// VoiceHandlers expose the individual pipeline stages for clients that run
// their own session loop.
type VoiceHandlers struct {
	Transcriber   session.Transcriber
	Answerer      session.Answerer
	Synthesizer   SpeechSynthesizer
	Personas      *persona.Registry
	Observer      session.Observer
	MaxBodyBytes  int64
	MaxAudioBytes int64
	Logger        *slog.Logger
}

func (h VoiceHandlers) observe(stage string, start time.Time, err error) {
	if h.Observer != nil {
		h.Observer.ObserveStage(stage, time.Since(start), err)
	}
}

func unavailable(w http.ResponseWriter, r *http.Request, what string) {
	writeError(w, r, nil, &core.Error{Type: core.ErrAPI, Message: what + " is not configured", Code: "unavailable"})
}

// Transcribe accepts a multipart upload with the recording in the "audio"
// field.
func (h VoiceHandlers) Transcribe(w http.ResponseWriter, r *http.Request) {
	if h.Transcriber == nil {
		unavailable(w, r, "transcription")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxAudioBytes+(1<<20))
	file, header, err := r.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, h.Logger, core.NewValidationError("audio exceeds "+strconv.FormatInt(h.MaxAudioBytes, 10)+" bytes", "audio"))
			return
		}
		writeError(w, r, h.Logger, core.NewValidationError("multipart field audio is required", "audio"))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, h.MaxAudioBytes+1))
	if err != nil {
		writeError(w, r, h.Logger, core.NewInvalidRequestError("could not read audio"))
		return
	}
	if len(audio) == 0 {
		writeError(w, r, h.Logger, core.NewValidationError("audio is empty", "audio"))
		return
	}
	if int64(len(audio)) > h.MaxAudioBytes {
		writeError(w, r, h.Logger, core.NewValidationError("audio exceeds "+strconv.FormatInt(h.MaxAudioBytes, 10)+" bytes", "audio"))
		return
	}
	mime := strings.TrimSpace(header.Header.Get("Content-Type"))
	if mime == "" || mime == "application/octet-stream" {
		mime = sniffAudio(audio)
	}

	start := time.Now()
	text, err := h.Transcriber.Transcribe(r.Context(), audio, mime)
	if err != nil {
		err = core.Wrap(core.ErrTranscription, "transcription failed", err)
	}
	h.observe(session.StageTranscribe, start, err)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"transcript": text})
}

type askBody struct {
	Question            string            `json:"question"`
	Persona             string            `json:"persona"`
	ConversationHistory []answer.Exchange `json:"conversation_history,omitempty"`
}

// Ask streams the raw answer, metadata tags included, as plain text.
func (h VoiceHandlers) Ask(w http.ResponseWriter, r *http.Request) {
	if h.Answerer == nil {
		unavailable(w, r, "answer generation")
		return
	}
	var body askBody
	if err := decodeJSON(w, r, h.MaxBodyBytes, &body); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if strings.TrimSpace(body.Question) == "" {
		writeError(w, r, h.Logger, core.NewValidationError("question is required", "question"))
		return
	}
	if strings.TrimSpace(body.Persona) == "" {
		writeError(w, r, h.Logger, core.NewValidationError("persona is required", "persona"))
		return
	}

	start := time.Now()
	stream, err := h.Answerer.Answer(r.Context(), answer.Request{
		Question: strings.TrimSpace(body.Question),
		Persona:  h.Personas.Resolve(body.Persona),
		History:  body.ConversationHistory,
	})
	if err != nil {
		h.observe(session.StageAnswer, start, err)
		writeError(w, r, h.Logger, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			h.observe(session.StageAnswer, start, nil)
			return
		}
		if err != nil {
			err = core.Wrap(core.ErrAnswerGeneration, "answer stream failed", err)
			h.observe(session.StageAnswer, start, err)
			if r.Context().Err() == nil {
				h.logger().Warn("answer stream failed", "error", err)
			}
			return
		}
		if chunk == "" {
			continue
		}
		if _, err := io.WriteString(w, chunk); err != nil {
			return
		}
		_ = rc.Flush()
	}
}

type speechBody struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// Speech synthesizes text. By default the whole clip is returned with a
// Content-Length; ?stream=true relays chunks as they arrive.
func (h VoiceHandlers) Speech(w http.ResponseWriter, r *http.Request) {
	if h.Synthesizer == nil {
		unavailable(w, r, "speech synthesis")
		return
	}
	var body speechBody
	if err := decodeJSON(w, r, h.MaxBodyBytes, &body); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeError(w, r, h.Logger, core.NewValidationError("text is required", "text"))
		return
	}
	if strings.TrimSpace(body.VoiceID) == "" {
		writeError(w, r, h.Logger, core.NewValidationError("voice_id is required", "voice_id"))
		return
	}

	if streaming, _ := strconv.ParseBool(r.URL.Query().Get("stream")); streaming {
		h.speechStream(w, r, body)
		return
	}

	start := time.Now()
	synth, err := h.Synthesizer.Synthesize(r.Context(), body.Text, body.VoiceID)
	if err == nil && len(synth.Audio) == 0 {
		err = errors.New("empty audio")
	}
	if err != nil {
		err = core.Wrap(core.ErrSynthesis, "speech synthesis failed", err)
	}
	h.observe(session.StageSynthesize, start, err)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	w.Header().Set("Content-Type", synth.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(synth.Audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(synth.Audio)
}

func (h VoiceHandlers) speechStream(w http.ResponseWriter, r *http.Request, body speechBody) {
	start := time.Now()
	stream, err := h.Synthesizer.SynthesizeStream(r.Context(), body.Text, body.VoiceID)
	if err != nil {
		err = core.Wrap(core.ErrSynthesis, "speech synthesis failed", err)
		h.observe(session.StageSynthesize, start, err)
		writeError(w, r, h.Logger, err)
		return
	}
	defer stream.Close()

	rc := http.NewResponseController(w)
	wrote := false
	for {
		select {
		case <-r.Context().Done():
			h.observe(session.StageSynthesize, start, r.Context().Err())
			return
		case chunk, ok := <-stream.Chunks():
			if !ok {
				err := stream.Err()
				if err != nil {
					err = core.Wrap(core.ErrSynthesis, "speech synthesis failed", err)
				}
				h.observe(session.StageSynthesize, start, err)
				switch {
				case err != nil && !wrote:
					writeError(w, r, h.Logger, err)
				case err != nil:
					h.logger().Warn("speech stream failed", "error", err)
				case !wrote:
					writeError(w, r, h.Logger, core.Wrap(core.ErrSynthesis, "speech synthesis returned no audio", nil))
				}
				return
			}
			if len(chunk) == 0 {
				continue
			}
			if !wrote {
				w.Header().Set("Content-Type", stream.MimeType)
				w.Header().Set("Cache-Control", "no-cache")
				w.WriteHeader(http.StatusOK)
				wrote = true
			}
			if _, err := w.Write(chunk); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

func (h VoiceHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

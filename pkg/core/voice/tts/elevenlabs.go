package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	elevenLabsBaseURL       = "https://api.elevenlabs.io"
	elevenLabsDefaultModel  = "eleven_multilingual_v2"
	elevenLabsDefaultFormat = "mp3_44100_128"
)

type ElevenLabsProvider struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	wsBaseURL  string
	dialer     *websocket.Dialer
}

func NewElevenLabs(apiKey string) *ElevenLabsProvider {
	return NewElevenLabsWithClient(apiKey, nil)
}

func NewElevenLabsWithClient(apiKey string, client *http.Client) *ElevenLabsProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &ElevenLabsProvider{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: client,
		baseURL:    elevenLabsBaseURL,
		wsBaseURL:  websocketBase(elevenLabsBaseURL),
		dialer:     websocket.DefaultDialer,
	}
}

// WithBaseURL points both the REST and the stream-input endpoints at base.
func (e *ElevenLabsProvider) WithBaseURL(base string) *ElevenLabsProvider {
	if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
		e.baseURL = base
		e.wsBaseURL = websocketBase(base)
	}
	return e
}

func (e *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

// Synthesize calls the REST convert endpoint and returns the whole clip.
func (e *ElevenLabsProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	voiceID, err := e.check(text, opts)
	if err != nil {
		return nil, err
	}
	opts = withDefaults(opts)

	body, err := json.Marshal(map[string]string{
		"text":     text,
		"model_id": opts.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqURL := e.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "?output_format=" + url.QueryEscape(opts.Format)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", MimeTypeForFormat(opts.Format))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("elevenlabs error %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("elevenlabs returned no audio")
	}
	return &Synthesis{Audio: audio, MimeType: MimeTypeForFormat(opts.Format)}, nil
}

// SynthesizeStream uses the stream-input websocket so playback can start
// before the whole clip is rendered.
func (e *ElevenLabsProvider) SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error) {
	voiceID, err := e.check(text, opts)
	if err != nil {
		return nil, err
	}
	opts = withDefaults(opts)

	wsURL, err := buildStreamInputURL(e.wsBaseURL, voiceID, opts)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("xi-api-key", e.apiKey)
	conn, _, err := e.dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("dial elevenlabs: %w", err)
	}

	// Open the context, send the text and flush, then close the input with an
	// empty string.
	messages := []map[string]any{
		{"text": " "},
		{"text": strings.TrimSpace(text) + " ", "flush": true},
		{"text": ""},
	}
	for _, msg := range messages {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("send text: %w", err)
		}
	}

	stream := NewSynthesisStream(MimeTypeForFormat(opts.Format))
	go func() {
		select {
		case <-stream.Done():
		case <-ctx.Done():
			stream.SetError(ctx.Err())
			_ = stream.Close()
		}
		_ = conn.Close()
	}()
	go func() {
		defer stream.FinishSending()
		defer stream.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					select {
					case <-stream.Done():
					default:
						stream.SetError(err)
					}
				}
				return
			}
			var msg struct {
				Audio   string `json:"audio"`
				IsFinal bool   `json:"isFinal"`
				Error   string `json:"error"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Error != "" {
				stream.SetError(fmt.Errorf("elevenlabs: %s: %s", msg.Error, msg.Message))
				return
			}
			if msg.Audio != "" {
				audio, err := base64.StdEncoding.DecodeString(msg.Audio)
				if err == nil && len(audio) > 0 {
					if !stream.Send(audio) {
						return
					}
				}
			}
			if msg.IsFinal {
				return
			}
		}
	}()

	return stream, nil
}

func (e *ElevenLabsProvider) check(text string, opts SynthesizeOptions) (string, error) {
	if e.apiKey == "" {
		return "", errors.New("elevenlabs api key is required")
	}
	voiceID := strings.TrimSpace(opts.Voice)
	if voiceID == "" {
		return "", errors.New("voice id is required")
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("text is required")
	}
	return voiceID, nil
}

func withDefaults(opts SynthesizeOptions) SynthesizeOptions {
	if opts.Model == "" {
		opts.Model = elevenLabsDefaultModel
	}
	if opts.Format == "" {
		opts.Format = elevenLabsDefaultFormat
	}
	return opts
}

func buildStreamInputURL(base, voiceID string, opts SynthesizeOptions) (string, error) {
	u, err := url.Parse(base + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input")
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws url: %w", err)
	}
	q := u.Query()
	q.Set("model_id", opts.Model)
	q.Set("output_format", opts.Format)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func websocketBase(httpBase string) string {
	switch {
	case strings.HasPrefix(httpBase, "https://"):
		return "wss://" + strings.TrimPrefix(httpBase, "https://")
	case strings.HasPrefix(httpBase, "http://"):
		return "ws://" + strings.TrimPrefix(httpBase, "http://")
	default:
		return httpBase
	}
}

// MimeTypeForFormat maps an ElevenLabs output format to a MIME type.
func MimeTypeForFormat(format string) string {
	switch {
	case strings.HasPrefix(format, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(format, "pcm"):
		return "audio/pcm"
	case strings.HasPrefix(format, "ulaw"):
		return "audio/basic"
	case strings.HasPrefix(format, "opus"):
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

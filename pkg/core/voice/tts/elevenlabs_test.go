package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func TestElevenLabs_SynthesizeREST(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != "mp3_44100_128" {
			t.Errorf("output_format = %q", got)
		}
		if got := r.Header.Get("xi-api-key"); got != "key" {
			t.Errorf("xi-api-key = %q", got)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["text"] != "Water is H2O." || body["model_id"] != "eleven_multilingual_v2" {
			t.Errorf("body = %#v", body)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-mp3"))
	}))
	defer srv.Close()

	p := NewElevenLabsWithClient("key", srv.Client()).WithBaseURL(srv.URL)
	got, err := p.Synthesize(context.Background(), "Water is H2O.", SynthesizeOptions{Voice: "voice-1"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(got.Audio) != "ID3-mp3" || got.MimeType != "audio/mpeg" {
		t.Fatalf("Synthesize() = (%q, %q)", got.Audio, got.MimeType)
	}
}

func TestElevenLabs_SynthesizeValidates(t *testing.T) {
	p := NewElevenLabs("key")
	if _, err := p.Synthesize(context.Background(), "hi", SynthesizeOptions{}); err == nil {
		t.Fatal("Synthesize() without voice succeeded")
	}
	if _, err := p.Synthesize(context.Background(), "  ", SynthesizeOptions{Voice: "v"}); err == nil {
		t.Fatal("Synthesize() without text succeeded")
	}
	if _, err := NewElevenLabs("").Synthesize(context.Background(), "hi", SynthesizeOptions{Voice: "v"}); err == nil {
		t.Fatal("Synthesize() without api key succeeded")
	}
}

func TestElevenLabs_SynthesizeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "voice not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewElevenLabsWithClient("key", srv.Client()).WithBaseURL(srv.URL)
	if _, err := p.Synthesize(context.Background(), "hi", SynthesizeOptions{Voice: "v"}); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("Synthesize() error = %v, want 404", err)
	}
}

func TestElevenLabs_SynthesizeStream(t *testing.T) {
	upgrader := websocket.Upgrader{}
	sent := make(chan []string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-1/stream-input" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("model_id"); got != "eleven_multilingual_v2" {
			t.Errorf("model_id = %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		var texts []string
		for i := 0; i < 3; i++ {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				t.Errorf("read: %v", err)
				return
			}
			texts = append(texts, msg["text"].(string))
		}
		sent <- texts
		for _, part := range []string{"chunk-1", "chunk-2"} {
			_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte(part))})
		}
		_ = conn.WriteJSON(map[string]any{"isFinal": true})
	}))
	defer srv.Close()

	p := NewElevenLabsWithClient("key", srv.Client()).WithBaseURL(srv.URL)
	stream, err := p.SynthesizeStream(context.Background(), "Hello there", SynthesizeOptions{Voice: "voice-1"})
	if err != nil {
		t.Fatalf("SynthesizeStream() error = %v", err)
	}
	var buf bytes.Buffer
	for chunk := range stream.Chunks() {
		buf.Write(chunk)
	}
	if err := stream.Err(); err != nil && err != io.EOF {
		t.Fatalf("stream.Err() = %v", err)
	}
	if buf.String() != "chunk-1chunk-2" {
		t.Fatalf("audio = %q", buf.String())
	}
	if stream.MimeType != "audio/mpeg" {
		t.Fatalf("MimeType = %q", stream.MimeType)
	}
	texts := <-sent
	if len(texts) != 3 || texts[1] != "Hello there " || texts[2] != "" {
		t.Fatalf("texts sent = %#v", texts)
	}
}

func TestMimeTypeForFormat(t *testing.T) {
	tests := map[string]string{
		"mp3_44100_128": "audio/mpeg",
		"pcm_24000":     "audio/pcm",
		"ulaw_8000":     "audio/basic",
		"opus_48000_64": "audio/ogg",
		"":              "application/octet-stream",
	}
	for in, want := range tests {
		if got := MimeTypeForFormat(in); got != want {
			t.Fatalf("MimeTypeForFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

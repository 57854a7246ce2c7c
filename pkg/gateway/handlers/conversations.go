package handlers

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/graph"
	"github.com/vango-go/vai-tutor/pkg/persona"
	"github.com/vango-go/vai-tutor/pkg/store"
)

// StoreHandlers expose the turn and audio store over REST. storeclient is
// the matching client.
type StoreHandlers struct {
	Store         store.Store
	Personas      *persona.Registry
	MaxBodyBytes  int64
	MaxAudioBytes int64
	Logger        *slog.Logger
}

func (h StoreHandlers) ListPersonas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"personas": h.Personas.All()})
}

func (h StoreHandlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.Store.ListConversations(r.Context())
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if convs == nil {
		convs = []store.Conversation{}
	}
	writeJSON(w, http.StatusOK, store.ConversationList{Conversations: convs})
}

func (h StoreHandlers) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var body store.CreateConversationBody
	if err := decodeJSON(w, r, h.MaxBodyBytes, &body); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if err := store.ValidatePersona(body.Persona); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	conv, err := h.Store.CreateConversation(r.Context(), h.Personas.Resolve(body.Persona).ID, strings.TrimSpace(body.Title))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h StoreHandlers) ListTurns(w http.ResponseWriter, r *http.Request) {
	turns, err := h.Store.ListTurns(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	if turns == nil {
		turns = []store.Turn{}
	}
	writeJSON(w, http.StatusOK, store.TurnList{Turns: turns})
}

func (h StoreHandlers) AppendTurn(w http.ResponseWriter, r *http.Request) {
	var body store.AppendTurnBody
	if err := decodeJSON(w, r, h.MaxBodyBytes, &body); err != nil {
		writeError(w, r, h.Logger, err)
		return
	}

	req := store.AppendTurnRequest{
		ConversationID: r.PathValue("id"),
		Question:       body.Question,
		Answer:         body.Answer,
		Concept:        body.Concept,
		Summary:        body.Summary,
		AudioMimeType:  strings.TrimSpace(body.MimeType),
	}
	if body.AudioBase64 != "" {
		audio, err := base64.StdEncoding.DecodeString(body.AudioBase64)
		if err != nil {
			writeError(w, r, h.Logger, core.NewValidationError("audio_base64 is not valid base64", "audio_base64"))
			return
		}
		if int64(len(audio)) > h.MaxAudioBytes {
			writeError(w, r, h.Logger, core.NewValidationError("audio exceeds "+strconv.FormatInt(h.MaxAudioBytes, 10)+" bytes", "audio_base64"))
			return
		}
		req.Audio = audio
		if req.AudioMimeType == "" {
			req.AudioMimeType = sniffAudio(audio)
		}
	}

	res, err := h.Store.AppendTurn(r.Context(), req)
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type graphResponse struct {
	Nodes   []graph.Node `json:"nodes"`
	Edges   []graph.Edge `json:"edges"`
	Mermaid string       `json:"mermaid"`
}

// Graph returns the concept map. ?format=mermaid returns only the diagram
// source as text.
func (h StoreHandlers) Graph(w http.ResponseWriter, r *http.Request) {
	turns, err := h.Store.ListTurns(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	g := graph.Build(turns)

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, graphResponse{Nodes: g.Nodes, Edges: g.Edges, Mermaid: g.Mermaid()})
	case "mermaid":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(g.Mermaid()))
	default:
		writeError(w, r, h.Logger, core.NewInvalidRequestErrorWithParam("format must be json or mermaid", "format"))
	}
}

// GraphNode resolves a node id such as C2 back to the turn it stands for.
func (h StoreHandlers) GraphNode(w http.ResponseWriter, r *http.Request) {
	turns, err := h.Store.ListTurns(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	nodeID := r.PathValue("node")
	turn, ok := graph.Resolve(turns, nodeID)
	if !ok {
		writeError(w, r, h.Logger, core.NewNotFoundError("node "+nodeID+" not found"))
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (h StoreHandlers) Audio(w http.ResponseWriter, r *http.Request) {
	clip, err := h.Store.GetAudio(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.Logger, err)
		return
	}
	mime := clip.MimeType
	if mime == "" {
		mime = store.DefaultAudioMimeType
	}
	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Data)))
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.Data)
}

// sniffAudio guesses the MIME type of an upload, falling back to the store
// default when the bytes are not recognised as audio.
func sniffAudio(data []byte) string {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") || m.Is("video/webm") {
			return mt.String()
		}
	}
	return store.DefaultAudioMimeType
}

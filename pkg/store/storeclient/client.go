// Package storeclient implements store.Store against a remote vai-tutor
// gateway.
package storeclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/store"
)

const defaultTimeout = 30 * time.Second

// Client talks to the /v1 store endpoints.
type Client struct {
	http *resty.Client
}

var _ store.Store = (*Client)(nil)

func New(baseURL string) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("User-Agent", "vai-tutor-storeclient/1.0").
		SetTimeout(defaultTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// Only reads are retried; a retried append could store the turn twice.
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &Client{http: c}
}

type errorEnvelope struct {
	Error *core.Error `json:"error"`
}

func (c *Client) CreateConversation(ctx context.Context, persona, title string) (store.Conversation, error) {
	var out store.Conversation
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(store.CreateConversationBody{Persona: persona, Title: title}).
		SetResult(&out).
		Post("/v1/conversations")
	if err := check(resp, err, "create conversation"); err != nil {
		return store.Conversation{}, err
	}
	return out, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]store.Conversation, error) {
	var out store.ConversationList
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/conversations")
	if err := check(resp, err, "list conversations"); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

func (c *Client) ListTurns(ctx context.Context, conversationID string) ([]store.Turn, error) {
	var out store.TurnList
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/conversations/" + url.PathEscape(conversationID) + "/turns")
	if err := check(resp, err, "list turns"); err != nil {
		return nil, err
	}
	return out.Turns, nil
}

func (c *Client) AppendTurn(ctx context.Context, req store.AppendTurnRequest) (store.AppendTurnResult, error) {
	if err := req.Validate(); err != nil {
		return store.AppendTurnResult{}, err
	}
	body := store.AppendTurnBody{
		Question: req.Question,
		Answer:   req.Answer,
		Concept:  req.Concept,
		Summary:  req.Summary,
		MimeType: req.AudioMimeType,
	}
	if len(req.Audio) > 0 {
		body.AudioBase64 = base64.StdEncoding.EncodeToString(req.Audio)
	}

	var out store.AppendTurnResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/conversations/" + url.PathEscape(req.ConversationID) + "/turns")
	if err := check(resp, err, "append turn"); err != nil {
		return store.AppendTurnResult{}, err
	}
	return out, nil
}

func (c *Client) GetAudio(ctx context.Context, audioID string) (store.AudioClip, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/v1/audio/" + url.PathEscape(audioID))
	if err := check(resp, err, "get audio"); err != nil {
		return store.AudioClip{}, err
	}
	mime := resp.Header().Get("Content-Type")
	if mime == "" {
		mime = store.DefaultAudioMimeType
	}
	return store.AudioClip{ID: audioID, Data: resp.Body(), MimeType: mime}, nil
}

// Ping calls the readiness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/readyz")
	return check(resp, err, "ping")
}

// check converts transport failures and gateway error envelopes into errors,
// preserving the remote error type.
func check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return core.Wrap(core.ErrPersistence, op, err)
	}
	if !resp.IsError() {
		return nil
	}
	var env errorEnvelope
	if jsonErr := json.Unmarshal(resp.Body(), &env); jsonErr == nil && env.Error != nil && env.Error.Type != "" {
		return env.Error
	}
	return core.Wrap(core.ErrPersistence, op, fmt.Errorf("status %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String())))
}

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vango-go/vai-tutor/pkg/gateway/config"
	gatewayserver "github.com/vango-go/vai-tutor/pkg/gateway/server"
	"github.com/vango-go/vai-tutor/pkg/store"
	"github.com/vango-go/vai-tutor/pkg/store/memory"
)

func newTestGateway(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	st := memory.New()
	gw := gatewayserver.New(config.Config{
		MaxBodyBytes:  1 << 20,
		MaxAudioBytes: 1 << 20,
	}, gatewayserver.Deps{Store: st}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(gw.Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--server", server}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConversationsCreateAndList(t *testing.T) {
	srv, _ := newTestGateway(t)

	id, err := run(t, srv.URL, "conversations", "create", "--persona", "dora", "--title", "Rainbows")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		t.Fatal("create printed no id")
	}

	out, err := run(t, srv.URL, "conversations", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "Rainbows") {
		t.Fatalf("list output:\n%s", out)
	}

	if _, err := run(t, srv.URL, "conversations", "create"); err == nil {
		t.Fatal("create without --persona succeeded")
	}
}

func TestTurnsGraphAndAudio(t *testing.T) {
	srv, st := newTestGateway(t)
	ctx := context.Background()
	conv, err := st.CreateConversation(ctx, "peter", "")
	if err != nil {
		t.Fatal(err)
	}
	res, err := st.AppendTurn(ctx, store.AppendTurnRequest{
		ConversationID: conv.ID, Question: "What is gravity?", Answer: "A pull.", Concept: "Gravity", Summary: "Mass attracts.",
		Audio: []byte("mp3-data"), AudioMimeType: "audio/mpeg",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.AppendTurn(ctx, store.AppendTurnRequest{
		ConversationID: conv.ID, Question: "And orbits?", Answer: "Falling around.", Concept: "Orbits", Summary: "Sideways falling.",
	}); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, srv.URL, "turns", "list", conv.ID)
	if err != nil {
		t.Fatalf("turns list: %v", err)
	}
	if !strings.Contains(out, "C0") || !strings.Contains(out, "Orbits") || !strings.Contains(out, res.AudioID) {
		t.Fatalf("turns output:\n%s", out)
	}

	out, err = run(t, srv.URL, "graph", conv.ID)
	if err != nil {
		t.Fatalf("graph: %v", err)
	}
	if !strings.HasPrefix(out, "graph TD;") || !strings.Contains(out, "C0-->C1") {
		t.Fatalf("graph output: %q", out)
	}
	if _, err := run(t, srv.URL, "graph", conv.ID, "--format", "dot"); err == nil {
		t.Fatal("unknown format accepted")
	}

	path := filepath.Join(t.TempDir(), "answer.mp3")
	if _, err := run(t, srv.URL, "audio", "get", res.AudioID, "-o", path); err != nil {
		t.Fatalf("audio get: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "mp3-data" {
		t.Fatalf("audio file = %q, %v", data, err)
	}
}

func TestTurnsList_UnknownConversation(t *testing.T) {
	srv, _ := newTestGateway(t)
	_, err := run(t, srv.URL, "turns", "list", "conv_missing")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v", err)
	}
}

package tavily

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vango-go/vai-tutor/pkg/core/search"
)

func TestClientSearch_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth header=%q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"T","url":"https://e.com","content":"S"}]}`))
	}))
	defer ts.Close()

	c := NewClient("key", ts.URL, ts.Client())
	hits, err := c.Search(context.Background(), "why is the sky blue", 3)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(hits) != 1 || hits[0].Title != "T" || hits[0].Snippet != "S" {
		t.Fatalf("hits=%+v", hits)
	}
}

func TestClientSearch_Non200IsStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer ts.Close()

	c := NewClient("bad-key", ts.URL, ts.Client())
	_, err := c.Search(context.Background(), "golang", 3)
	var statusErr *search.StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusUnauthorized {
		t.Fatalf("err=%v, want StatusError 401", err)
	}
}

func TestClientSearch_Timeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer ts.Close()

	c := NewClient("key", ts.URL, ts.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Search(ctx, "golang", 3); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestClient_Configured(t *testing.T) {
	if NewClient(" ", "", nil).Configured() {
		t.Fatal("blank key reported as configured")
	}
	if _, err := NewClient("", "", nil).Search(context.Background(), "q", 1); err == nil {
		t.Fatal("unconfigured search succeeded")
	}
}

package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPClient_MissingKey(t *testing.T) {
	client := NewHTTPClient("http://localhost:1", "", "test-model", nil)
	if _, err := client.StreamChat(context.Background(), []Message{{Role: "user", Content: "hi"}}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestHTTPClient_NativeStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"content\":\"Ho\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"la\"}}]}\n\n" +
				"data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-key", "test-model", nil)
	stream, err := client.StreamChat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("stream chat: %v", err)
	}
	defer stream.Close()

	if got := drain(t, stream); got != "Hola" {
		t.Fatalf("expected %q, got %q", "Hola", got)
	}
}

func TestHTTPClient_BatchFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"respuesta completa"}}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-key", "test-model", nil)
	stream, err := client.StreamChat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("stream chat: %v", err)
	}
	defer stream.Close()

	if got := drain(t, stream); got != "respuesta completa" {
		t.Fatalf("expected full text, got %q", got)
	}
}

func TestHTTPClient_UpstreamErrorBeforeStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-key", "test-model", nil)
	if _, err := client.StreamChat(context.Background(), []Message{{Role: "user", Content: "hi"}}); err == nil {
		t.Fatalf("expected error for upstream 502")
	}
}

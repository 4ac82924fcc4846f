package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"relay-chat/internal/llm"
)

func TestStreamChat_EmulatedStreaming(t *testing.T) {
	app := newTestApp(t, &llm.MockClient{Response: strings.Repeat("x", 200), ChunkSize: 80})

	rec := app.do(t, http.MethodPost, "/api/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hola"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	body := rec.Body.String()
	frames := strings.Count(body, `"content"`)
	if frames != 3 {
		t.Fatalf("expected 3 content frames for 200 bytes at chunk 80, got %d\n%s", frames, body)
	}
	if !strings.Contains(body, "[DONE]") {
		t.Fatalf("expected completion marker, got %s", body)
	}
	if got := strings.Count(body, "x"); got != 200 {
		t.Fatalf("frame payloads must reconstruct the text exactly, got %d bytes", got)
	}
}

func TestStreamChat_MultiByteReconstruction(t *testing.T) {
	// Runes de 3 bytes con el límite de chunk a mitad de rune: cada frame debe
	// seguir siendo UTF-8 válido y la concatenación, idéntica al original.
	text := strings.Repeat("€", 67)
	app := newTestApp(t, &llm.MockClient{Response: text, ChunkSize: 80})

	rec := app.do(t, http.MethodPost, "/api/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hola"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", rec.Code, rec.Body.String())
	}

	var b strings.Builder
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(line[len("data:"):])
		if payload == "[DONE]" {
			continue
		}
		var frame struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			t.Fatalf("decode frame %q: %v", payload, err)
		}
		b.WriteString(frame.Content)
	}
	if b.String() != text {
		t.Fatalf("frame payloads must reconstruct the text exactly, got %d bytes (want %d)", len(b.String()), len(text))
	}
	if strings.Contains(rec.Body.String(), "�") {
		t.Fatalf("frames must not carry replacement characters")
	}
}

// ctxBoundStream bloquea el segundo Recv hasta que el contexto del request se
// cancele, imitando un upstream que sigue abierto.
type ctxBoundStream struct {
	ctx    context.Context
	first  bool
	closed chan struct{}
}

func (s *ctxBoundStream) Recv() (string, error) {
	if !s.first {
		s.first = true
		return "hola", nil
	}
	<-s.ctx.Done()
	return "", s.ctx.Err()
}

func (s *ctxBoundStream) Close() error {
	close(s.closed)
	return nil
}

type ctxBoundClient struct{ stream *ctxBoundStream }

func (c *ctxBoundClient) StreamChat(ctx context.Context, _ []llm.Message) (llm.Stream, error) {
	c.stream.ctx = ctx
	return c.stream, nil
}

func TestStreamChat_ClientCancelStopsUpstream(t *testing.T) {
	stream := &ctxBoundStream{closed: make(chan struct{})}
	app := newTestApp(t, &ctxBoundClient{stream: stream})

	raw, err := json.Marshal(map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hola"}},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(raw)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := newCloseNotifyRecorder()

	done := make(chan struct{})
	go func() {
		app.router.ServeHTTP(rec, req)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not stop after client cancel")
	}
	select {
	case <-stream.closed:
	case <-time.After(time.Second):
		t.Fatalf("upstream stream was not closed")
	}
	if strings.Contains(rec.Body.String(), "[DONE]") {
		t.Fatalf("aborted stream must not emit the completion marker")
	}
}

func TestStreamChat_AnonymousAllowed(t *testing.T) {
	app := newTestApp(t, &llm.MockClient{Response: "hola"})

	rec := app.do(t, http.MethodPost, "/api/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hola"}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("anonymous chat status = %d", rec.Code)
	}
}

func TestStreamChat_ValidationAndConfigErrors(t *testing.T) {
	app := newTestApp(t, &llm.MockClient{Response: "hola"})

	rec := app.do(t, http.MethodPost, "/api/chat", map[string]any{"messages": []any{}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty messages status = %d", rec.Code)
	}

	// Credenciales faltantes: error único antes de abrir el stream.
	app = newTestApp(t, &llm.MockClient{Err: llm.ErrNotConfigured})
	rec = app.do(t, http.MethodPost, "/api/chat", map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "hola"}},
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unconfigured status = %d", rec.Code)
	}
	if strings.Contains(rec.Header().Get("Content-Type"), "event-stream") {
		t.Fatalf("must not half-open a stream on misconfiguration")
	}
}

func TestChatCRUDOwnership(t *testing.T) {
	app := newTestApp(t, &llm.MockClient{Response: "respuesta"})

	access := func(email, phone string) string {
		rec := app.do(t, http.MethodPost, "/api/auth/signup", signupBody(email, phone))
		devCode := decodeJSON(t, rec)["devCode"].(string)
		rec = app.do(t, http.MethodPost, "/api/auth/verify-otp", map[string]any{
			"email": email, "code": devCode,
		})
		return decodeJSON(t, rec)["accessToken"].(string)
	}
	owner := access("owner@example.com", "+5491100000011")
	other := access("other@example.com", "+5491100000012")

	withToken := func(token string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
	}

	rec := app.do(t, http.MethodPost, "/api/chats", map[string]any{"title": "mi chat"}, withToken(owner))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create chat status = %d", rec.Code)
	}
	chat := decodeJSON(t, rec)["chat"].(map[string]any)
	chatID := chat["id"].(string)

	// El dueño agrega un mensaje y recibe la respuesta del relay drenada.
	rec = app.do(t, http.MethodPost, "/api/chats/"+chatID+"/messages", map[string]any{"content": "hola"}, withToken(owner))
	if rec.Code != http.StatusOK {
		t.Fatalf("append message status = %d, body %s", rec.Code, rec.Body.String())
	}
	reply := decodeJSON(t, rec)["reply"].(map[string]any)
	if reply["role"] != "assistant" || reply["content"] != "respuesta" {
		t.Fatalf("unexpected reply: %v", reply)
	}

	// Un chat ajeno se reporta como inexistente.
	if rec := app.do(t, http.MethodGet, "/api/chats/"+chatID, nil, withToken(other)); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign chat status = %d", rec.Code)
	}
	if rec := app.do(t, http.MethodGet, "/api/chats/"+chatID, nil, withToken(owner)); rec.Code != http.StatusOK {
		t.Fatalf("own chat status = %d", rec.Code)
	}

	// Sin token: 401.
	if rec := app.do(t, http.MethodGet, "/api/chats", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list status = %d", rec.Code)
	}

	if rec := app.do(t, http.MethodDelete, "/api/chats/"+chatID, nil, withToken(owner)); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := app.do(t, http.MethodGet, "/api/chats/"+chatID, nil, withToken(owner)); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted chat status = %d", rec.Code)
	}
}
